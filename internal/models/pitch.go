// internal/models/pitch.go
package models

// Source 检索落地时返回的引用来源
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Pitch 一份已储存的电梯短讲
// ID 为创建时的毫秒时间戳，同时承担身份与新旧排序
type Pitch struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	GeneratedPitch string   `json:"generated_pitch"`
	PracticedPitch string   `json:"practiced_pitch"`
	Feedback       string   `json:"feedback"`
	Sources        []Source `json:"sources,omitempty"`
	// 生成当下锁定的模板名称，之后模板被改名或删除也不回溯
	TemplateName string `json:"template_name,omitempty"`
}

// CommunityPitch 经分享流水线发布的社群短讲
// 发布后不可变，收藏关系由外部 id 集合维护
type CommunityPitch struct {
	Pitch
	Summary  string `json:"summary"`
	ImageURL string `json:"image_url"`
}
