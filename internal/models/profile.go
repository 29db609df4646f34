// internal/models/profile.go
package models

// CustomField 个人档案中的自订栏位
type CustomField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// UserProfile 会话内唯一的个人档案
type UserProfile struct {
	Avatar       string        `json:"avatar"`
	Unit         string        `json:"unit"`
	Title        string        `json:"title"`
	Experience   string        `json:"experience"`
	Interests    string        `json:"interests"`
	Email        string        `json:"email"`
	CustomFields []CustomField `json:"custom_fields"`
}

// Clone 返回档案的深拷贝
func (p *UserProfile) Clone() *UserProfile {
	clone := *p
	clone.CustomFields = make([]CustomField, len(p.CustomFields))
	copy(clone.CustomFields, p.CustomFields)
	return &clone
}

// DefaultAvatar 未上传头像时使用的占位图
const DefaultAvatar = `data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'%3E%3Crect width='100' height='100' fill='%23CDB380'/%3E%3Ctext x='50%25' y='50%25' dominant-baseline='central' text-anchor='middle' font-size='45' font-family='Lora, serif' fill='%23031634'%3EPF%3C/text%3E%3C/svg%3E`

// DefaultProfile 返回初始档案
func DefaultProfile() *UserProfile {
	return &UserProfile{
		Avatar:       DefaultAvatar,
		CustomFields: []CustomField{},
	}
}
