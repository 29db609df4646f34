// internal/api/handlers.go
package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/ElePitch/internal/capture"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/services"
)

// Handler 处理API请求
type Handler struct {
	TemplateService *services.TemplateService // 模板注册表
	PitchService    *services.PitchService    // 短讲工作流
	ShareService    *services.ShareService    // 社群分享流水线
	RecordService   *services.RecordService   // 演练纪录
	ProfileService  *services.ProfileService  // 个人档案
	TaskGuard       *services.TaskGuard       // 任务守卫
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	templateService *services.TemplateService,
	pitchService *services.PitchService,
	shareService *services.ShareService,
	recordService *services.RecordService,
	profileService *services.ProfileService,
	taskGuard *services.TaskGuard,
) *Handler {
	return &Handler{
		TemplateService: templateService,
		PitchService:    pitchService,
		ShareService:    shareService,
		RecordService:   recordService,
		ProfileService:  profileService,
		TaskGuard:       taskGuard,
		Response:        NewResponseHelper(),
	}
}

// ------------------------------------------------
// 模板

// GetTemplates 返回全部模板（内置+自订）
func (h *Handler) GetTemplates(c *gin.Context) {
	h.Response.Success(c, h.TemplateService.List())
}

// GetTemplate 返回单个模板
func (h *Handler) GetTemplate(c *gin.Context) {
	template, err := h.TemplateService.Get(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, template)
}

// CreateTemplate 新增自订模板
func (h *Handler) CreateTemplate(c *gin.Context) {
	var def models.Template
	if err := c.ShouldBindJSON(&def); err != nil {
		h.Response.BadRequest(c, "无效的模板定义", err.Error())
		return
	}

	template, err := h.TemplateService.Create(&def)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, template)
}

// UpdateTemplate 更新自订模板
func (h *Handler) UpdateTemplate(c *gin.Context) {
	var def models.Template
	if err := c.ShouldBindJSON(&def); err != nil {
		h.Response.BadRequest(c, "无效的模板定义", err.Error())
		return
	}

	template, err := h.TemplateService.Update(c.Param("id"), &def)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, template)
}

// DeleteTemplate 删除自订模板，当前选中的模板被删除时回退默认模板
func (h *Handler) DeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := h.TemplateService.Delete(id); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.PitchService.OnTemplateDeleted(id)
	h.Response.Success(c, nil, "模板已删除")
}

// ReorderTemplateFieldsRequest 字段重排请求
type ReorderTemplateFieldsRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// ReorderTemplateFields 调整字段顺序
func (h *Handler) ReorderTemplateFields(c *gin.Context) {
	var req ReorderTemplateFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	template, err := h.TemplateService.ReorderFields(c.Param("id"), req.From, req.To)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, template)
}

// SuggestStructureRequest 字段结构建议请求
type SuggestStructureRequest struct {
	Name string `json:"name"`
}

// SuggestTemplateStructure 让AI按模板名称建议字段标签
func (h *Handler) SuggestTemplateStructure(c *gin.Context) {
	var req SuggestStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	fields, err := h.TemplateService.SuggestStructure(c.Request.Context(), req.Name)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"fields": fields})
}

// ------------------------------------------------
// 工作流会话

// GetSession 返回当前会话状态
func (h *Handler) GetSession(c *gin.Context) {
	h.Response.Success(c, h.PitchService.Session())
}

// SelectTemplateRequest 模板选择请求
type SelectTemplateRequest struct {
	TemplateID string `json:"template_id"`
}

// SelectTemplate 切换会话模板
func (h *Handler) SelectTemplate(c *gin.Context) {
	var req SelectTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	session, err := h.PitchService.SelectTemplate(req.TemplateID)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, session)
}

// SetDurationRequest 时长设定请求
// Duration 为字符串以兼容自订输入框，非数字按 0 处理
type SetDurationRequest struct {
	Duration string `json:"duration"`
}

// SetDuration 设定演讲时长
func (h *Handler) SetDuration(c *gin.Context) {
	var req SetDurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	seconds := services.ParseDuration(req.Duration)
	h.Response.Success(c, h.PitchService.SetDuration(seconds))
}

// SetFieldInputRequest 字段输入请求
type SetFieldInputRequest struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SetFieldInput 写入字段内容
func (h *Handler) SetFieldInput(c *gin.Context) {
	var req SetFieldInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	if err := h.PitchService.SetFieldInput(req.Label, req.Value); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, h.PitchService.Session())
}

// SetSearchTopicRequest 研究主题请求
type SetSearchTopicRequest struct {
	Topic string `json:"topic"`
}

// SetSearchTopic 设定研究主题
func (h *Handler) SetSearchTopic(c *gin.Context) {
	var req SetSearchTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	h.PitchService.SetSearchTopic(req.Topic)
	h.Response.Success(c, h.PitchService.Session())
}

// GeneratePitch 生成讲稿草稿
func (h *Handler) GeneratePitch(c *gin.Context) {
	session, err := h.PitchService.Generate(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, session)
}

// SetPracticedPitchRequest 演练版本请求
type SetPracticedPitchRequest struct {
	Text string `json:"text"`
}

// SetPracticedPitch 记录演练版本
func (h *Handler) SetPracticedPitch(c *gin.Context) {
	var req SetPracticedPitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	if err := h.PitchService.SetPracticedPitch(req.Text); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, h.PitchService.Session())
}

// GetFeedback 取得教练回馈
func (h *Handler) GetFeedback(c *gin.Context) {
	session, err := h.PitchService.GetFeedback(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, session)
}

// SavePitch 储存当前讲稿
func (h *Handler) SavePitch(c *gin.Context) {
	pitch, err := h.PitchService.Save()
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, pitch, "講稿已成功儲存")
}

// ResetSession 重置会话
func (h *Handler) ResetSession(c *gin.Context) {
	h.Response.Success(c, h.PitchService.Reset())
}

// ------------------------------------------------
// 历史讲稿

// GetPitches 返回历史讲稿列表
func (h *Handler) GetPitches(c *gin.Context) {
	h.Response.Success(c, h.PitchService.List())
}

// LoadPitch 打开历史讲稿
func (h *Handler) LoadPitch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的讲稿ID", err.Error())
		return
	}

	session, err := h.PitchService.Load(id)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, session)
}

// DeletePitch 删除历史讲稿
func (h *Handler) DeletePitch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的讲稿ID", err.Error())
		return
	}

	if err := h.PitchService.Delete(id); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "讲稿已删除")
}

// ------------------------------------------------
// 社群分享

// InitiateShare 启动分享流水线
func (h *Handler) InitiateShare(c *gin.Context) {
	candidate, err := h.ShareService.Initiate(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, candidate)
}

// ConfirmShare 确认发布候选讲稿
func (h *Handler) ConfirmShare(c *gin.Context) {
	pitch, err := h.ShareService.Confirm()
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, pitch, "成功分享至社群")
}

// CancelShare 放弃候选讲稿
func (h *Handler) CancelShare(c *gin.Context) {
	h.ShareService.Cancel()
	h.Response.Success(c, nil)
}

// GetShareCandidate 返回待确认的候选讲稿
func (h *Handler) GetShareCandidate(c *gin.Context) {
	h.Response.Success(c, h.ShareService.Candidate())
}

// GetCommunityPitches 返回社群讲稿列表
func (h *Handler) GetCommunityPitches(c *gin.Context) {
	h.Response.Success(c, h.ShareService.Community())
}

// GetCommunityPitch 返回单份社群讲稿
func (h *Handler) GetCommunityPitch(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的讲稿ID", err.Error())
		return
	}

	pitch, err := h.ShareService.GetCommunityPitch(id)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, pitch)
}

// ToggleCollection 收藏/取消收藏社群讲稿
func (h *Handler) ToggleCollection(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的讲稿ID", err.Error())
		return
	}

	collected, err := h.ShareService.ToggleCollection(id)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"collected": collected})
}

// GetCollections 返回收藏的社群讲稿
func (h *Handler) GetCollections(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"ids":     h.ShareService.Collections(),
		"pitches": h.ShareService.CollectedPitches(),
	})
}

// ------------------------------------------------
// 演练纪录

// GetRecords 返回纪录列表，type 查询参数可选 self/other
func (h *Handler) GetRecords(c *gin.Context) {
	h.Response.Success(c, h.RecordService.List(c.Query("type")))
}

// NewRecordRequest 新建纪录请求
type NewRecordRequest struct {
	Type string `json:"type"`
}

// NewRecord 打开新纪录草稿
func (h *Handler) NewRecord(c *gin.Context) {
	var req NewRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	record, err := h.RecordService.NewDraft(req.Type)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, record)
}

// OpenRecord 打开已有纪录编辑
func (h *Handler) OpenRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的纪录ID", err.Error())
		return
	}

	record, err := h.RecordService.Open(id)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// GetEditingRecord 返回编辑中的纪录
func (h *Handler) GetEditingRecord(c *gin.Context) {
	h.Response.Success(c, h.RecordService.Editing())
}

// CloseRecordEditor 关闭编辑器（草稿此时入列，空纪录也保留）
func (h *Handler) CloseRecordEditor(c *gin.Context) {
	if err := h.RecordService.Close(); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil)
}

// UpdateRecordRequest 纪录字段更新请求
type UpdateRecordRequest struct {
	Topic   *string `json:"topic,omitempty"`
	Speaker *string `json:"speaker,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// UpdateRecord 更新编辑中纪录的基础字段
func (h *Handler) UpdateRecord(c *gin.Context) {
	var req UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	var record *models.PitchRecord
	var err error
	if req.Topic != nil {
		if record, err = h.RecordService.SetTopic(*req.Topic); err != nil {
			h.Response.AppError(c, err)
			return
		}
	}
	if req.Speaker != nil {
		if record, err = h.RecordService.SetSpeaker(*req.Speaker); err != nil {
			h.Response.AppError(c, err)
			return
		}
	}
	if req.Notes != nil {
		if record, err = h.RecordService.SetNotes(*req.Notes); err != nil {
			h.Response.AppError(c, err)
			return
		}
	}
	if record == nil {
		record = h.RecordService.Editing()
	}
	h.Response.Success(c, record)
}

// AttachAudioRequest 录音挂载请求
type AttachAudioRequest struct {
	Base64   string `json:"base64"`
	MIMEType string `json:"mime_type"`
	DataURL  string `json:"data_url"`
}

// AttachRecordAudio 挂上客户端采集的录音
func (h *Handler) AttachRecordAudio(c *gin.Context) {
	var req AttachAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	record, err := h.RecordService.AttachAudio(&capture.AudioClip{
		Base64:   req.Base64,
		MIMEType: req.MIMEType,
		DataURL:  req.DataURL,
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// AttachPhotoRequest 照片挂载请求
type AttachPhotoRequest struct {
	DataURL string `json:"data_url"`
}

// AttachRecordPhoto 挂上客户端拍摄的照片
func (h *Handler) AttachRecordPhoto(c *gin.Context) {
	var req AttachPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	record, err := h.RecordService.AttachPhoto(&capture.Photo{DataURL: req.DataURL})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// TranscribeRecord 把录音转写为逐字稿
func (h *Handler) TranscribeRecord(c *gin.Context) {
	record, err := h.RecordService.Transcribe(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// EvaluateRecord AI评鉴编辑中的纪录
func (h *Handler) EvaluateRecord(c *gin.Context) {
	record, err := h.RecordService.Evaluate(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// SetManualScoreRequest 手动评分请求
type SetManualScoreRequest struct {
	Dimension string `json:"dimension"`
	Value     int    `json:"value"`
}

// SetManualScore 调整手动评分的单一维度
func (h *Handler) SetManualScore(c *gin.Context) {
	var req SetManualScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	record, err := h.RecordService.SetManualScore(req.Dimension, req.Value)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// ImportRecordTopicRequest 从历史讲稿引入题目的请求
type ImportRecordTopicRequest struct {
	PitchID int64 `json:"pitch_id"`
}

// ImportRecordTopic 把已储存讲稿的标题引入为编辑中纪录的题目
func (h *Handler) ImportRecordTopic(c *gin.Context) {
	var req ImportRecordTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	pitch, err := h.PitchService.Get(req.PitchID)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	record, err := h.RecordService.SetTopic(pitch.Title)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, record)
}

// DeleteRecord 删除纪录
func (h *Handler) DeleteRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.Response.BadRequest(c, "无效的纪录ID", err.Error())
		return
	}

	if err := h.RecordService.Delete(id); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "纪录已删除")
}

// ------------------------------------------------
// 个人档案

// GetProfile 返回个人档案及登录状态
func (h *Handler) GetProfile(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"profile":   h.ProfileService.GetProfile(),
		"logged_in": h.ProfileService.IsLoggedIn(),
		"user_id":   h.ProfileService.UserID(),
		"qr_code":   h.ProfileService.QRCodeURL(),
	})
}

// UpdateProfile 整体更新个人档案
func (h *Handler) UpdateProfile(c *gin.Context) {
	var profile models.UserProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		h.Response.BadRequest(c, "无效的档案内容", err.Error())
		return
	}

	updated, err := h.ProfileService.UpdateProfile(&profile)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated)
}

// AddCustomFieldRequest 自订栏位请求
type AddCustomFieldRequest struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// AddProfileField 新增档案自订栏位
func (h *Handler) AddProfileField(c *gin.Context) {
	var req AddCustomFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求", err.Error())
		return
	}

	profile, err := h.ProfileService.AddCustomField(req.Label, req.Value)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, profile)
}

// RemoveProfileField 删除档案自订栏位
func (h *Handler) RemoveProfileField(c *gin.Context) {
	profile, err := h.ProfileService.RemoveCustomField(c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, profile)
}

// Login 打开登录能力位，被配额挡下的储存会自动补完
func (h *Handler) Login(c *gin.Context) {
	if err := h.ProfileService.Login(); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"logged_in": true})
}

// Logout 关闭登录能力位
func (h *Handler) Logout(c *gin.Context) {
	if err := h.ProfileService.Logout(); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"logged_in": false})
}

// ------------------------------------------------
// 任务状态

// GetTaskStatus 返回当前是否有生成任务在途
func (h *Handler) GetTaskStatus(c *gin.Context) {
	busy, label := h.TaskGuard.Current()
	h.Response.Success(c, gin.H{"busy": busy, "label": label})
}
