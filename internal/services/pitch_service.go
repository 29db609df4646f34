// internal/services/pitch_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/storage"
	"github.com/Corphon/ElePitch/internal/utils"
)

// 工作流步骤：输入 → 草稿 → 已回馈
const (
	StepInput    = 1
	StepDrafted  = 2
	StepReviewed = 3
)

// 未登录时最多可储存的讲稿数
const freeSaveQuota = 3

// UntitledPitch 储存时无题目也无模板名的兜底标题
const UntitledPitch = "無標題講稿"

// PitchSession 工作流会话状态
// 所有操作显式读写该结构，失败的操作不得改变任何字段
type PitchSession struct {
	Step                int               `json:"step"`
	SelectedTemplateID  string            `json:"selected_template_id"`
	CurrentTemplateName string            `json:"current_template_name"` // 生成当下锁定
	DurationSeconds     int               `json:"duration_seconds"`
	Input               map[string]string `json:"input"` // 字段标签 → 输入内容
	Budget              WordBudget        `json:"budget"`
	SearchTopic         string            `json:"search_topic"`
	GeneratedPitch      string            `json:"generated_pitch"`
	PracticedPitch      string            `json:"practiced_pitch"`
	Feedback            string            `json:"feedback"`
	Sources             []models.Source   `json:"sources,omitempty"`
}

// PitchService 短讲工作流引擎：生成、演练、回馈与储存
type PitchService struct {
	store     *storage.KVStore
	gen       *GenService
	templates *TemplateService
	profile   *ProfileService
	guard     *TaskGuard

	mu      sync.Mutex
	session *PitchSession
	saved   []*models.Pitch

	// 配额挡下的储存，登录成功后自动补完
	pendingSave bool
}

// NewPitchService 创建工作流服务并加载历史讲稿
func NewPitchService(store *storage.KVStore, gen *GenService, templates *TemplateService, profile *ProfileService, guard *TaskGuard) (*PitchService, error) {
	s := &PitchService{
		store:     store,
		gen:       gen,
		templates: templates,
		profile:   profile,
		guard:     guard,
	}

	var saved []*models.Pitch
	if _, err := store.Get(storage.KeyHistory, &saved); err != nil {
		return nil, fmt.Errorf("加载历史讲稿失败: %w", err)
	}
	s.saved = saved

	s.session = s.freshSession()

	// 登录成功后补完被配额挡下的储存
	profile.OnLogin(s.retryPendingSave)
	return s, nil
}

// freshSession 返回回到输入步骤的全新会话
func (s *PitchService) freshSession() *PitchSession {
	template := s.templates.GetOrDefault(DefaultTemplateID)
	session := &PitchSession{
		Step:                StepInput,
		SelectedTemplateID:  template.ID,
		CurrentTemplateName: template.Name,
		DurationSeconds:     60,
		Input:               make(map[string]string, len(template.Fields)),
	}
	for _, field := range template.Fields {
		session.Input[field.Label] = ""
	}
	session.Budget = ComputeBudget(template, session.DurationSeconds)
	return session
}

// Session 返回当前会话的副本
func (s *PitchService) Session() *PitchSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

func (sess *PitchSession) clone() *PitchSession {
	clone := *sess
	clone.Input = make(map[string]string, len(sess.Input))
	for k, v := range sess.Input {
		clone.Input[k] = v
	}
	clone.Budget = make(WordBudget, len(sess.Budget))
	for k, v := range sess.Budget {
		clone.Budget[k] = v
	}
	clone.Sources = append([]models.Source(nil), sess.Sources...)
	return &clone
}

// SelectTemplate 切换模板：重建输入映射并重算字数建议
// 新模板中仍存在的标签保留已输入的内容
func (s *PitchService) SelectTemplate(id string) (*PitchSession, error) {
	template, err := s.templates.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	input := make(map[string]string, len(template.Fields))
	for _, field := range template.Fields {
		input[field.Label] = s.session.Input[field.Label]
	}

	s.session.SelectedTemplateID = template.ID
	s.session.CurrentTemplateName = template.Name
	s.session.Input = input
	s.session.Budget = ComputeBudget(template, s.session.DurationSeconds)
	return s.session.clone(), nil
}

// OnTemplateDeleted 当前选中的模板被删除时回退到规范默认模板
func (s *PitchService) OnTemplateDeleted(deletedID string) {
	s.mu.Lock()
	selected := s.session.SelectedTemplateID
	s.mu.Unlock()

	if selected == deletedID {
		if _, err := s.SelectTemplate(DefaultTemplateID); err != nil {
			utils.GetLogger().Error("回退默认模板失败", map[string]interface{}{"error": err.Error()})
		}
	}
}

// SetDuration 设定演讲时长并重算字数建议，非法输入按 0 处理
func (s *PitchService) SetDuration(seconds int) *PitchSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}
	s.session.DurationSeconds = seconds
	template := s.templates.GetOrDefault(s.session.SelectedTemplateID)
	s.session.Budget = ComputeBudget(template, seconds)
	return s.session.clone()
}

// SetFieldInput 写入某字段的输入内容
func (s *PitchService) SetFieldInput(label, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.session.Input[label]; !ok {
		return apperrors.NewValidationError(fmt.Sprintf("目前模板沒有欄位: %s", label), nil)
	}
	s.session.Input[label] = value
	return nil
}

// SetSearchTopic 设定研究主题，非空时生成走检索落地
func (s *PitchService) SetSearchTopic(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.SearchTopic = topic
}

// Generate 产生讲稿草稿并进入 Drafted 步骤
// 失败时会话状态完全不变
func (s *PitchService) Generate(ctx context.Context) (*PitchSession, error) {
	if err := s.guard.Acquire("生成中..."); err != nil {
		return nil, err
	}

	s.mu.Lock()
	template := s.templates.GetOrDefault(s.session.SelectedTemplateID)
	topic := strings.TrimSpace(s.session.SearchTopic)
	input := make(map[string]string, len(s.session.Input))
	for k, v := range s.session.Input {
		input[k] = v
	}
	budget := s.session.Budget
	seconds := s.session.DurationSeconds
	s.mu.Unlock()

	var result *DraftResult
	var err error
	if topic != "" {
		result, err = s.gen.GeneratePitchFromTopic(ctx, topic, template, seconds)
	} else {
		result, err = s.gen.GeneratePitchFromFields(ctx, template, input, budget, seconds)
	}
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	s.mu.Lock()
	s.session.CurrentTemplateName = template.Name
	s.session.GeneratedPitch = result.Text
	s.session.Sources = result.Sources
	s.session.Step = StepDrafted
	session := s.session.clone()
	s.mu.Unlock()

	s.guard.Release("講稿已生成", false)
	return session, nil
}

// SetPracticedPitch 记录使用者演练版本
func (s *PitchService) SetPracticedPitch(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Step < StepDrafted {
		return apperrors.NewValidationError("請先生成講稿", nil)
	}
	s.session.PracticedPitch = text
	return nil
}

// GetFeedback 取得教练回馈并进入 Reviewed 步骤
// 演练版本为空白时直接返回验证错误，不触达生成服务
func (s *PitchService) GetFeedback(ctx context.Context) (*PitchSession, error) {
	s.mu.Lock()
	if strings.TrimSpace(s.session.PracticedPitch) == "" {
		s.mu.Unlock()
		return nil, apperrors.NewValidationError("請輸入您的演練版本以取得回饋", nil)
	}
	generated := s.session.GeneratedPitch
	practiced := s.session.PracticedPitch
	s.mu.Unlock()

	if err := s.guard.Acquire("分析中..."); err != nil {
		return nil, err
	}

	feedback, err := s.gen.CoachFeedback(ctx, generated, practiced)
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	s.mu.Lock()
	s.session.Feedback = feedback
	s.session.Step = StepReviewed
	session := s.session.clone()
	s.mu.Unlock()

	s.guard.Release("回饋已生成", false)
	return session, nil
}

// Save 储存当前讲稿到历史
// 未登录时最多存 3 篇；超额的储存被挡下并登记，登录成功后自动补完
func (s *PitchService) Save() (*models.Pitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *PitchService) saveLocked() (*models.Pitch, error) {
	if len(s.saved) >= freeSaveQuota && !s.profile.IsLoggedIn() {
		s.pendingSave = true
		return nil, apperrors.NewQuotaError(fmt.Sprintf("儲存 %d 篇以上的講稿需要登入", freeSaveQuota), nil)
	}

	title := strings.TrimSpace(s.session.SearchTopic)
	if title == "" {
		title = s.session.CurrentTemplateName
	}
	if title == "" {
		title = UntitledPitch
	}

	pitch := &models.Pitch{
		ID:             time.Now().UnixMilli(),
		Title:          title,
		GeneratedPitch: s.session.GeneratedPitch,
		PracticedPitch: s.session.PracticedPitch,
		Feedback:       s.session.Feedback,
		Sources:        append([]models.Source(nil), s.session.Sources...),
		TemplateName:   s.session.CurrentTemplateName,
	}

	// 新讲稿排最前
	saved := append([]*models.Pitch{pitch}, s.saved...)
	if err := s.store.Set(storage.KeyHistory, saved); err != nil {
		return nil, err
	}
	s.saved = saved
	s.pendingSave = false
	return pitch, nil
}

// retryPendingSave 登录回调：补完之前被配额挡下的储存
func (s *PitchService) retryPendingSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pendingSave {
		return
	}
	if _, err := s.saveLocked(); err != nil {
		utils.GetLogger().Error("登录后自动储存失败", map[string]interface{}{"error": err.Error()})
		return
	}
	utils.GetLogger().Info("登录后已自动补完储存", nil)
}

// List 返回历史讲稿，新在前
func (s *PitchService) List() []*models.Pitch {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.Pitch, len(s.saved))
	for i, p := range s.saved {
		clone := *p
		result[i] = &clone
	}
	return result
}

// Get 返回指定历史讲稿的副本，不影响当前会话
func (s *PitchService) Get(id int64) (*models.Pitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.saved {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到講稿: %d", id), nil)
}

// Load 打开历史讲稿，会话直接跳到 Reviewed 步骤
func (s *PitchService) Load(id int64) (*PitchSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.saved {
		if p.ID == id {
			session := s.freshSession()
			session.Step = StepReviewed
			session.GeneratedPitch = p.GeneratedPitch
			session.PracticedPitch = p.PracticedPitch
			session.Feedback = p.Feedback
			session.Sources = append([]models.Source(nil), p.Sources...)
			if p.TemplateName != "" {
				session.CurrentTemplateName = p.TemplateName
			} else {
				session.CurrentTemplateName = "未知模板"
			}
			s.session = session
			return session.clone(), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到講稿: %d", id), nil)
}

// Delete 删除历史讲稿
func (s *PitchService) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.saved {
		if p.ID == id {
			saved := append(append([]*models.Pitch{}, s.saved[:i]...), s.saved[i+1:]...)
			if err := s.store.Set(storage.KeyHistory, saved); err != nil {
				return err
			}
			s.saved = saved
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("找不到講稿: %d", id), nil)
}

// Reset 清空会话回到输入步骤，保留模板选择
func (s *PitchService) Reset() *PitchSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := s.session.SelectedTemplateID
	duration := s.session.DurationSeconds
	session := s.freshSession()

	if template, err := s.templates.Get(selected); err == nil {
		session.SelectedTemplateID = template.ID
		session.CurrentTemplateName = template.Name
		session.DurationSeconds = duration
		session.Input = make(map[string]string, len(template.Fields))
		for _, field := range template.Fields {
			session.Input[field.Label] = ""
		}
		session.Budget = ComputeBudget(template, duration)
	}

	s.session = session
	return session.clone()
}
