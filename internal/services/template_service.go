// internal/services/template_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/storage"
)

// DefaultTemplateID 规范默认模板，删除当前选中模板后回退到它
const DefaultTemplateID = "default-problem-solution"

// builtinTemplates 内置模板，不落盘、不可编辑、不可删除
var builtinTemplates = []*models.Template{
	{
		ID: DefaultTemplateID, Name: "解決問題型", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "ps1", Label: "核心問題 / 痛點"},
			{ID: "ps2", Label: "您的解決方案"},
			{ID: "ps3", Label: "解決方案如何運作"},
			{ID: "ps4", Label: "帶來的關鍵效益"},
			{ID: "ps5", Label: "行動呼籲 (Call to Action)"},
		},
	},
	{
		ID: "default-visionary", Name: "描繪願景型", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "vis1", Label: "目前的現狀"},
			{ID: "vis2", Label: "未來的願景"},
			{ID: "vis3", Label: "實現願景的途徑"},
			{ID: "vis4", Label: "關鍵第一步"},
			{ID: "vis5", Label: "邀請您加入"},
		},
	},
	{
		ID: "default-product-demo", Name: "產品介紹型", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "pd1", Label: "目標用戶是誰"},
			{ID: "pd2", Label: "用戶遇到的主要挑戰"},
			{ID: "pd3", Label: "產品核心功能展示"},
			{ID: "pd4", Label: "產品如何解決挑戰"},
			{ID: "pd5", Label: "下一步/如何試用"},
		},
	},
	{
		ID: "default-proposal", Name: "專案提案型", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "prop1", Label: "專案目標"},
			{ID: "prop2", Label: "範圍與交付成果"},
			{ID: "prop3", Label: "執行時程"},
			{ID: "prop4", Label: "所需資源與預算"},
			{ID: "prop5", Label: "預期效益"},
		},
	},
	{
		ID: "default-update", Name: "內部進度報告", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "upd1", Label: "專案/任務摘要"},
			{ID: "upd2", Label: "上週進度"},
			{ID: "upd3", Label: "本週計畫"},
			{ID: "upd4", Label: "遇到的挑戰/所需支援"},
		},
	},
	{
		ID: "default-investor", Name: "投資人簡報", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "inv1", Label: "市場痛點"},
			{ID: "inv2", Label: "我們的解方"},
			{ID: "inv3", Label: "市場規模 (TAM, SAM, SOM)"},
			{ID: "inv4", Label: "商業模式"},
			{ID: "inv5", Label: "頂尖團隊"},
			{ID: "inv6", Label: "募資需求與規劃"},
			{ID: "inv7", Label: "行動呼籲 (Call to Action)"},
		},
	},
	{
		ID: "default-sales", Name: "銷售簡報", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "sal1", Label: "客戶的挑戰"},
			{ID: "sal2", Label: "我們的解決方案"},
			{ID: "sal3", Label: "獨特價值主張"},
			{ID: "sal4", Label: "成功案例/數據證明"},
			{ID: "sal5", Label: "行動呼籲 (Call to Action)"},
		},
	},
	{
		ID: "default-networking", Name: "社交自我介紹", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "net1", Label: "我是誰"},
			{ID: "net2", Label: "我在做什麼"},
			{ID: "net3", Label: "我能提供/正在尋找"},
			{ID: "net4", Label: "行動呼籲 (Call to Action)"},
		},
	},
	{
		ID: "default-business-model", Name: "商業模式介紹", IsBuiltin: true,
		Fields: []models.TemplateField{
			{ID: "bm1", Label: "價值主張"},
			{ID: "bm2", Label: "目標客群"},
			{ID: "bm3", Label: "收益流"},
			{ID: "bm4", Label: "關鍵活動"},
			{ID: "bm5", Label: "競爭優勢"},
		},
	},
}

// TemplateService 模板注册表：内置模板加自订模板的统一视图
// 仅自订模板会持久化
type TemplateService struct {
	store *storage.KVStore
	gen   *GenService

	mu     sync.RWMutex
	custom []*models.Template
}

// NewTemplateService 创建模板服务并加载已保存的自订模板
func NewTemplateService(store *storage.KVStore, gen *GenService) (*TemplateService, error) {
	s := &TemplateService{store: store, gen: gen}

	var custom []*models.Template
	if _, err := store.Get(storage.KeyTemplates, &custom); err != nil {
		return nil, fmt.Errorf("加载自订模板失败: %w", err)
	}
	s.custom = custom
	return s, nil
}

// List 返回所有模板，内置在前，自订按创建顺序在后
func (s *TemplateService) List() []*models.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Template, 0, len(builtinTemplates)+len(s.custom))
	for _, t := range builtinTemplates {
		result = append(result, t.Clone())
	}
	for _, t := range s.custom {
		result = append(result, t.Clone())
	}
	return result
}

// Get 按 id 查找模板
func (s *TemplateService) Get(id string) (*models.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.findLocked(id); t != nil {
		return t.Clone(), nil
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到模板: %s", id), nil)
}

// GetOrDefault 按 id 查找，不存在时回退到规范默认模板
func (s *TemplateService) GetOrDefault(id string) *models.Template {
	if t, err := s.Get(id); err == nil {
		return t
	}
	t, _ := s.Get(DefaultTemplateID)
	return t
}

func (s *TemplateService) findLocked(id string) *models.Template {
	for _, t := range builtinTemplates {
		if t.ID == id {
			return t
		}
	}
	for _, t := range s.custom {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Create 新增自订模板
func (s *TemplateService) Create(def *models.Template) (*models.Template, error) {
	if err := validateTemplate(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := def.Clone()
	t.IsBuiltin = false
	if t.ID == "" {
		t.ID = fmt.Sprintf("custom-%d", time.Now().UnixMilli())
	}
	if s.findLocked(t.ID) != nil {
		return nil, apperrors.NewConflictError(fmt.Sprintf("模板 id 已存在: %s", t.ID), nil)
	}
	for i := range t.Fields {
		if t.Fields[i].ID == "" {
			t.Fields[i].ID = "f-" + uuid.NewString()
		}
	}

	s.custom = append(s.custom, t)
	if err := s.persistLocked(); err != nil {
		s.custom = s.custom[:len(s.custom)-1]
		return nil, err
	}
	return t.Clone(), nil
}

// Update 更新自订模板，内置模板不可编辑
func (s *TemplateService) Update(id string, def *models.Template) (*models.Template, error) {
	if err := validateTemplate(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range builtinTemplates {
		if t.ID == id {
			return nil, apperrors.NewImmutableError("內置模板不可編輯", nil)
		}
	}

	for i, t := range s.custom {
		if t.ID == id {
			updated := def.Clone()
			updated.ID = id
			updated.IsBuiltin = false
			for j := range updated.Fields {
				if updated.Fields[j].ID == "" {
					updated.Fields[j].ID = "f-" + uuid.NewString()
				}
			}
			previous := s.custom[i]
			s.custom[i] = updated
			if err := s.persistLocked(); err != nil {
				s.custom[i] = previous
				return nil, err
			}
			return updated.Clone(), nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到模板: %s", id), nil)
}

// Delete 删除自订模板，内置模板不可删除
func (s *TemplateService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range builtinTemplates {
		if t.ID == id {
			return apperrors.NewImmutableError("內置模板不可刪除", nil)
		}
	}

	for i, t := range s.custom {
		if t.ID == id {
			removed := s.custom[i]
			s.custom = append(s.custom[:i], s.custom[i+1:]...)
			if err := s.persistLocked(); err != nil {
				s.custom = append(s.custom[:i], append([]*models.Template{removed}, s.custom[i:]...)...)
				return err
			}
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("找不到模板: %s", id), nil)
}

// ReorderFields 调整自订模板的字段顺序，字段身份不变
func (s *TemplateService) ReorderFields(id string, from, to int) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.findLocked(id)
	if t == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到模板: %s", id), nil)
	}
	if t.IsBuiltin {
		return nil, apperrors.NewImmutableError("內置模板不可編輯", nil)
	}
	if from < 0 || from >= len(t.Fields) || to < 0 || to >= len(t.Fields) {
		return nil, apperrors.NewValidationError("欄位序號超出範圍", nil)
	}
	if from == to {
		return t.Clone(), nil
	}

	fields := make([]models.TemplateField, len(t.Fields))
	copy(fields, t.Fields)
	moved := fields[from]
	fields = append(fields[:from], fields[from+1:]...)
	rest := append([]models.TemplateField{}, fields[to:]...)
	fields = append(append(fields[:to], moved), rest...)

	previous := t.Fields
	t.Fields = fields
	if err := s.persistLocked(); err != nil {
		t.Fields = previous
		return nil, err
	}
	return t.Clone(), nil
}

// SuggestStructure 让 AI 依模板名称建议字段结构，返回全新字段序列
func (s *TemplateService) SuggestStructure(ctx context.Context, templateName string) ([]models.TemplateField, error) {
	if strings.TrimSpace(templateName) == "" {
		return nil, apperrors.NewValidationError("請先為模板命名，AI 才能提供建議", nil)
	}

	labels, err := s.gen.SuggestStructure(ctx, templateName)
	if err != nil {
		return nil, err
	}

	fields := make([]models.TemplateField, 0, len(labels))
	for _, label := range labels {
		fields = append(fields, models.TemplateField{
			ID:    "f-" + uuid.NewString(),
			Label: label,
		})
	}
	return fields, nil
}

// persistLocked 仅持久化自订模板，调用方需持有写锁
func (s *TemplateService) persistLocked() error {
	return s.store.Set(storage.KeyTemplates, s.custom)
}

// validateTemplate 校验模板定义：名称非空且至少一个字段
func validateTemplate(def *models.Template) error {
	if def == nil || strings.TrimSpace(def.Name) == "" {
		return apperrors.NewValidationError("模板名稱不可為空", nil)
	}
	if len(def.Fields) == 0 {
		return apperrors.NewValidationError("模板至少需要一個欄位", nil)
	}
	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if strings.TrimSpace(f.Label) == "" {
			return apperrors.NewValidationError("欄位標籤不可為空", nil)
		}
		if seen[f.Label] {
			return apperrors.NewValidationError(fmt.Sprintf("欄位標籤重複: %s", f.Label), nil)
		}
		seen[f.Label] = true
	}
	return nil
}
