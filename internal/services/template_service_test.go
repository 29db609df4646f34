// internal/services/template_service_test.go
package services

import (
	"context"
	"testing"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/llm"
	"github.com/Corphon/ElePitch/internal/models"
)

// TestListIncludesBuiltins 列表包含全部内置模板
func TestListIncludesBuiltins(t *testing.T) {
	env := newTestEnv(t)

	templates := env.templates.List()
	if len(templates) != 9 {
		t.Fatalf("应该有 9 个内置模板，实际: %d", len(templates))
	}
	for _, template := range templates {
		if !template.IsBuiltin {
			t.Errorf("模板 %s 应该标记为内置", template.ID)
		}
		if len(template.Fields) == 0 {
			t.Errorf("模板 %s 应该至少有一个字段", template.ID)
		}
	}
}

// TestBuiltinImmutable 内置模板不可编辑、不可删除
func TestBuiltinImmutable(t *testing.T) {
	env := newTestEnv(t)

	def := &models.Template{Name: "改名", Fields: []models.TemplateField{{Label: "字段"}}}
	if _, err := env.templates.Update(DefaultTemplateID, def); !apperrors.IsImmutableError(err) {
		t.Errorf("编辑内置模板应该返回不可变错误，实际: %v", err)
	}
	if err := env.templates.Delete(DefaultTemplateID); !apperrors.IsImmutableError(err) {
		t.Errorf("删除内置模板应该返回不可变错误，实际: %v", err)
	}
}

// TestCreateTemplateValidation 名称与字段的校验
func TestCreateTemplateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		def  *models.Template
	}{
		{"空名称", &models.Template{Name: "  ", Fields: []models.TemplateField{{Label: "字段"}}}},
		{"无字段", &models.Template{Name: "模板"}},
		{"空字段标签", &models.Template{Name: "模板", Fields: []models.TemplateField{{Label: ""}}}},
		{"重复字段标签", &models.Template{Name: "模板", Fields: []models.TemplateField{{Label: "同名"}, {Label: "同名"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.templates.Create(tt.def); !apperrors.IsValidationError(err) {
				t.Errorf("应该返回验证错误，实际: %v", err)
			}
		})
	}
}

// TestCustomTemplateLifecycle 自订模板的增改删与持久化
func TestCustomTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.templates.Create(&models.Template{
		Name:   "电梯演讲",
		Fields: []models.TemplateField{{Label: "开场"}, {Label: "重点"}, {Label: "收尾"}},
	})
	if err != nil {
		t.Fatalf("创建模板失败: %v", err)
	}
	if created.IsBuiltin {
		t.Error("自订模板不应该标记为内置")
	}
	for _, f := range created.Fields {
		if f.ID == "" {
			t.Error("创建时应该为字段补上 id")
		}
	}

	updated, err := env.templates.Update(created.ID, &models.Template{
		Name:   "电梯演讲 v2",
		Fields: []models.TemplateField{{Label: "开场白"}},
	})
	if err != nil {
		t.Fatalf("更新模板失败: %v", err)
	}
	if updated.Name != "电梯演讲 v2" || len(updated.Fields) != 1 {
		t.Errorf("更新结果不正确: %+v", updated)
	}

	// 重新加载验证仅自订模板被持久化
	reloaded, err := NewTemplateService(env.store, env.gen)
	if err != nil {
		t.Fatalf("重新加载模板服务失败: %v", err)
	}
	if len(reloaded.List()) != 10 {
		t.Errorf("重载后应该有 9 内置 + 1 自订，实际: %d", len(reloaded.List()))
	}
	if _, err := reloaded.Get(created.ID); err != nil {
		t.Errorf("重载后自订模板应该存在: %v", err)
	}

	if err := env.templates.Delete(created.ID); err != nil {
		t.Fatalf("删除模板失败: %v", err)
	}
	if _, err := env.templates.Get(created.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("删除后查询应该返回未找到，实际: %v", err)
	}
}

// TestReorderFields 字段重排是纯顺序操作，身份不变
func TestReorderFields(t *testing.T) {
	env := newTestEnv(t)

	created, err := env.templates.Create(&models.Template{
		Name:   "排序测试",
		Fields: []models.TemplateField{{Label: "一"}, {Label: "二"}, {Label: "三"}},
	})
	if err != nil {
		t.Fatalf("创建模板失败: %v", err)
	}
	firstID := created.Fields[0].ID

	reordered, err := env.templates.ReorderFields(created.ID, 0, 2)
	if err != nil {
		t.Fatalf("字段重排失败: %v", err)
	}

	labels := []string{reordered.Fields[0].Label, reordered.Fields[1].Label, reordered.Fields[2].Label}
	if labels[0] != "二" || labels[1] != "三" || labels[2] != "一" {
		t.Errorf("重排结果不正确: %v", labels)
	}
	if reordered.Fields[2].ID != firstID {
		t.Error("重排后字段 id 应该跟随字段移动")
	}

	if _, err := env.templates.ReorderFields(created.ID, 0, 9); !apperrors.IsValidationError(err) {
		t.Errorf("越界重排应该返回验证错误，实际: %v", err)
	}
}

// TestSuggestStructure AI 字段建议生成全新字段序列
func TestSuggestStructure(t *testing.T) {
	env := newTestEnv(t)
	env.provider.completeFn = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return structuredJSON(`{"fields": ["问题", "方案", "呼吁"]}`), nil
	}

	fields, err := env.templates.SuggestStructure(context.Background(), "销售提案")
	if err != nil {
		t.Fatalf("字段建议失败: %v", err)
	}
	if len(fields) != 3 {
		t.Fatalf("应该返回 3 个字段，实际: %d", len(fields))
	}
	for _, f := range fields {
		if f.ID == "" {
			t.Error("建议的字段应该带有 id")
		}
	}

	if _, err := env.templates.SuggestStructure(context.Background(), "  "); !apperrors.IsValidationError(err) {
		t.Errorf("空名称应该返回验证错误，实际: %v", err)
	}
}

// TestGetOrDefaultFallsBack 未知 id 回退到默认模板
func TestGetOrDefaultFallsBack(t *testing.T) {
	env := newTestEnv(t)

	template := env.templates.GetOrDefault("不存在的模板")
	if template == nil || template.ID != DefaultTemplateID {
		t.Errorf("未知 id 应该回退到默认模板，实际: %+v", template)
	}
}
