// internal/models/template.go
package models

// TemplateField 模板中的一个内容栏位
type TemplateField struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Template 短讲模板：有序栏位集合定义讲稿结构
// 内置模板为进程常量，不可编辑或删除
type Template struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	IsBuiltin bool            `json:"is_builtin,omitempty"`
	Fields    []TemplateField `json:"fields"`
}

// Clone 返回模板的深拷贝，避免调用方改动注册表内部状态
func (t *Template) Clone() *Template {
	copied := *t
	copied.Fields = make([]TemplateField, len(t.Fields))
	copy(copied.Fields, t.Fields)
	return &copied
}

// FieldLabels 按顺序返回所有栏位标签
func (t *Template) FieldLabels() []string {
	labels := make([]string, 0, len(t.Fields))
	for _, f := range t.Fields {
		labels = append(labels, f.Label)
	}
	return labels
}
