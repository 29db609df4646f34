// internal/services/budget_test.go
package services

import (
	"math"
	"testing"

	"github.com/Corphon/ElePitch/internal/models"
)

func templateWithFields(labels ...string) *models.Template {
	t := &models.Template{ID: "t", Name: "测试模板"}
	for i, label := range labels {
		t.Fields = append(t.Fields, models.TemplateField{ID: string(rune('a' + i)), Label: label})
	}
	return t
}

// TestFieldWeights 验证各字段数下的权重分配
func TestFieldWeights(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		expect []float64
	}{
		{"单字段独占", 1, []float64{1.0}},
		{"双字段六四分", 2, []float64{0.6, 0.4}},
		{"三字段", 3, []float64{0.15, 0.75, 0.10}},
		{"五字段", 5, []float64{0.15, 0.25, 0.25, 0.25, 0.10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weights := fieldWeights(tt.n)
			if len(weights) != len(tt.expect) {
				t.Fatalf("权重数量不正确，期望: %d，实际: %d", len(tt.expect), len(weights))
			}

			sum := 0.0
			for i, w := range weights {
				if math.Abs(w-tt.expect[i]) > 1e-9 {
					t.Errorf("第 %d 个权重不正确，期望: %v，实际: %v", i, tt.expect[i], w)
				}
				sum += w
			}
			if math.Abs(sum-1.0) > 1e-9 {
				t.Errorf("权重总和应该为 1.0，实际: %v", sum)
			}
		})
	}
}

// TestComputeBudget 验证 90 秒五字段的端到端场景
func TestComputeBudget(t *testing.T) {
	template := templateWithFields("A", "B", "C", "D", "E")
	budget := ComputeBudget(template, 90)

	// 90 秒按每分钟 180 字 => 270 字
	expect := map[string]int{"A": 41, "B": 68, "C": 68, "D": 68, "E": 27}
	for label, words := range expect {
		if budget[label] != words {
			t.Errorf("字段 %s 的建议字数不正确，期望: %d，实际: %d", label, words, budget[label])
		}
	}

	// 各字段独立取整，总和与 270 的偏差不超过字段数
	sum := 0
	for _, words := range budget {
		sum += words
	}
	if diff := sum - 270; diff < -5 || diff > 5 {
		t.Errorf("建议字数总和偏差过大，总和: %d", sum)
	}
}

// TestComputeBudgetSingleField 单字段拿到全部字数
func TestComputeBudgetSingleField(t *testing.T) {
	budget := ComputeBudget(templateWithFields("全部"), 60)
	if budget["全部"] != 180 {
		t.Errorf("单字段应该拿到全部 180 字，实际: %d", budget["全部"])
	}
}

// TestComputeBudgetTwoFields 双字段精确六四分
func TestComputeBudgetTwoFields(t *testing.T) {
	budget := ComputeBudget(templateWithFields("前", "后"), 60)
	if budget["前"] != 108 || budget["后"] != 72 {
		t.Errorf("双字段应该按 108/72 分配，实际: %d/%d", budget["前"], budget["后"])
	}
}

// TestComputeBudgetZeroDuration 时长为 0 返回空预算
func TestComputeBudgetZeroDuration(t *testing.T) {
	budget := ComputeBudget(templateWithFields("A", "B"), 0)
	if len(budget) != 0 {
		t.Errorf("时长为 0 应该返回空预算，实际: %v", budget)
	}
}

// TestComputeBudgetNilTemplate 空模板返回空预算
func TestComputeBudgetNilTemplate(t *testing.T) {
	if budget := ComputeBudget(nil, 60); len(budget) != 0 {
		t.Errorf("空模板应该返回空预算，实际: %v", budget)
	}
}

// TestParseDuration 非法输入一律按 0 处理
func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw    string
		expect int
	}{
		{"60", 60},
		{" 90 ", 90},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"12.5", 0},
	}

	for _, tt := range tests {
		if got := ParseDuration(tt.raw); got != tt.expect {
			t.Errorf("ParseDuration(%q) 期望: %d，实际: %d", tt.raw, tt.expect, got)
		}
	}
}
