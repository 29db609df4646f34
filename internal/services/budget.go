// internal/services/budget.go
package services

import (
	"math"
	"strconv"
	"strings"

	"github.com/Corphon/ElePitch/internal/models"
)

// 语速基准：每分钟 180 字
const wordsPerMinute = 180

// 字数权重常量（字段数大于 2 时生效）
const (
	openingWeight = 0.15
	closingWeight = 0.10
)

// WordBudget 按字段标签给出的建议字数
type WordBudget map[string]int

// ComputeBudget 根据演讲时长与模板字段结构计算各段建议字数
// 纯函数：模板或时长变化后由调用方重新计算
// 每个字段独立取整，不做跨字段的归一化修正，总和允许有小幅舍入偏差
func ComputeBudget(template *models.Template, totalSeconds int) WordBudget {
	budget := WordBudget{}
	if template == nil || totalSeconds <= 0 || len(template.Fields) == 0 {
		return budget
	}

	totalWords := math.Round(float64(totalSeconds) / 60.0 * wordsPerMinute)
	weights := fieldWeights(len(template.Fields))

	for i, field := range template.Fields {
		budget[field.Label] = int(math.Round(totalWords * weights[i]))
	}
	return budget
}

// fieldWeights 按字段数分配权重
// 1 个字段独占全部；2 个字段按 6:4；更多字段时开场 15%、收尾 10%，中段均分剩余 75%
func fieldWeights(n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{1.0}
	case n == 2:
		return []float64{0.6, 0.4}
	default:
		weights := make([]float64, 0, n)
		middle := (1.0 - openingWeight - closingWeight) / float64(n-2)
		weights = append(weights, openingWeight)
		for i := 0; i < n-2; i++ {
			weights = append(weights, middle)
		}
		weights = append(weights, closingWeight)
		return weights
	}
}

// ParseDuration 解析自订时长输入，空白、非数字或负数一律按 0 处理
func ParseDuration(raw string) int {
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
