// internal/services/gen_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/kaptinlin/jsonrepair"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/llm"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/utils"
)

// GenService 封装生成服务调用
// 统一负责提示词组装、结构化 JSON 输出的清洗与修复、简单的同参缓存
type GenService struct {
	provider      llm.Provider
	providerMutex sync.RWMutex

	cache      map[string]string
	cacheMutex sync.RWMutex
}

// DraftResult 生成讲稿的结果，检索落地时附带来源
type DraftResult struct {
	Text    string          `json:"text"`
	Sources []models.Source `json:"sources,omitempty"`
}

// ShareEligibility 社群分享资格评鉴结果
type ShareEligibility struct {
	Shareable bool   `json:"shareable"`
	Reason    string `json:"reason"`
}

// ShareArtifact 分享流水线第二阶段产出：标题、摘要与配图提示词
type ShareArtifact struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	ImagePrompt string `json:"imagePrompt"`
}

// RecordEvaluation 演练纪录的 AI 评鉴结果
type RecordEvaluation struct {
	Scores   models.Scores `json:"scores"`
	Feedback string        `json:"feedback"`
}

// NewGenService 创建生成服务
func NewGenService(provider llm.Provider) *GenService {
	return &GenService{
		provider: provider,
		cache:    make(map[string]string),
	}
}

// SetProvider 切换底层提供商（线程安全）
func (s *GenService) SetProvider(provider llm.Provider) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()
	s.provider = provider
}

// IsReady 检查是否已配置提供商
func (s *GenService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil
}

func (s *GenService) currentProvider() (llm.Provider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider == nil {
		return nil, apperrors.NewGenerationError("生成服務尚未就緒，請先設定 API 金鑰", nil)
	}
	return s.provider, nil
}

// GeneratePitchFromFields 依模板字段内容撰写讲稿
func (s *GenService) GeneratePitchFromFields(ctx context.Context, template *models.Template, input map[string]string, budget WordBudget, totalSeconds int) (*DraftResult, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	var fieldLines []string
	for _, field := range template.Fields {
		suggestion := "N/A"
		if words, ok := budget[field.Label]; ok && words > 0 {
			suggestion = fmt.Sprintf("%d", words)
		}
		content := input[field.Label]
		if strings.TrimSpace(content) == "" {
			content = "(未填寫)"
		}
		fieldLines = append(fieldLines, fmt.Sprintf("- %s (建議約 %s 字): %s", field.Label, suggestion, content))
	}

	prompt := fmt.Sprintf("你是一位頂尖的商業演說教練。請根據以下資訊，撰寫一份專業、自信且極具說服力的電梯短講。\n\n- 短講模板名稱: %s\n- 演講長度限制: %d秒\n- 結構重點與字數分配:\n%s\n\n請確保講稿結構清晰，包含引人入勝的開場、清晰的問題陳述、具體的解決方案、獨特的價值主張，以及明確的行動呼籲。根據選擇的「短講模板名稱」，調整語氣和結構，並嚴格遵守各段落的建議字數，確保總長度符合 %d 秒的限制。",
		template.Name, totalSeconds, strings.Join(fieldLines, "\n"), totalSeconds)

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{Prompt: prompt})
	if err != nil {
		return nil, apperrors.NewGenerationError("生成講稿失敗", err)
	}

	return &DraftResult{Text: resp.Text}, nil
}

// GeneratePitchFromTopic 以检索落地的方式研究主题并撰写讲稿
func (s *GenService) GeneratePitchFromTopic(ctx context.Context, topic string, template *models.Template, totalSeconds int) (*DraftResult, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("你是一位頂尖的研究員與商業演說撰稿人。請使用 Google 搜尋，深入研究以下主題，並根據研究結果，為我撰寫一份專業的電梯短講。\n\n- **研究主題:** %s\n- **短講模板:** %s\n- **演講長度:** %d 秒\n\n請將搜尋到的資料，有組織地填充進「%s」模板的結構中。講稿內容必須完全基於搜尋到的事實，並確保流暢、有說服力且符合指定的演講長度。",
		topic, template.Name, totalSeconds, template.Name)

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:         prompt,
		GroundedSearch: true,
	})
	if err != nil {
		return nil, apperrors.NewGenerationError("主題研究生成失敗", err)
	}

	sources := make([]models.Source, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		sources = append(sources, models.Source{URI: src.URI, Title: src.Title})
	}
	return &DraftResult{Text: resp.Text, Sources: sources}, nil
}

// CoachFeedback 比较 AI 建议稿与使用者演练版，给出教练回馈
func (s *GenService) CoachFeedback(ctx context.Context, generatedPitch, practicedPitch string) (string, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("你是一位經驗豐富的演講教練。請比較以下的「AI建議講稿」和「使用者演練版本」。針對「使用者演練版本」，請提供具體、有建設性的回饋。\n\n分析重點：\n1.  **結構與流暢度**\n2.  **說服力與影響力**\n3.  **清晰度與簡潔性**\n4.  **行動呼籲強度**\n\n請用以下格式回覆，並使用繁體中文：\n### 優點分析\n- (列點說明做得好的地方)\n\n### 可改進之處\n- (列點說明可以如何修改，並提供修改後的範例句)\n\n---\n**AI建議講稿:**\n%s\n\n---\n**使用者演練版本:**\n%s",
		generatedPitch, practicedPitch)

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{Prompt: prompt})
	if err != nil {
		return "", apperrors.NewGenerationError("取得回饋時發生錯誤", err)
	}
	return resp.Text, nil
}

// EvaluateShareability 分享流水线第一阶段：评鉴短讲是否适合公开
func (s *GenService) EvaluateShareability(ctx context.Context, practicedPitch, feedback string) (*ShareEligibility, error) {
	prompt := fmt.Sprintf("You are a community manager. Is the following pitch (considering the user's version and the coach's feedback) of high quality and suitable for sharing in a public community of professionals? Respond in JSON.\n\nUser's Pitch:\n%s\n\nFeedback:\n%s",
		practicedPitch, feedback)

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"shareable": map[string]interface{}{"type": "boolean"},
			"reason":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"shareable", "reason"},
	}

	result := &ShareEligibility{}
	if err := s.CreateStructuredCompletion(ctx, prompt, "", schema, result); err != nil {
		return nil, apperrors.NewGenerationError("AI 評鑑失敗", err)
	}
	return result, nil
}

// BuildShareArtifact 分享流水线第二阶段：生成标题、摘要与英文配图提示词
func (s *GenService) BuildShareArtifact(ctx context.Context, practicedPitch string) (*ShareArtifact, error) {
	prompt := fmt.Sprintf(`You are a creative director AI specializing in branding and visual storytelling. Your task is to process a pitch and generate content for a professional community platform.

**Analyze the following pitch:**
%s

**Based on your analysis, provide a JSON object with the following three keys:**

1.  **"title"**: A short, catchy, and professional title for the pitch. **This MUST be in Traditional Chinese (繁體中文).**
2.  **"summary"**: A concise one-sentence summary (under 25 words) that captures the core message. **This MUST be in Traditional Chinese (繁體中文).**
3.  **"imagePrompt"**: A detailed, vivid, and descriptive prompt in **English** for an image generation AI. The prompt should:
    *   Metaphorically represent the pitch's core idea, essence, or feeling.
    *   Adhere to a professional and modern business aesthetic. Think minimalist, abstract, and high-concept.
    *   Use keywords like 'corporate', 'professional', 'sleek', 'futuristic', 'abstract visualization', 'data art', 'conceptual art'.
    *   Avoid literal depictions of people or objects unless it's a core, unavoidable part of the concept.

**Respond ONLY with the JSON object.**`, practicedPitch)

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title":       map[string]interface{}{"type": "string"},
			"summary":     map[string]interface{}{"type": "string"},
			"imagePrompt": map[string]interface{}{"type": "string"},
		},
		"required": []string{"title", "summary", "imagePrompt"},
	}

	artifact := &ShareArtifact{}
	if err := s.CreateStructuredCompletion(ctx, prompt, "", schema, artifact); err != nil {
		return nil, apperrors.NewGenerationError("生成摘要與圖片提示失敗", err)
	}
	if artifact.Title == "" || artifact.ImagePrompt == "" {
		return nil, apperrors.NewGenerationError("分享素材不完整", nil)
	}
	return artifact, nil
}

// GenerateShareImage 生成社群分享配图，返回 data URL
func (s *GenService) GenerateShareImage(ctx context.Context, imagePrompt string) (string, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return "", err
	}

	resp, err := provider.GenerateImage(ctx, llm.ImageRequest{
		Prompt:   imagePrompt,
		MIMEType: "image/jpeg",
	})
	if err != nil {
		return "", apperrors.NewGenerationError("生成分享圖片失敗", err)
	}
	if len(resp.Data) == 0 {
		return "", apperrors.NewGenerationError("圖片生成服務未返回任何圖片", nil)
	}

	mime := resp.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(resp.Data)), nil
}

// Transcribe 将录音内容转写为繁体中文逐字稿
func (s *GenService) Transcribe(ctx context.Context, audioBase64, mimeType string) (string, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:        "請將以下音檔內容逐字稿輸出為繁體中文。",
		AudioBase64:   audioBase64,
		AudioMIMEType: mimeType,
	})
	if err != nil {
		return "", apperrors.NewGenerationError("轉錄失敗", err)
	}
	return resp.Text, nil
}

// EvaluateRecord 依逐字稿对演练做五维评分并给出综合评语
func (s *GenService) EvaluateRecord(ctx context.Context, transcription string) (*RecordEvaluation, error) {
	prompt := fmt.Sprintf("你是一位專業的演講教練。請根據以下講稿逐字稿，從五個維度進行評分(1-5分)，並提供綜合評語。\n\n**逐字稿:**\n%s\n\n**評分維度:**\n- **吸引聽眾 (Audience Engagement):** 內容是否有趣、引人入勝？\n- **口條流暢 (Fluency):** 語氣、節奏和流暢度如何？(從文字推斷)\n- **肢體動作 (Body Language):** (從文字中的停頓、贅字推斷講者的自信與姿態)\n- **架構明確 (Clear Structure):** 內容組織是否有邏輯？\n- **時間掌握 (Time Management):** (從內容長度推斷) 是否簡潔有力？\n\n請以 JSON 格式回覆。", transcription)

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"scores": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"audience_engagement": map[string]interface{}{"type": "integer", "description": "分數 1-5"},
					"fluency":             map[string]interface{}{"type": "integer", "description": "分數 1-5"},
					"body_language":       map[string]interface{}{"type": "integer", "description": "分數 1-5"},
					"structure":           map[string]interface{}{"type": "integer", "description": "分數 1-5"},
					"time_management":     map[string]interface{}{"type": "integer", "description": "分數 1-5"},
				},
			},
			"feedback": map[string]interface{}{"type": "string", "description": "綜合評語(繁體中文)"},
		},
		"required": []string{"scores", "feedback"},
	}

	result := &RecordEvaluation{}
	if err := s.CreateStructuredCompletion(ctx, prompt, "", schema, result); err != nil {
		return nil, apperrors.NewGenerationError("AI 評鑑失敗", err)
	}
	if !result.Scores.InRange() {
		return nil, apperrors.NewGenerationError("評分超出 1-5 範圍", nil)
	}
	return result, nil
}

// SuggestStructure 依模板名称建议一组专业的字段标签
func (s *GenService) SuggestStructure(ctx context.Context, templateName string) ([]string, error) {
	prompt := fmt.Sprintf(`You are an expert in business communication. For a pitch template named "%s", suggest a concise, professional list of field labels for the structure.`, templateName)

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fields": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required": []string{"fields"},
	}

	var result struct {
		Fields []string `json:"fields"`
	}
	if err := s.CreateStructuredCompletion(ctx, prompt, "", schema, &result); err != nil {
		return nil, apperrors.NewGenerationError("AI 建議生成失敗", err)
	}
	if len(result.Fields) == 0 {
		return nil, apperrors.NewGenerationError("AI 未能提供有效的欄位建議", nil)
	}
	return result.Fields, nil
}

// CreateStructuredCompletion 请求结构化输出并解析到 out 中
// 先做本地清洗，解析失败时再尝试 JSON 修复，两者都失败才报错
func (s *GenService) CreateStructuredCompletion(ctx context.Context, prompt string, systemPrompt string, schema map[string]interface{}, out interface{}) error {
	provider, err := s.currentProvider()
	if err != nil {
		return err
	}

	cacheKey := s.generateCacheKey(prompt, systemPrompt)
	if cached, ok := s.checkCache(cacheKey); ok {
		if json.Unmarshal([]byte(cached), out) == nil {
			return nil
		}
	}

	structuredSystem := systemPrompt
	if structuredSystem != "" {
		structuredSystem += "\n\n"
	}
	structuredSystem += "Return your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   structuredSystem,
		Temperature:    0.3,
		ResponseSchema: schema,
	})
	if err != nil {
		return err
	}

	text := cleanJSONString(resp.Text)
	if err := json.Unmarshal([]byte(text), out); err != nil {
		// 清洗后仍不可解析，尝试结构修复
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return fmt.Errorf("failed to parse AI response into structured data: %w\nAI return: %s", err, text)
		}
		if err := json.Unmarshal([]byte(repaired), out); err != nil {
			return fmt.Errorf("failed to parse AI response into structured data: %w\nAI return: %s", err, text)
		}
		text = repaired
		utils.GetLogger().Warn("结构化输出经修复后才可解析", map[string]interface{}{
			"prompt_prefix": truncateForLog(prompt, 40),
		})
	}

	s.saveToCache(cacheKey, text)
	return nil
}

func (s *GenService) generateCacheKey(prompt, systemPrompt string) string {
	sum := sha256.Sum256([]byte(prompt + "\x00" + systemPrompt))
	return hex.EncodeToString(sum[:])
}

func (s *GenService) checkCache(key string) (string, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	value, ok := s.cache[key]
	return value, ok
}

func (s *GenService) saveToCache(key, value string) {
	s.cacheMutex.Lock()
	defer s.cacheMutex.Unlock()
	s.cache[key] = value
}

func truncateForLog(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// 清理JSON字符串，去除前后非JSON内容
var jsonNoiseReplacer = strings.NewReplacer(
	"```json", "",
	"```", "",
	"\uFEFF", "",
	" ", " ",
	" ", "\n",
	" ", "\n",
)

func cleanJSONString(s string) string {
	if s == "" {
		return s
	}

	s = jsonNoiseReplacer.Replace(s)
	s = strings.TrimSpace(s)

	// 移除零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '​', '‌', '‍', '⁠', '\uFEFF':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	// 查找第一个 { 或 [，将其之前的内容全部丢弃
	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = strings.TrimSpace(s[start:])
	if s == "" {
		return s
	}

	isArray := s[0] == '['

	// 简单的括号计数匹配
	balance := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		char := s[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}

		if !inString {
			if isArray {
				if char == '[' {
					balance++
				} else if char == ']' {
					balance--
				}
			} else {
				if char == '{' {
					balance++
				} else if char == '}' {
					balance--
				}
			}

			if balance == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// 没找到匹配的结束符，回退为截到最后一个结束符
	end := -1
	if isArray {
		end = strings.LastIndex(s, "]")
	} else {
		end = strings.LastIndex(s, "}")
	}
	if end != -1 {
		return strings.TrimSpace(s[:end+1])
	}
	return strings.TrimSpace(s)
}
