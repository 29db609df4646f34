// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
)

// 错误定义
var ErrUnknownProvider = errors.New("未知的AI提供者")

// Source 检索落地返回的引用来源
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// CompletionRequest 请求参数标准化
// GroundedSearch 要求提供商以检索结果为依据生成并回传来源；
// ResponseSchema 非空时要求回传符合该结构的纯 JSON；
// AudioBase64 非空时把音频作为多模态输入附在提示之后
type CompletionRequest struct {
	Prompt         string                 `json:"prompt"`
	SystemPrompt   string                 `json:"system_prompt,omitempty"`
	Model          string                 `json:"model,omitempty"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Temperature    float32                `json:"temperature,omitempty"`
	GroundedSearch bool                   `json:"grounded_search,omitempty"`
	ResponseSchema map[string]interface{} `json:"response_schema,omitempty"`
	AudioBase64    string                 `json:"audio_base64,omitempty"`
	AudioMIMEType  string                 `json:"audio_mime_type,omitempty"`
}

// CompletionResponse 响应结构标准化
type CompletionResponse struct {
	Text         string   `json:"text"`
	Sources      []Source `json:"sources,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
	TokensUsed   int      `json:"tokens_used,omitempty"`
	ModelName    string   `json:"model_name,omitempty"`
	ProviderName string   `json:"provider_name,omitempty"`
}

// ImageRequest 图片生成请求
type ImageRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model,omitempty"`
	MIMEType string `json:"mime_type,omitempty"` // 默认 image/jpeg
}

// ImageResponse 图片生成响应
type ImageResponse struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mime_type"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成（含检索落地、结构化输出与音频转写输入）
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// 图片生成
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// 注册表和工厂函数类型
type ProviderFactory func() Provider

var providers = make(map[string]ProviderFactory)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	factory, exists := providers[name]
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	err := provider.Initialize(config)
	return provider, err
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	return names
}
