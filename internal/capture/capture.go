// internal/capture/capture.go
package capture

import (
	"context"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
)

// AudioClip 一段已采集的音频
type AudioClip struct {
	Base64   string `json:"base64"`    // 不含 data: 前缀的纯 base64 数据
	MIMEType string `json:"mime_type"` // 如 audio/webm、audio/wav
	DataURL  string `json:"data_url"`  // 带前缀的数据 URL，便于前端回放
}

// Photo 一张已采集的照片
type Photo struct {
	DataURL string `json:"data_url"`
}

// Recorder 媒体采集协作方接口
// 实际采集发生在浏览器端，服务端通过该接口接收结果或宣告能力缺失
type Recorder interface {
	// RecordAudio 采集一段音频，采集失败或设备不可用时返回 CaptureError
	RecordAudio(ctx context.Context) (*AudioClip, error)

	// TakePhoto 拍摄一张照片
	TakePhoto(ctx context.Context) (*Photo, error)
}

// UnavailableRecorder 无采集设备时的占位实现
// 服务端独立运行时没有麦克风与摄像头，所有采集请求都以 CaptureError 告终，
// 上层据此维持当前状态不变
type UnavailableRecorder struct{}

// NewUnavailableRecorder 创建占位采集器
func NewUnavailableRecorder() *UnavailableRecorder {
	return &UnavailableRecorder{}
}

// RecordAudio 实现 Recorder 接口
func (r *UnavailableRecorder) RecordAudio(ctx context.Context) (*AudioClip, error) {
	return nil, apperrors.NewCaptureError("無法啟動錄音，請確認已授權麥克風", nil)
}

// TakePhoto 实现 Recorder 接口
func (r *UnavailableRecorder) TakePhoto(ctx context.Context) (*Photo, error) {
	return nil, apperrors.NewCaptureError("無法啟動相機，請確認已授權攝影機", nil)
}
