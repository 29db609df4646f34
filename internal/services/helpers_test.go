// internal/services/helpers_test.go
package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Corphon/ElePitch/internal/capture"
	"github.com/Corphon/ElePitch/internal/llm"
	"github.com/Corphon/ElePitch/internal/storage"
)

// fakeProvider 可编程的假提供商，记录调用次数
type fakeProvider struct {
	mu            sync.Mutex
	completeFn    func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	imageFn       func(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error)
	completeCalls int
	imageCalls    int
}

func (f *fakeProvider) Initialize(config map[string]string) error { return nil }
func (f *fakeProvider) GetName() string                           { return "fake" }
func (f *fakeProvider) GetSupportedModels() []string              { return []string{"fake-model"} }

func (f *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.mu.Lock()
	f.completeCalls++
	f.mu.Unlock()
	if f.completeFn != nil {
		return f.completeFn(ctx, req)
	}
	return &llm.CompletionResponse{Text: "生成的讲稿内容"}, nil
}

func (f *fakeProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	if f.imageFn != nil {
		return f.imageFn(ctx, req)
	}
	return &llm.ImageResponse{Data: []byte{0xFF, 0xD8}, MIMEType: "image/jpeg"}, nil
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completeCalls, f.imageCalls
}

// fakeRecorder 返回预设采集结果的假采集器
type fakeRecorder struct {
	clip  *capture.AudioClip
	photo *capture.Photo
	err   error
}

func (f *fakeRecorder) RecordAudio(ctx context.Context) (*capture.AudioClip, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clip, nil
}

func (f *fakeRecorder) TakePhoto(ctx context.Context) (*capture.Photo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.photo, nil
}

// testEnv 一套接上假提供商的完整服务
type testEnv struct {
	store     *storage.KVStore
	provider  *fakeProvider
	gen       *GenService
	guard     *TaskGuard
	templates *TemplateService
	profile   *ProfileService
	pitch     *PitchService
	share     *ShareService
	records   *RecordService
}

// newTestEnv 在临时目录上搭建全部服务
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewKVStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}

	provider := &fakeProvider{}
	gen := NewGenService(provider)
	guard := NewTaskGuard()

	templates, err := NewTemplateService(store, gen)
	if err != nil {
		t.Fatalf("创建模板服务失败: %v", err)
	}

	profile, err := NewProfileService(store, "https://api.qrserver.com/v1/create-qr-code/")
	if err != nil {
		t.Fatalf("创建档案服务失败: %v", err)
	}

	pitch, err := NewPitchService(store, gen, templates, profile, guard)
	if err != nil {
		t.Fatalf("创建工作流服务失败: %v", err)
	}

	share, err := NewShareService(store, gen, pitch, profile, guard)
	if err != nil {
		t.Fatalf("创建分享服务失败: %v", err)
	}

	records, err := NewRecordService(store, gen, &fakeRecorder{}, guard)
	if err != nil {
		t.Fatalf("创建纪录服务失败: %v", err)
	}

	return &testEnv{
		store:     store,
		provider:  provider,
		gen:       gen,
		guard:     guard,
		templates: templates,
		profile:   profile,
		pitch:     pitch,
		share:     share,
		records:   records,
	}
}

// reachStepReviewed 走完生成与回馈，把会话推进到第三步
func (env *testEnv) reachStepReviewed(t *testing.T) {
	t.Helper()

	if _, err := env.pitch.Generate(context.Background()); err != nil {
		t.Fatalf("生成讲稿失败: %v", err)
	}
	if err := env.pitch.SetPracticedPitch("我的演练版本"); err != nil {
		t.Fatalf("设置演练版本失败: %v", err)
	}
	if _, err := env.pitch.GetFeedback(context.Background()); err != nil {
		t.Fatalf("取得回馈失败: %v", err)
	}
}

// structuredJSON 便于 fakeProvider 返回结构化输出
func structuredJSON(format string, args ...interface{}) *llm.CompletionResponse {
	return &llm.CompletionResponse{Text: fmt.Sprintf(format, args...)}
}
