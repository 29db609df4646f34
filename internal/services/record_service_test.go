// internal/services/record_service_test.go
package services

import (
	"context"
	"testing"

	"github.com/Corphon/ElePitch/internal/capture"
	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/llm"
	"github.com/Corphon/ElePitch/internal/models"
)

// TestNewDraftDefaults 新草稿的默认值
func TestNewDraftDefaults(t *testing.T) {
	env := newTestEnv(t)

	record, err := env.records.NewDraft(models.RecordTypeSelf)
	if err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	if record.Speaker != "我" {
		t.Errorf("自己的演练讲者应该默认为「我」，实际: %s", record.Speaker)
	}
	if record.AIScores != models.DefaultScores() || record.ManualScores != models.DefaultScores() {
		t.Error("新草稿的双轨评分应该从中值起步")
	}
	if len(env.records.List("")) != 0 {
		t.Error("草稿在关闭编辑器前不应该进入列表")
	}

	if _, err := env.records.NewDraft("unknown"); !apperrors.IsValidationError(err) {
		t.Errorf("未知纪录类型应该返回验证错误，实际: %v", err)
	}
}

// TestCloseCommitsEmptyDraft 关闭编辑器时草稿入列，空纪录同样保留
func TestCloseCommitsEmptyDraft(t *testing.T) {
	env := newTestEnv(t)

	draft, err := env.records.NewDraft(models.RecordTypeOther)
	if err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	if err := env.records.Close(); err != nil {
		t.Fatalf("关闭编辑器失败: %v", err)
	}

	records := env.records.List("")
	if len(records) != 1 || records[0].ID != draft.ID {
		t.Fatalf("空草稿关闭后应该进入列表: %+v", records)
	}
	if env.records.Editing() != nil {
		t.Error("关闭后不应该有编辑中的纪录")
	}

	// 重新加载验证已持久化
	reloaded, err := NewRecordService(env.store, env.gen, &fakeRecorder{}, env.guard)
	if err != nil {
		t.Fatalf("重新加载纪录服务失败: %v", err)
	}
	if len(reloaded.List("")) != 1 {
		t.Error("关闭后纪录应该已落盘")
	}
}

// TestAutoPersistAfterClose 已入列纪录的编辑自动落盘
func TestAutoPersistAfterClose(t *testing.T) {
	env := newTestEnv(t)

	draft, err := env.records.NewDraft(models.RecordTypeSelf)
	if err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}
	if err := env.records.Close(); err != nil {
		t.Fatalf("关闭编辑器失败: %v", err)
	}

	if _, err := env.records.Open(draft.ID); err != nil {
		t.Fatalf("打开纪录失败: %v", err)
	}
	if _, err := env.records.SetTopic("季度汇报演练"); err != nil {
		t.Fatalf("更新题目失败: %v", err)
	}

	// 不关闭编辑器直接重载，修改应该已落盘
	reloaded, err := NewRecordService(env.store, env.gen, &fakeRecorder{}, env.guard)
	if err != nil {
		t.Fatalf("重新加载纪录服务失败: %v", err)
	}
	records := reloaded.List("")
	if len(records) != 1 || records[0].Topic != "季度汇报演练" {
		t.Errorf("已入列纪录的编辑应该自动落盘: %+v", records)
	}
}

// TestTranscribeRequiresAudio 没有录音时转写直接报错
func TestTranscribeRequiresAudio(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	before, _ := env.provider.calls()
	if _, err := env.records.Transcribe(context.Background()); !apperrors.IsValidationError(err) {
		t.Fatalf("无录音转写应该返回验证错误，实际: %v", err)
	}
	if after, _ := env.provider.calls(); after != before {
		t.Error("验证失败时不应该调用生成服务")
	}
}

// TestTranscribeAndEvaluate 转写后评鉴，AI 评分同步到手动轨
func TestTranscribeAndEvaluate(t *testing.T) {
	env := newTestEnv(t)
	env.provider.completeFn = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.AudioBase64 != "" {
			return &llm.CompletionResponse{Text: "各位好，今天我想谈谈我们的新方案。"}, nil
		}
		return structuredJSON(`{"scores": {"audience_engagement": 4, "fluency": 5, "body_language": 3, "structure": 4, "time_management": 2}, "feedback": "整体表现不错"}`), nil
	}

	if _, err := env.records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}
	if _, err := env.records.AttachAudio(&capture.AudioClip{Base64: "ZmFrZQ==", MIMEType: "audio/webm"}); err != nil {
		t.Fatalf("挂载录音失败: %v", err)
	}

	record, err := env.records.Transcribe(context.Background())
	if err != nil {
		t.Fatalf("转写失败: %v", err)
	}
	if record.Transcription == "" {
		t.Fatal("转写后逐字稿不应该为空")
	}

	record, err = env.records.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("评鉴失败: %v", err)
	}

	expected := models.Scores{AudienceEngagement: 4, Fluency: 5, BodyLanguage: 3, Structure: 4, TimeManagement: 2}
	if record.AIScores != expected {
		t.Errorf("AI 评分不正确: %+v", record.AIScores)
	}
	if record.ManualScores != record.AIScores {
		t.Error("评鉴后手动评分应该与 AI 评分一致")
	}
	if record.AIFeedback != "整体表现不错" {
		t.Errorf("评语不正确: %s", record.AIFeedback)
	}
}

// TestManualScoreIndependence 手动调整单一维度不影响其余维度与 AI 轨
func TestManualScoreIndependence(t *testing.T) {
	env := newTestEnv(t)
	env.provider.completeFn = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.AudioBase64 != "" {
			return &llm.CompletionResponse{Text: "逐字稿"}, nil
		}
		return structuredJSON(`{"scores": {"audience_engagement": 4, "fluency": 4, "body_language": 4, "structure": 4, "time_management": 4}, "feedback": "评语"}`), nil
	}

	if _, err := env.records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}
	if _, err := env.records.AttachAudio(&capture.AudioClip{Base64: "ZmFrZQ=="}); err != nil {
		t.Fatalf("挂载录音失败: %v", err)
	}
	if _, err := env.records.Transcribe(context.Background()); err != nil {
		t.Fatalf("转写失败: %v", err)
	}
	if _, err := env.records.Evaluate(context.Background()); err != nil {
		t.Fatalf("评鉴失败: %v", err)
	}

	record, err := env.records.SetManualScore("fluency", 2)
	if err != nil {
		t.Fatalf("手动评分失败: %v", err)
	}

	if record.ManualScores.Fluency != 2 {
		t.Errorf("流畅度手动评分应该更新为 2，实际: %d", record.ManualScores.Fluency)
	}
	if record.ManualScores.AudienceEngagement != 4 || record.ManualScores.BodyLanguage != 4 ||
		record.ManualScores.Structure != 4 || record.ManualScores.TimeManagement != 4 {
		t.Errorf("其余手动维度不应该变化: %+v", record.ManualScores)
	}
	allFour := models.Scores{AudienceEngagement: 4, Fluency: 4, BodyLanguage: 4, Structure: 4, TimeManagement: 4}
	if record.AIScores != allFour {
		t.Errorf("AI 评分轨不应该变化: %+v", record.AIScores)
	}
}

// TestManualScoreBounds 手动评分限定在 1-5
func TestManualScoreBounds(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	for _, v := range []int{0, 6, -1} {
		if _, err := env.records.SetManualScore("fluency", v); !apperrors.IsValidationError(err) {
			t.Errorf("评分 %d 应该返回验证错误，实际: %v", v, err)
		}
	}
	if _, err := env.records.SetManualScore("不存在的维度", 3); !apperrors.IsValidationError(err) {
		t.Errorf("未知维度应该返回验证错误，实际: %v", err)
	}
}

// TestEvaluateRequiresTranscription 没有逐字稿时评鉴直接报错
func TestEvaluateRequiresTranscription(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	if _, err := env.records.Evaluate(context.Background()); !apperrors.IsValidationError(err) {
		t.Errorf("无逐字稿评鉴应该返回验证错误，实际: %v", err)
	}
}

// TestCaptureUnavailable 采集器不可用时返回采集错误且纪录不变
func TestCaptureUnavailable(t *testing.T) {
	env := newTestEnv(t)

	records, err := NewRecordService(env.store, env.gen, &fakeRecorder{
		err: apperrors.NewCaptureError("無法啟動錄音，請確認已授權麥克風", nil),
	}, env.guard)
	if err != nil {
		t.Fatalf("创建纪录服务失败: %v", err)
	}

	if _, err := records.NewDraft(models.RecordTypeSelf); err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}

	if _, err := records.RecordAudio(context.Background()); !apperrors.IsCaptureError(err) {
		t.Fatalf("采集失败应该返回采集错误，实际: %v", err)
	}
	if editing := records.Editing(); editing.AudioBase64 != "" {
		t.Error("采集失败时纪录不应该变化")
	}
}

// TestListFilterAndDelete 列表过滤与删除
func TestListFilterAndDelete(t *testing.T) {
	env := newTestEnv(t)

	self, err := env.records.NewDraft(models.RecordTypeSelf)
	if err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}
	if err := env.records.Close(); err != nil {
		t.Fatalf("关闭编辑器失败: %v", err)
	}

	other, err := env.records.NewDraft(models.RecordTypeOther)
	if err != nil {
		t.Fatalf("创建草稿失败: %v", err)
	}
	if err := env.records.Close(); err != nil {
		t.Fatalf("关闭编辑器失败: %v", err)
	}

	if got := len(env.records.List(models.RecordTypeSelf)); got != 1 {
		t.Errorf("自己的纪录应该有 1 条，实际: %d", got)
	}
	if got := len(env.records.List(models.RecordTypeOther)); got != 1 {
		t.Errorf("观摩纪录应该有 1 条，实际: %d", got)
	}

	if err := env.records.Delete(self.ID); err != nil {
		t.Fatalf("删除纪录失败: %v", err)
	}
	remaining := env.records.List("")
	if len(remaining) != 1 || remaining[0].ID != other.ID {
		t.Errorf("删除后应该只剩观摩纪录: %+v", remaining)
	}

	if err := env.records.Delete(self.ID); !apperrors.IsNotFoundError(err) {
		t.Errorf("重复删除应该返回未找到，实际: %v", err)
	}
}
