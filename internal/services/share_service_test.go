// internal/services/share_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/llm"
)

// shareProviderScript 按调用顺序返回评鉴、素材与图片
func shareProviderScript(shareable bool, reason string) func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if req.ResponseSchema != nil {
			if _, ok := req.ResponseSchema["properties"].(map[string]interface{})["shareable"]; ok {
				if shareable {
					return structuredJSON(`{"shareable": true, "reason": "内容充实"}`), nil
				}
				return structuredJSON(`{"shareable": false, "reason": %q}`, reason), nil
			}
			return structuredJSON(`{"title": "创新提案", "summary": "一句话摘要", "imagePrompt": "abstract visualization of connected nodes"}`), nil
		}
		return &llm.CompletionResponse{Text: "生成的讲稿内容"}, nil
	}
}

// TestShareRequiresLogin 未登录不能启动分享
func TestShareRequiresLogin(t *testing.T) {
	env := newTestEnv(t)
	env.reachStepReviewed(t)

	_, err := env.share.Initiate(context.Background())
	if !apperrors.IsCapabilityError(err) {
		t.Fatalf("未登录分享应该返回能力错误，实际: %v", err)
	}
}

// TestShareRequiresReviewedSession 未完成回馈不能分享
func TestShareRequiresReviewedSession(t *testing.T) {
	env := newTestEnv(t)
	if err := env.profile.Login(); err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	_, err := env.share.Initiate(context.Background())
	if !apperrors.IsValidationError(err) {
		t.Fatalf("会话未到第三步时分享应该返回验证错误，实际: %v", err)
	}
}

// TestShareIneligibleBlocksImageAndCommunity 评鉴不通过时不调用图片生成也不动社群列表
func TestShareIneligibleBlocksImageAndCommunity(t *testing.T) {
	env := newTestEnv(t)
	env.reachStepReviewed(t)
	if err := env.profile.Login(); err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	env.provider.completeFn = shareProviderScript(false, "too generic")

	_, err := env.share.Initiate(context.Background())
	if err == nil {
		t.Fatal("评鉴不通过时分享应该失败")
	}
	if !strings.Contains(err.Error(), "too generic") {
		t.Errorf("错误信息应该包含评鉴原因，实际: %v", err)
	}

	if _, imageCalls := env.provider.calls(); imageCalls != 0 {
		t.Errorf("评鉴不通过时不应该调用图片生成，实际调用: %d", imageCalls)
	}
	if len(env.share.Community()) != 0 {
		t.Error("评鉴不通过时社群列表不应该变化")
	}
	if env.share.Candidate() != nil {
		t.Error("评鉴不通过时不应该留下候选讲稿")
	}
}

// TestSharePipelineAndConfirm 完整分享流水线：评鉴、素材、图片、确认入列并重置会话
func TestSharePipelineAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	env.reachStepReviewed(t)
	if err := env.profile.Login(); err != nil {
		t.Fatalf("登录失败: %v", err)
	}

	env.provider.completeFn = shareProviderScript(true, "")

	candidate, err := env.share.Initiate(context.Background())
	if err != nil {
		t.Fatalf("启动分享失败: %v", err)
	}
	if candidate.Title != "创新提案" || candidate.Summary != "一句话摘要" {
		t.Errorf("候选讲稿内容不正确: %+v", candidate)
	}
	if !strings.HasPrefix(candidate.ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("配图应该是 data URL，实际: %s", candidate.ImageURL)
	}
	if _, imageCalls := env.provider.calls(); imageCalls != 1 {
		t.Errorf("应该恰好调用一次图片生成，实际: %d", imageCalls)
	}

	// 确认前社群列表不变
	if len(env.share.Community()) != 0 {
		t.Error("确认前社群列表不应该变化")
	}

	published, err := env.share.Confirm()
	if err != nil {
		t.Fatalf("确认分享失败: %v", err)
	}

	community := env.share.Community()
	if len(community) != 1 || community[0].ID != published.ID {
		t.Errorf("确认后候选讲稿应该排在社群列表最前: %+v", community)
	}
	if env.share.Candidate() != nil {
		t.Error("确认后候选讲稿应该被清空")
	}
	if session := env.pitch.Session(); session.Step != StepInput {
		t.Errorf("确认后工作流会话应该重置，实际步骤: %d", session.Step)
	}
}

// TestShareCancelKeepsSession 取消分享不影响会话
func TestShareCancelKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.reachStepReviewed(t)
	if err := env.profile.Login(); err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	env.provider.completeFn = shareProviderScript(true, "")

	if _, err := env.share.Initiate(context.Background()); err != nil {
		t.Fatalf("启动分享失败: %v", err)
	}

	env.share.Cancel()
	if env.share.Candidate() != nil {
		t.Error("取消后候选讲稿应该被清空")
	}
	if session := env.pitch.Session(); session.Step != StepReviewed {
		t.Errorf("取消分享不应该重置会话，实际步骤: %d", session.Step)
	}
	if len(env.share.Community()) != 0 {
		t.Error("取消分享不应该写入社群列表")
	}
}

// TestToggleCollection 收藏开关与持久化
func TestToggleCollection(t *testing.T) {
	env := newTestEnv(t)
	env.reachStepReviewed(t)
	if err := env.profile.Login(); err != nil {
		t.Fatalf("登录失败: %v", err)
	}
	env.provider.completeFn = shareProviderScript(true, "")

	if _, err := env.share.Initiate(context.Background()); err != nil {
		t.Fatalf("启动分享失败: %v", err)
	}
	published, err := env.share.Confirm()
	if err != nil {
		t.Fatalf("确认分享失败: %v", err)
	}

	collected, err := env.share.ToggleCollection(published.ID)
	if err != nil || !collected {
		t.Fatalf("首次收藏应该成功，collected=%v err=%v", collected, err)
	}
	if pitches := env.share.CollectedPitches(); len(pitches) != 1 {
		t.Errorf("收藏列表应该有一份讲稿，实际: %d", len(pitches))
	}

	collected, err = env.share.ToggleCollection(published.ID)
	if err != nil || collected {
		t.Fatalf("再次切换应该取消收藏，collected=%v err=%v", collected, err)
	}
	if len(env.share.Collections()) != 0 {
		t.Error("取消收藏后 id 集合应该为空")
	}

	if _, err := env.share.ToggleCollection(99999); !apperrors.IsNotFoundError(err) {
		t.Errorf("收藏不存在的讲稿应该返回未找到，实际: %v", err)
	}
}
