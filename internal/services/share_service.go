// internal/services/share_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/storage"
	"github.com/Corphon/ElePitch/internal/utils"
)

// ShareService 社群分享流水线
// 两阶段门控：先评鉴资格，通过后才生成摘要与配图；
// 候选讲稿经确认才进入社群列表，确认同时重置工作流会话
type ShareService struct {
	store   *storage.KVStore
	gen     *GenService
	pitch   *PitchService
	profile *ProfileService
	guard   *TaskGuard

	mu          sync.Mutex
	community   []*models.CommunityPitch
	collections []int64
	candidate   *models.CommunityPitch
}

// NewShareService 创建分享服务并加载社群与收藏状态
func NewShareService(store *storage.KVStore, gen *GenService, pitch *PitchService, profile *ProfileService, guard *TaskGuard) (*ShareService, error) {
	s := &ShareService{
		store:   store,
		gen:     gen,
		pitch:   pitch,
		profile: profile,
		guard:   guard,
	}

	var community []*models.CommunityPitch
	if _, err := store.Get(storage.KeyCommunity, &community); err != nil {
		return nil, fmt.Errorf("加载社群讲稿失败: %w", err)
	}
	s.community = community

	var collections []int64
	if _, err := store.Get(storage.KeyCollections, &collections); err != nil {
		return nil, fmt.Errorf("加载收藏失败: %w", err)
	}
	s.collections = collections
	return s, nil
}

// Initiate 启动分享流水线，成功时返回待确认的候选讲稿
// 资格评鉴不通过时直接终止，不会调用图片生成，也不触碰社群列表
func (s *ShareService) Initiate(ctx context.Context) (*models.CommunityPitch, error) {
	if !s.profile.IsLoggedIn() {
		return nil, apperrors.NewCapabilityError("分享至社群需要登入帳號", nil)
	}

	session := s.pitch.Session()
	if session.Step != StepReviewed {
		return nil, apperrors.NewValidationError("請先完成演練並取得回饋，才能分享", nil)
	}
	if strings.TrimSpace(session.PracticedPitch) == "" {
		return nil, apperrors.NewValidationError("演練版本為空，無法分享", nil)
	}

	if err := s.guard.Acquire("AI 評鑑中..."); err != nil {
		return nil, err
	}

	eligibility, err := s.gen.EvaluateShareability(ctx, session.PracticedPitch, session.Feedback)
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}
	if !eligibility.Shareable {
		message := fmt.Sprintf("AI 評鑑結果：不建議分享。原因：%s", eligibility.Reason)
		s.guard.Release(message, true)
		return nil, apperrors.NewGenerationError(message, nil)
	}

	artifact, err := s.gen.BuildShareArtifact(ctx, session.PracticedPitch)
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	imageURL, err := s.gen.GenerateShareImage(ctx, artifact.ImagePrompt)
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	candidate := &models.CommunityPitch{
		Pitch: models.Pitch{
			ID:             time.Now().UnixMilli(),
			Title:          artifact.Title,
			GeneratedPitch: session.GeneratedPitch,
			PracticedPitch: session.PracticedPitch,
			Feedback:       session.Feedback,
			Sources:        session.Sources,
			TemplateName:   session.CurrentTemplateName,
		},
		Summary:  artifact.Summary,
		ImageURL: imageURL,
	}

	s.mu.Lock()
	s.candidate = candidate
	s.mu.Unlock()

	s.guard.Release("分享素材已就緒", false)
	return candidate, nil
}

// Confirm 确认发布候选讲稿：写入社群列表并重置工作流会话
func (s *ShareService) Confirm() (*models.CommunityPitch, error) {
	s.mu.Lock()
	if s.candidate == nil {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("沒有待確認的分享", nil)
	}
	candidate := s.candidate

	// 新分享排最前
	community := append([]*models.CommunityPitch{candidate}, s.community...)
	if err := s.store.Set(storage.KeyCommunity, community); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.community = community
	s.candidate = nil
	s.mu.Unlock()

	s.pitch.Reset()
	utils.GetLogger().Info("讲稿已分享至社群", map[string]interface{}{"pitch_id": candidate.ID})
	return candidate, nil
}

// Cancel 放弃候选讲稿，工作流会话保持不变
func (s *ShareService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidate = nil
}

// Candidate 返回待确认的候选讲稿
func (s *ShareService) Candidate() *models.CommunityPitch {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.candidate == nil {
		return nil
	}
	clone := *s.candidate
	return &clone
}

// Community 返回社群讲稿列表，新在前
func (s *ShareService) Community() []*models.CommunityPitch {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.CommunityPitch, len(s.community))
	for i, p := range s.community {
		clone := *p
		result[i] = &clone
	}
	return result
}

// GetCommunityPitch 按 id 查找社群讲稿
func (s *ShareService) GetCommunityPitch(id int64) (*models.CommunityPitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.community {
		if p.ID == id {
			clone := *p
			return &clone, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到社群講稿: %d", id), nil)
}

// ToggleCollection 收藏或取消收藏社群讲稿，返回当前是否已收藏
func (s *ShareService) ToggleCollection(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, p := range s.community {
		if p.ID == id {
			found = true
			break
		}
	}
	if !found {
		return false, apperrors.NewNotFoundError(fmt.Sprintf("找不到社群講稿: %d", id), nil)
	}

	var collections []int64
	collected := true
	removed := false
	for _, cid := range s.collections {
		if cid == id {
			removed = true
			continue
		}
		collections = append(collections, cid)
	}
	if removed {
		collected = false
	} else {
		collections = append(append([]int64{}, s.collections...), id)
	}

	if err := s.store.Set(storage.KeyCollections, collections); err != nil {
		return false, err
	}
	s.collections = collections
	return collected, nil
}

// Collections 返回收藏的讲稿 id 集合
func (s *ShareService) Collections() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.collections...)
}

// CollectedPitches 返回收藏的社群讲稿，保持社群列表的顺序
func (s *ShareService) CollectedPitches() []*models.CommunityPitch {
	s.mu.Lock()
	defer s.mu.Unlock()

	collected := make(map[int64]bool, len(s.collections))
	for _, id := range s.collections {
		collected[id] = true
	}

	var result []*models.CommunityPitch
	for _, p := range s.community {
		if collected[p.ID] {
			clone := *p
			result = append(result, &clone)
		}
	}
	return result
}
