// internal/services/record_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/ElePitch/internal/capture"
	apperrors "github.com/Corphon/ElePitch/internal/errors"
	"github.com/Corphon/ElePitch/internal/models"
	"github.com/Corphon/ElePitch/internal/storage"
)

// RecordService 演练纪录生命周期
// 新纪录先以草稿形态打开编辑器，关闭编辑器时才进入列表（即使内容为空）；
// 已入列的纪录每次编辑都自动落盘
type RecordService struct {
	store    *storage.KVStore
	gen      *GenService
	recorder capture.Recorder
	guard    *TaskGuard

	mu      sync.Mutex
	records []*models.PitchRecord
	editing *models.PitchRecord
}

// NewRecordService 创建纪录服务并加载已有纪录
func NewRecordService(store *storage.KVStore, gen *GenService, recorder capture.Recorder, guard *TaskGuard) (*RecordService, error) {
	s := &RecordService{
		store:    store,
		gen:      gen,
		recorder: recorder,
		guard:    guard,
	}

	var records []*models.PitchRecord
	if _, err := store.Get(storage.KeyRecords, &records); err != nil {
		return nil, fmt.Errorf("加载演练纪录失败: %w", err)
	}
	s.records = records
	return s, nil
}

// NewDraft 打开一条新纪录草稿
// 自己的演练默认讲者为「我」，双轨评分从中值起步
func (s *RecordService) NewDraft(recordType string) (*models.PitchRecord, error) {
	if recordType != models.RecordTypeSelf && recordType != models.RecordTypeOther {
		return nil, apperrors.NewValidationError(fmt.Sprintf("未知的紀錄類型: %s", recordType), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editing != nil {
		return nil, apperrors.NewConflictError("請先關閉目前編輯中的紀錄", nil)
	}

	now := time.Now().UnixMilli()
	id := now
	for s.inListLocked(id) {
		id++
	}
	record := &models.PitchRecord{
		ID:           id,
		Type:         recordType,
		Date:         now,
		AIScores:     models.DefaultScores(),
		ManualScores: models.DefaultScores(),
	}
	if recordType == models.RecordTypeSelf {
		record.Speaker = "我"
	}

	s.editing = record
	clone := *record
	return &clone, nil
}

// Open 打开已有纪录进行编辑
func (s *RecordService) Open(id int64) (*models.PitchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editing != nil {
		return nil, apperrors.NewConflictError("請先關閉目前編輯中的紀錄", nil)
	}
	for _, r := range s.records {
		if r.ID == id {
			clone := *r
			s.editing = &clone
			result := clone
			return &result, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("找不到紀錄: %d", id), nil)
}

// Editing 返回编辑中纪录的副本，没有则为 nil
func (s *RecordService) Editing() *models.PitchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editing == nil {
		return nil
	}
	clone := *s.editing
	return &clone
}

// Close 关闭编辑器
// 尚未入列的草稿在此时进入列表，空纪录同样保留
func (s *RecordService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.editing == nil {
		return nil
	}

	if !s.inListLocked(s.editing.ID) {
		records := append([]*models.PitchRecord{s.editing}, s.records...)
		if err := s.store.Set(storage.KeyRecords, records); err != nil {
			return err
		}
		s.records = records
	}
	s.editing = nil
	return nil
}

func (s *RecordService) inListLocked(id int64) bool {
	for _, r := range s.records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// mutateEditing 修改编辑中的纪录，已入列时同步落盘
func (s *RecordService) mutateEditing(apply func(*models.PitchRecord)) (*models.PitchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutateEditingLocked(apply)
}

func (s *RecordService) mutateEditingLocked(apply func(*models.PitchRecord)) (*models.PitchRecord, error) {
	if s.editing == nil {
		return nil, apperrors.NewNotFoundError("沒有編輯中的紀錄", nil)
	}
	apply(s.editing)

	if s.inListLocked(s.editing.ID) {
		for i, r := range s.records {
			if r.ID == s.editing.ID {
				clone := *s.editing
				s.records[i] = &clone
				break
			}
		}
		if err := s.store.Set(storage.KeyRecords, s.records); err != nil {
			return nil, err
		}
	}

	clone := *s.editing
	return &clone, nil
}

// SetTopic 更新题目
func (s *RecordService) SetTopic(topic string) (*models.PitchRecord, error) {
	return s.mutateEditing(func(r *models.PitchRecord) { r.Topic = topic })
}

// SetSpeaker 更新讲者
func (s *RecordService) SetSpeaker(speaker string) (*models.PitchRecord, error) {
	return s.mutateEditing(func(r *models.PitchRecord) { r.Speaker = speaker })
}

// SetNotes 更新笔记
func (s *RecordService) SetNotes(notes string) (*models.PitchRecord, error) {
	return s.mutateEditing(func(r *models.PitchRecord) { r.Notes = notes })
}

// AttachAudio 挂上录音数据
func (s *RecordService) AttachAudio(clip *capture.AudioClip) (*models.PitchRecord, error) {
	if clip == nil || clip.Base64 == "" {
		return nil, apperrors.NewValidationError("錄音內容為空", nil)
	}
	return s.mutateEditing(func(r *models.PitchRecord) {
		r.AudioBase64 = clip.Base64
		r.AudioURL = clip.DataURL
	})
}

// RecordAudio 通过采集器录音并挂到纪录上
func (s *RecordService) RecordAudio(ctx context.Context) (*models.PitchRecord, error) {
	clip, err := s.recorder.RecordAudio(ctx)
	if err != nil {
		return nil, err
	}
	return s.AttachAudio(clip)
}

// AttachPhoto 挂上照片
func (s *RecordService) AttachPhoto(photo *capture.Photo) (*models.PitchRecord, error) {
	if photo == nil || photo.DataURL == "" {
		return nil, apperrors.NewValidationError("照片內容為空", nil)
	}
	return s.mutateEditing(func(r *models.PitchRecord) { r.PhotoURL = photo.DataURL })
}

// TakePhoto 通过采集器拍照并挂到纪录上
func (s *RecordService) TakePhoto(ctx context.Context) (*models.PitchRecord, error) {
	photo, err := s.recorder.TakePhoto(ctx)
	if err != nil {
		return nil, err
	}
	return s.AttachPhoto(photo)
}

// Transcribe 把录音转写为繁体中文逐字稿
func (s *RecordService) Transcribe(ctx context.Context) (*models.PitchRecord, error) {
	s.mu.Lock()
	if s.editing == nil {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("沒有編輯中的紀錄", nil)
	}
	audio := s.editing.AudioBase64
	s.mu.Unlock()

	if audio == "" {
		return nil, apperrors.NewValidationError("請先錄音", nil)
	}

	if err := s.guard.Acquire("語音轉文字中..."); err != nil {
		return nil, err
	}

	text, err := s.gen.Transcribe(ctx, audio, "audio/webm")
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	record, err := s.mutateEditing(func(r *models.PitchRecord) { r.Transcription = text })
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}
	s.guard.Release("逐字稿已生成", false)
	return record, nil
}

// Evaluate 依逐字稿做 AI 评鉴
// 评分同时写入 AI 轨与手动轨，手动轨之后可独立调整
func (s *RecordService) Evaluate(ctx context.Context) (*models.PitchRecord, error) {
	s.mu.Lock()
	if s.editing == nil {
		s.mu.Unlock()
		return nil, apperrors.NewNotFoundError("沒有編輯中的紀錄", nil)
	}
	transcription := s.editing.Transcription
	s.mu.Unlock()

	if strings.TrimSpace(transcription) == "" {
		return nil, apperrors.NewValidationError("請先產生逐字稿", nil)
	}

	if err := s.guard.Acquire("AI 評分中..."); err != nil {
		return nil, err
	}

	evaluation, err := s.gen.EvaluateRecord(ctx, transcription)
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}

	record, err := s.mutateEditing(func(r *models.PitchRecord) {
		r.AIScores = evaluation.Scores
		r.ManualScores = evaluation.Scores
		r.AIFeedback = evaluation.Feedback
	})
	if err != nil {
		s.guard.Release(err.Error(), true)
		return nil, err
	}
	s.guard.Release("AI 評鑑完成", false)
	return record, nil
}

// SetManualScore 调整手动评分的单一维度，AI 轨保持不变
func (s *RecordService) SetManualScore(dimension string, value int) (*models.PitchRecord, error) {
	if value < models.ScoreMin || value > models.ScoreMax {
		return nil, apperrors.NewValidationError(fmt.Sprintf("評分必須在 %d 到 %d 之間", models.ScoreMin, models.ScoreMax), nil)
	}
	switch dimension {
	case "audience_engagement", "fluency", "body_language", "structure", "time_management":
	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("未知的評分維度: %s", dimension), nil)
	}

	return s.mutateEditing(func(r *models.PitchRecord) {
		switch dimension {
		case "audience_engagement":
			r.ManualScores.AudienceEngagement = value
		case "fluency":
			r.ManualScores.Fluency = value
		case "body_language":
			r.ManualScores.BodyLanguage = value
		case "structure":
			r.ManualScores.Structure = value
		case "time_management":
			r.ManualScores.TimeManagement = value
		}
	})
}

// List 返回纪录列表，可按类型过滤，空串返回全部
func (s *RecordService) List(recordType string) []*models.PitchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.PitchRecord
	for _, r := range s.records {
		if recordType != "" && r.Type != recordType {
			continue
		}
		clone := *r
		result = append(result, &clone)
	}
	return result
}

// Delete 删除纪录，正被编辑的纪录一并关闭
func (s *RecordService) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records {
		if r.ID == id {
			records := append(append([]*models.PitchRecord{}, s.records[:i]...), s.records[i+1:]...)
			if err := s.store.Set(storage.KeyRecords, records); err != nil {
				return err
			}
			s.records = records
			if s.editing != nil && s.editing.ID == id {
				s.editing = nil
			}
			return nil
		}
	}
	return apperrors.NewNotFoundError(fmt.Sprintf("找不到紀錄: %d", id), nil)
}
