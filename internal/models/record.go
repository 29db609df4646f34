// internal/models/record.go
package models

// 纪录类型：自己的演练或观摩他人
const (
	RecordTypeSelf  = "self"
	RecordTypeOther = "other"
)

// 评分维度上下界（含）
const (
	ScoreMin = 1
	ScoreMax = 5
)

// Scores 五维评分表
type Scores struct {
	AudienceEngagement int `json:"audience_engagement"`
	Fluency            int `json:"fluency"`
	BodyLanguage       int `json:"body_language"`
	Structure          int `json:"structure"`
	TimeManagement     int `json:"time_management"`
}

// DefaultScores 新纪录的初始评分（各维度取中值）
func DefaultScores() Scores {
	return Scores{
		AudienceEngagement: 3,
		Fluency:            3,
		BodyLanguage:       3,
		Structure:          3,
		TimeManagement:     3,
	}
}

// InRange 检查所有维度是否落在 1-5 区间
func (s Scores) InRange() bool {
	for _, v := range []int{s.AudienceEngagement, s.Fluency, s.BodyLanguage, s.Structure, s.TimeManagement} {
		if v < ScoreMin || v > ScoreMax {
			return false
		}
	}
	return true
}

// PitchRecord 一条独立的演练纪录（录音、逐字稿、双轨评分）
type PitchRecord struct {
	ID            int64  `json:"id"`
	Type          string `json:"type"` // self / other
	Date          int64  `json:"date"`
	Topic         string `json:"topic"`
	Speaker       string `json:"speaker"`
	AudioURL      string `json:"audio_url,omitempty"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	PhotoURL      string `json:"photo_url,omitempty"`
	Transcription string `json:"transcription"`
	AIScores      Scores `json:"ai_scores"`
	ManualScores  Scores `json:"manual_scores"`
	AIFeedback    string `json:"ai_feedback"`
	Notes         string `json:"notes"`
}
