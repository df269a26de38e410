package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisResult is the LLM analysis produced for one video. VideoID,
// YouTubeURL and Status are the identity fields; payloads missing any of
// them are rejected on read.
type AnalysisResult struct {
	VideoID    string    `json:"video_id" validate:"required"`
	YouTubeURL string    `json:"youtube_url" validate:"required"`
	Status     string    `json:"status" validate:"required"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	KeyPoints  []string  `json:"key_points"`
	Transcript string    `json:"transcript"`
	Language   string    `json:"language"`
	Model      string    `json:"model"`
	CreatedAt  time.Time `json:"created_at"`
}

type VideoData struct {
	VideoID     string    `json:"video_id" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	ChannelName string    `json:"channel_name"`
	DurationSec int64     `json:"duration_sec"`
	ViewCount   int64     `json:"view_count"`
	PublishedAt time.Time `json:"published_at"`
	Thumbnail   string    `json:"thumbnail"`
}

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatSession struct {
	SessionID string        `json:"session_id" validate:"required"`
	VideoID   string        `json:"video_id" validate:"required"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewChatSession(videoID string) *ChatSession {
	now := time.Now()
	return &ChatSession{
		SessionID: uuid.New().String(),
		VideoID:   videoID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TokenUsage is the per-video LLM token ledger.
type TokenUsage struct {
	VideoID          string    `json:"video_id" validate:"required"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	CostUSD          float64   `json:"cost_usd"`
	Model            string    `json:"model"`
	UpdatedAt        time.Time `json:"updated_at"`
}
