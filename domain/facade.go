package domain

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

const (
	NamespaceAnalysis     = "analysis"
	NamespaceVideoData    = "video_data"
	NamespaceChatSession  = "chat_session"
	NamespaceTokenUsage   = "token_usage"
	NamespaceTranslations = "translations"
)

const (
	AnalysisTTL      = 168 * time.Hour
	VideoDataTTL     = 24 * time.Hour
	ChatSessionTTL   = 24 * time.Hour
	TokenUsageTTL    = 168 * time.Hour
	DefaultCustomTTL = 24 * time.Hour
)

// CacheRepository maps typed video-analysis entities onto orchestrator
// namespaces and keys. Payloads that fail identity validation are reported
// as absent rather than returned half-formed.
type CacheRepository struct {
	orchestrator types.CacheOrchestrator
	logger       types.Logger
	validate     *validator.Validate
}

func NewCacheRepository(logger types.Logger, orchestrator types.CacheOrchestrator) *CacheRepository {
	return &CacheRepository{
		orchestrator: orchestrator,
		logger:       logger,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (r *CacheRepository) GetAnalysis(ctx context.Context, videoID string) (*AnalysisResult, bool) {
	return getEntity[AnalysisResult](r, ctx, NamespaceAnalysis, videoID, AnalysisTTL)
}

func (r *CacheRepository) StoreAnalysis(ctx context.Context, result *AnalysisResult) error {
	if err := r.validateEntity(result); err != nil {
		return err
	}
	return r.orchestrator.SetWithTTL(ctx, NamespaceAnalysis, result.VideoID, result, AnalysisTTL)
}

func (r *CacheRepository) GetVideoData(ctx context.Context, videoID string) (*VideoData, bool) {
	return getEntity[VideoData](r, ctx, NamespaceVideoData, videoID, VideoDataTTL)
}

func (r *CacheRepository) StoreVideoData(ctx context.Context, data *VideoData) error {
	if err := r.validateEntity(data); err != nil {
		return err
	}
	return r.orchestrator.SetWithTTL(ctx, NamespaceVideoData, data.VideoID, data, VideoDataTTL)
}

func (r *CacheRepository) GetChatSession(ctx context.Context, videoID string) (*ChatSession, bool) {
	return getEntity[ChatSession](r, ctx, NamespaceChatSession, videoID, ChatSessionTTL)
}

func (r *CacheRepository) StoreChatSession(ctx context.Context, session *ChatSession) error {
	if err := r.validateEntity(session); err != nil {
		return err
	}
	return r.orchestrator.SetWithTTL(ctx, NamespaceChatSession, session.VideoID, session, ChatSessionTTL)
}

func (r *CacheRepository) GetTokenUsage(ctx context.Context, videoID string) (*TokenUsage, bool) {
	return getEntity[TokenUsage](r, ctx, NamespaceTokenUsage, videoID, TokenUsageTTL)
}

func (r *CacheRepository) StoreTokenUsage(ctx context.Context, usage *TokenUsage) error {
	if err := r.validateEntity(usage); err != nil {
		return err
	}
	return r.orchestrator.SetWithTTL(ctx, NamespaceTokenUsage, usage.VideoID, usage, TokenUsageTTL)
}

// GetCustom reads free-form data under a caller-chosen category. The
// optional fetch function makes it a full read-through lookup.
func (r *CacheRepository) GetCustom(ctx context.Context, category, key string, fetch types.FetchFunc, ttl time.Duration) (interface{}, bool) {
	if ttl <= 0 {
		ttl = DefaultCustomTTL
	}
	return r.orchestrator.GetWithFallback(ctx, category, key, fetch, ttl, types.DefaultRefreshThreshold)
}

func (r *CacheRepository) StoreCustom(ctx context.Context, category, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCustomTTL
	}
	return r.orchestrator.SetWithTTL(ctx, category, key, value, ttl)
}

func (r *CacheRepository) DeletePattern(ctx context.Context, namespace, pattern string) bool {
	return r.orchestrator.DeletePattern(ctx, namespace, pattern)
}

// ClearVideoCache removes everything cached for one video: the four fixed
// per-video entries plus all of its translation variants.
func (r *CacheRepository) ClearVideoCache(ctx context.Context, videoID string) bool {
	if videoID == "" {
		return false
	}

	ok := true
	for _, namespace := range []string{
		NamespaceAnalysis,
		NamespaceVideoData,
		NamespaceChatSession,
		NamespaceTokenUsage,
	} {
		if err := r.orchestrator.Delete(ctx, namespace, videoID); err != nil {
			ok = false
		}
	}

	if !r.orchestrator.DeletePattern(ctx, NamespaceTranslations, videoID+"_*") {
		ok = false
	}

	if ok {
		r.logger.Debug("Cleared video cache", zap.String("video_id", videoID))
	} else {
		r.logger.Warn("Video cache clear was partial", zap.String("video_id", videoID))
	}

	return ok
}

func (r *CacheRepository) Stats() types.CacheStats {
	return r.orchestrator.Stats()
}

func (r *CacheRepository) validateEntity(entity interface{}) error {
	if entity == nil {
		return types.ErrEntityInvalid
	}
	if err := r.validate.Struct(entity); err != nil {
		return types.Errorf(types.ErrEntityInvalid, "%v", err)
	}
	return nil
}

// getEntity reads a namespaced entry and decodes it into T. A payload that
// no longer carries its identity fields is treated as absent.
func getEntity[T any](r *CacheRepository, ctx context.Context, namespace, key string, ttl time.Duration) (*T, bool) {
	value, ok := r.orchestrator.GetWithFallback(ctx, namespace, key, nil, ttl, types.DefaultRefreshThreshold)
	if !ok {
		return nil, false
	}

	entity, err := decodeEntity[T](value)
	if err != nil {
		r.logger.Warn("Failed to decode cached entity",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return nil, false
	}

	if err := r.validate.Struct(entity); err != nil {
		r.logger.Warn("Cached entity failed validation, treating as absent",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return entity, true
}

func decodeEntity[T any](value interface{}) (*T, error) {
	if typed, ok := value.(*T); ok {
		return typed, nil
	}
	if typed, ok := value.(T); ok {
		return &typed, nil
	}

	data, err := utils.Marshal(value)
	if err != nil {
		return nil, types.WrapError(err, "failed to re-marshal cached value")
	}

	var out T
	if err := utils.Unmarshal(data, &out); err != nil {
		return nil, types.WrapError(err, "failed to decode cached value")
	}

	return &out, nil
}
