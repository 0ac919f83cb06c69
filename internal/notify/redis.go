package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// DefaultChannel is the pub/sub channel events are published on.
	DefaultChannel = "franchise.events"

	userSessionsKeyPrefix = "user_sessions:"
	sessionKeyPrefix      = "session:"
)

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink returns a sink publishing on channel, or DefaultChannel when empty.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Deliver implements EventSink.
func (sink *RedisSink) Deliver(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := sink.client.Publish(ctx, sink.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// RedisSessionRevoker deletes the sessions indexed under user_sessions:<user id>.
type RedisSessionRevoker struct {
	client redis.UniversalClient
}

// NewRedisSessionRevoker returns a revoker for the shared session store.
func NewRedisSessionRevoker(client redis.UniversalClient) *RedisSessionRevoker {
	return &RedisSessionRevoker{client: client}
}

// RevokeSessions implements SessionRevoker and returns the number of sessions removed.
func (revoker *RedisSessionRevoker) RevokeSessions(ctx context.Context, userID string) (int, error) {
	indexKey := userSessionsKeyPrefix + userID
	sessionIDs, err := revoker.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions for %s: %w", userID, err)
	}
	keys := make([]string, 0, len(sessionIDs)+1)
	for _, sessionID := range sessionIDs {
		keys = append(keys, sessionKeyPrefix+sessionID)
	}
	keys = append(keys, indexKey)
	if err := revoker.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("delete sessions for %s: %w", userID, err)
	}
	return len(sessionIDs), nil
}

// LogSink writes events to the structured log when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver implements EventSink.
func (sink *LogSink) Deliver(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("type", event.Type),
		zap.String("user_id", event.UserID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if len(event.Attributes) > 0 {
		fields = append(fields, zap.Any("attributes", event.Attributes))
	}
	sink.logger.Info("event", fields...)
	return nil
}
