package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannelPrefix is prepended to the session code to form the Redis channel.
	DefaultChannelPrefix = "livepoll:"

	publishTimeout = 5 * time.Second
	mirrorBuffer   = 1024
)

// redisPayload is the message published to Redis for each room event.
type redisPayload struct {
	Code  string          `json:"code"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// Publisher is the subset of *redis.Client used by RedisMirror.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisMirror copies room events to Redis pub/sub for outside observers (dashboards,
// archivers). It is write-only: nothing is read back, and a failed or dropped publish
// never affects session state or local delivery.
type RedisMirror struct {
	client Publisher
	prefix string
	queue  chan redisPayload
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisMirror creates a mirror publishing to prefix+code. Call Run to start it.
func NewRedisMirror(client Publisher, prefix string, logger *zap.Logger) *RedisMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisMirror{
		client: client,
		prefix: prefix,
		queue:  make(chan redisPayload, mirrorBuffer),
		logger: logger,
		now:    time.Now,
	}
}

// Mirror queues an event for publishing, dropping it if the queue is full.
func (r *RedisMirror) Mirror(code, event string, payload []byte) {
	select {
	case r.queue <- redisPayload{Code: code, Event: event, Data: payload, At: r.now().Unix()}:
	default:
		r.logger.Warn("redis mirror queue full, dropping event", zap.String("code", code), zap.String("event", event))
	}
}

// Run publishes queued events until ctx is done.
func (r *RedisMirror) Run(ctx context.Context) {
	r.logger.Info("redis mirror started", zap.String("prefix", r.prefix))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("redis mirror stopping")
			return
		case p := <-r.queue:
			if err := r.publish(ctx, p); err != nil {
				r.logger.Warn("redis publish failed", zap.String("code", p.Code), zap.String("event", p.Event), zap.Error(err))
			}
		}
	}
}

func (r *RedisMirror) publish(ctx context.Context, p redisPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, r.prefix+p.Code, body).Err()
}
