package rbac

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/campusiq/gatehouse/pkg/observability"
)

const invalidationChannel = "gatehouse:rbac:invalidate"

// FanoutCache wraps a local cache and broadcasts invalidations over redis so
// that every replica purges its own process-local cache. Reads and writes stay
// local; only invalidations touch the wire.
type FanoutCache struct {
	local  Cache
	client *redis.Client
	logger *observability.Logger
}

// NewFanoutCache wires a local cache to a redis broadcast channel and starts
// the subscriber. Cancel ctx to stop listening.
func NewFanoutCache(ctx context.Context, local Cache, client *redis.Client, logger *observability.Logger) *FanoutCache {
	f := &FanoutCache{local: local, client: client, logger: logger}
	go f.listen(ctx)
	return f
}

func (f *FanoutCache) listen(ctx context.Context) {
	sub := f.client.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			if msg.Payload == "*" {
				f.local.InvalidateAll()
				continue
			}
			id, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				f.logger.WithField("payload", msg.Payload).Warn("ignoring malformed invalidation message")
				continue
			}
			f.local.Invalidate(id)
		}
	}
}

// Get delegates to the local cache.
func (f *FanoutCache) Get(identityID int64) (*PermissionSet, bool) {
	return f.local.Get(identityID)
}

// Set delegates to the local cache.
func (f *FanoutCache) Set(identityID int64, set *PermissionSet) {
	f.local.Set(identityID, set)
}

// Invalidate purges locally and broadcasts to peers. The broadcast is
// best-effort: the local purge already happened, and peers fall back on TTL.
func (f *FanoutCache) Invalidate(identityID int64) {
	f.local.Invalidate(identityID)
	if err := f.client.Publish(context.Background(), invalidationChannel, strconv.FormatInt(identityID, 10)).Err(); err != nil {
		f.logger.WithError(err).Warn("failed to broadcast cache invalidation")
	}
}

// InvalidateAll purges locally and broadcasts a full purge.
func (f *FanoutCache) InvalidateAll() {
	f.local.InvalidateAll()
	if err := f.client.Publish(context.Background(), invalidationChannel, "*").Err(); err != nil {
		f.logger.WithError(err).Warn("failed to broadcast cache invalidation")
	}
}

var _ Cache = (*FanoutCache)(nil)
