// Package outbox drains the Redis settlement list of an instance into a
// downstream sink (normally Kafka). The list is the durable buffer: an entry
// is only dropped once the sink has accepted it or it has been dead-lettered.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/events"
	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

// Forwarder moves settlements from one instance's list to sink.
type Forwarder struct {
	rdb      *redis.Client
	sink     events.Sink
	queueKey string
	dlqKey   string
	log      *zap.Logger

	PollTimeout  time.Duration
	RetryBackoff time.Duration
}

func NewForwarder(rdb *redis.Client, instance common.Address, sink events.Sink, log *zap.Logger) *Forwarder {
	return &Forwarder{
		rdb:          rdb,
		sink:         sink,
		queueKey:     fmt.Sprintf(relayop.SettlementQueueKeyFmt, instance.Hex()),
		dlqKey:       fmt.Sprintf(relayop.SettlementDLQKeyFmt, instance.Hex()),
		log:          log,
		PollTimeout:  5 * time.Second,
		RetryBackoff: 5 * time.Second,
	}
}

// Run is the forwarder loop: BLPOP → decode → publish.
func (f *Forwarder) Run(ctx context.Context) {
	f.log.Info("outbox forwarder started", zap.String("queue", f.queueKey))
	for {
		if ctx.Err() != nil {
			f.log.Info("outbox forwarder stopped", zap.String("queue", f.queueKey))
			return
		}
		if _, err := f.ForwardOne(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Error("outbox: forward", zap.String("queue", f.queueKey), zap.Error(err))
			select {
			case <-time.After(f.RetryBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

// ForwardOne handles at most one entry. It reports whether an entry was
// taken off the list. On a sink error the entry is put back at the head.
func (f *Forwarder) ForwardOne(ctx context.Context) (bool, error) {
	results, err := f.rdb.BLPop(ctx, f.PollTimeout, f.queueKey).Result()
	if errors.Is(err, redis.Nil) {
		// Timeout: nothing queued
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("BLPOP: %w", err)
	}
	raw := results[1]

	var s relayop.Settlement
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		f.rdb.RPush(ctx, f.dlqKey, raw) //nolint:errcheck
		f.log.Error("outbox: undecodable settlement moved to DLQ",
			zap.String("dlq", f.dlqKey),
			zap.Error(err),
		)
		return true, nil
	}

	if err := f.sink.Publish(ctx, s); err != nil {
		// Re-push to the head so ordering is preserved.
		if perr := f.rdb.LPush(context.WithoutCancel(ctx), f.queueKey, raw).Err(); perr != nil {
			f.log.Error("outbox: re-push failed, settlement only in logs",
				zap.String("raw", raw),
				zap.Error(perr),
			)
		}
		return false, fmt.Errorf("publish %s: %w", s.Digest.Hex(), err)
	}

	f.log.Debug("settlement forwarded", zap.String("digest", s.Digest.Hex()))
	return true, nil
}
