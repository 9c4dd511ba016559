// Package events publishes settlement records.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-gastank/internal/relayop"
)

// Sink receives every settled relay operation, after its state is committed.
type Sink interface {
	Publish(ctx context.Context, s relayop.Settlement) error
}

// LogSink writes settlements to the service log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink { return &LogSink{log: log} }

func (l *LogSink) Publish(_ context.Context, s relayop.Settlement) error {
	l.log.Info("relay settled",
		zap.String("digest", s.Digest.Hex()),
		zap.String("payment", s.Payment.String()),
		zap.String("dapp", s.DappIdentifier.Hex()),
		zap.String("sender", s.Sender.Hex()),
		zap.String("executor", s.Executor.Hex()),
		zap.Uint64("gas_used", s.GasUsed),
		zap.Bool("call_succeeded", s.CallSucceeded),
	)
	return nil
}

// RedisSink appends settlements as JSON to the instance's settlement list,
// where the outbox forwarder picks them up.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink { return &RedisSink{rdb: rdb} }

func (r *RedisSink) Publish(ctx context.Context, s relayop.Settlement) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settlement: %w", err)
	}
	key := fmt.Sprintf(relayop.SettlementQueueKeyFmt, s.Instance.Hex())
	return r.rdb.RPush(ctx, key, raw).Err()
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, s relayop.Settlement) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Publish(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
