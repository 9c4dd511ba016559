package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/0gfoundation/0g-gastank/internal/relayop"
	"github.com/0gfoundation/0g-gastank/internal/telemetry"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes settlements to one topic per instance, keyed by dapp
// so a tenant's settlements stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	prefix string
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = "gastank-settlements"
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaSink{writer: writer, prefix: cfg.TopicPrefix}, nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }

func (k *KafkaSink) Publish(ctx context.Context, s relayop.Settlement) error {
	ctx, span := otel.Tracer("gastank/kafka").Start(ctx, "settlement.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("instance", s.Instance.Hex()),
		attribute.String("dapp", s.DappIdentifier.Hex()),
		attribute.String("digest", s.Digest.Hex()),
	)

	payload, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("encode settlement: %w", err)
	}
	headers := make([]kafka.Header, 0, 2)
	telemetry.InjectKafkaHeaders(ctx, &headers)

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   k.topicFor(s),
		Key:     s.DappIdentifier.Bytes(),
		Value:   payload,
		Headers: headers,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (k *KafkaSink) topicFor(s relayop.Settlement) string {
	return fmt.Sprintf("%s-%s", k.prefix, strings.ToLower(s.Instance.Hex()))
}
