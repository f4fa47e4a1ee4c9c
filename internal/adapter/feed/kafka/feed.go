// Package kafka publishes successful inspect results to a Kafka topic
// for downstream price aggregation.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// Feed implements domain.ResultFeed on a franz-go producer. Publishing
// is fire-and-forget: the inspect path never waits on the broker.
type Feed struct {
	client *kgo.Client
	topic  string
}

// New connects to brokers and ensures topic exists.
func New(ctx context.Context, brokers []string, topic string) (*Feed, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=kafka.New: no seed brokers provided")
	}
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))),
	)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("op=kafka.New: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		// The topic usually exists already; a racing create is fine.
		slog.Warn("feed topic ensure failed", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("price feed producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Feed{client: client, topic: topic}, nil
}

// Publish emits one inspect result keyed by asset id.
func (f *Feed) Publish(ctx context.Context, info domain.ItemInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("op=kafka.Publish asset=%d: %w", info.AssetID, err)
	}
	record := &kgo.Record{
		Topic: f.topic,
		Key:   []byte(strconv.FormatUint(info.AssetID, 10)),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "message_id", Value: []byte(uuid.NewString())},
			{Key: "def_index", Value: []byte(strconv.FormatInt(int64(info.DefIndex), 10))},
		},
	}
	f.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Warn("feed produce failed", slog.Uint64("asset_id", info.AssetID), slog.Any("error", err))
		}
	})
	return nil
}

// Close flushes buffered records and releases the client.
func (f *Feed) Close() error {
	if f.client != nil {
		_ = f.client.Flush(context.Background())
		f.client.Close()
	}
	return nil
}

// createTopicIfNotExists creates topic via the admin API, treating
// TOPIC_ALREADY_EXISTS (error code 36) as success.
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	createResp, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	for _, topicResp := range createResp.Topics {
		if topicResp.ErrorCode != 0 {
			if topicResp.ErrorCode == 36 {
				return nil
			}
			errorMsg := ""
			if topicResp.ErrorMessage != nil {
				errorMsg = *topicResp.ErrorMessage
			}
			return fmt.Errorf("create topic error: %s (code %d)", errorMsg, topicResp.ErrorCode)
		}
	}
	return nil
}
