package repository

import (
	"context"

	"FlowPull/internal/domain/models"
	"FlowPull/internal/domain/repository"
	pkgkafka "FlowPull/pkg/kafka"
	"FlowPull/pkg/util"
)

// KafkaFlowPublisher fans saved flow batches out to the downstream
// statistics pipeline. Messages are keyed by instrument so per-instrument
// ordering survives partitioning.
type KafkaFlowPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaFlowPublisher creates the Kafka publisher.
func NewKafkaFlowPublisher(producer *pkgkafka.Producer, topic string) repository.FlowPublisher {
	return &KafkaFlowPublisher{producer: producer, topic: topic}
}

func (p *KafkaFlowPublisher) PublishFlows(ctx context.Context, rows []*models.DailyFlow) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(rows))
	for i, r := range rows {
		msgs[i] = pkgkafka.Message{
			Key: []byte(r.Instrument),
			Value: map[string]interface{}{
				"instrument": r.Instrument,
				"dt":         util.FormatYMD(r.Date),
				"trde_tp":    r.TradeType,
				"amt_qty_tp": r.AmountQtyType,
				"cur_prc":    r.CurrentPrice,
				"net":        r.Net,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaFlowPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopFlowPublisher is used when Kafka is disabled by config.
type NoopFlowPublisher struct{}

func (NoopFlowPublisher) PublishFlows(context.Context, []*models.DailyFlow) error { return nil }
func (NoopFlowPublisher) Close() error                                            { return nil }
