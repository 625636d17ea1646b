package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/blues/settlement/internal/config"
	"github.com/blues/settlement/internal/model"
	"github.com/segmentio/kafka-go"
)

// DistributionEvent 账本写入后对外发布的事件
type DistributionEvent struct {
	DistributionId  int64     `json:"distribution_id"`
	MerchantId      int64     `json:"merchant_id"`
	Status          string    `json:"status"`
	TotalAmount     string    `json:"total_amount"`
	MerchantAmount  string    `json:"merchant_amount"`
	PlatformFees    string    `json:"platform_fees"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	ErrorKind       string    `json:"error_kind,omitempty"`
	DistributedAt   time.Time `json:"distributed_at"`
}

// NewDistributionEvent 由账本记录构造事件
func NewDistributionEvent(d *model.DistributionModel) DistributionEvent {
	return DistributionEvent{
		DistributionId:  d.Id,
		MerchantId:      d.MerchantId,
		Status:          string(d.Status),
		TotalAmount:     d.TotalAmount.String(),
		MerchantAmount:  d.MerchantAmount.String(),
		PlatformFees:    d.PlatformFees.String(),
		TransactionHash: d.TxHash(),
		ErrorKind:       d.ErrorKind,
		DistributedAt:   d.DistributedAt,
	}
}

// Publisher 分账事件发布接口
type Publisher interface {
	PublishDistribution(ctx context.Context, d *model.DistributionModel) error
	Close() error
}

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 基于 kafka 的事件发布
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher 创建 kafka 发布器
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// PublishDistribution 发布分账事件，按商户ID分区保证同一商户有序
func (k *KafkaPublisher) PublishDistribution(ctx context.Context, d *model.DistributionModel) error {
	value, err := json.Marshal(NewDistributionEvent(d))
	if err != nil {
		return fmt.Errorf("marshal distribution event %d: %w", d.Id, err)
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(d.MerchantId, 10)),
		Value: value,
		Time:  time.Now(),
	})
}

// Close 关闭发布器
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// NopPublisher 未启用 kafka 时使用
type NopPublisher struct{}

func (NopPublisher) PublishDistribution(context.Context, *model.DistributionModel) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}

// NewPublisher 根据配置创建发布器
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if !cfg.Enabled {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}
