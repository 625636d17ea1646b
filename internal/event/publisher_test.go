package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/blues/settlement/internal/config"
	"github.com/blues/settlement/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByMerchant(t *testing.T) {
	writer := &recordingWriter{}
	publisher := &KafkaPublisher{writer: writer}

	tx := "0xabc"
	d := &model.DistributionModel{
		Id:              9,
		MerchantId:      42,
		TotalAmount:     model.NewAmount(decimal.RequireFromString("1.5")),
		MerchantAmount:  model.NewAmount(decimal.RequireFromString("1.35")),
		PlatformFees:    model.NewAmount(decimal.RequireFromString("0.15")),
		TransactionHash: &tx,
		Status:          model.DistributionStatusCompleted,
		DistributedAt:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishDistribution(context.Background(), d); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "42" {
		t.Fatalf("expected key 42, got %q", msg.Key)
	}

	var evt DistributionEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.DistributionId != 9 || evt.Status != "completed" || evt.TransactionHash != tx {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.MerchantAmount != "1.35" || evt.PlatformFees != "0.15" {
		t.Fatalf("amounts should be exact decimal strings, got %s / %s", evt.MerchantAmount, evt.PlatformFees)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer to be closed, err=%v", err)
	}
}

func TestKafkaPublisherPropagatesWriteError(t *testing.T) {
	publisher := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker unavailable")}}

	err := publisher.PublishDistribution(context.Background(), &model.DistributionModel{MerchantId: 1})
	if err == nil {
		t.Fatal("expected write error")
	}
}

func TestNewPublisherDisabledIsNop(t *testing.T) {
	publisher := NewPublisher(config.KafkaConfig{Enabled: false})
	if _, ok := publisher.(NopPublisher); !ok {
		t.Fatalf("expected NopPublisher, got %T", publisher)
	}
	if err := publisher.PublishDistribution(context.Background(), &model.DistributionModel{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}
