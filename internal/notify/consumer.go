package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"case-distribution/internal/models"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// EntryHandler processes one ledger entry received from the feed.
type EntryHandler func(ctx context.Context, entry *models.LedgerEntry) error

// Subscribe attaches a durable consumer to stream and calls handle for each
// ledger entry. A message is acked only after handle succeeds; undecodable
// messages are terminated so they are not redelivered forever.
func Subscribe(ctx context.Context, js jetstream.JetStream, stream, durable string, handle EntryHandler, logger *zap.Logger) (jetstream.ConsumeContext, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:   durable,
		AckPolicy: jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer %s on %s: %w", durable, stream, err)
	}

	return cons.Consume(func(msg jetstream.Msg) {
		var entry models.LedgerEntry
		if err := json.Unmarshal(msg.Data(), &entry); err != nil {
			logger.Warn("dropping undecodable message", zap.String("subject", msg.Subject()), zap.Error(err))
			_ = msg.Term()
			return
		}
		if err := handle(ctx, &entry); err != nil {
			logger.Warn("ledger entry handler failed, will be redelivered",
				zap.String("entry_id", entry.ID), zap.Int64("seq", entry.Seq), zap.Error(err))
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			logger.Warn("ack failed", zap.String("entry_id", entry.ID), zap.Error(err))
		}
	})
}
