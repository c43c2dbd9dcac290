package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"case-distribution/internal/models"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// JetStreamNotifier publishes each ledger entry to a JetStream subject. The
// entry ID is used as the message ID, so republishing the same entry after a
// retry is deduplicated by the server.
type JetStreamNotifier struct {
	js      jetstream.JetStream
	stream  string
	subject string
	logger  *zap.Logger
}

var (
	_ Notifier = (*JetStreamNotifier)(nil)
	_ Cursor   = (*JetStreamNotifier)(nil)
)

// NewJetStream ensures the stream exists and returns a notifier bound to subject.
func NewJetStream(ctx context.Context, nc *nats.Conn, stream, subject string, logger *zap.Logger) (*JetStreamNotifier, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{subject},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}

	return &JetStreamNotifier{js: js, stream: stream, subject: subject, logger: logger}, nil
}

func (n *JetStreamNotifier) AssignmentRecorded(ctx context.Context, entry *models.LedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry %s: %w", entry.ID, err)
	}

	ack, err := n.js.Publish(ctx, n.subject, data, jetstream.WithMsgID(entry.ID))
	if err != nil {
		return fmt.Errorf("failed to publish ledger entry %s: %w", entry.ID, err)
	}
	n.logger.Debug("assignment published",
		zap.String("entry_id", entry.ID),
		zap.Uint64("stream_seq", ack.Sequence),
		zap.Bool("duplicate", ack.Duplicate))
	return nil
}

// LastPublishedSeq decodes the newest message on the subject.
func (n *JetStreamNotifier) LastPublishedSeq(ctx context.Context) (int64, error) {
	stream, err := n.js.Stream(ctx, n.stream)
	if err != nil {
		return 0, fmt.Errorf("failed to look up stream %s: %w", n.stream, err)
	}
	msg, err := stream.GetLastMsgForSubject(ctx, n.subject)
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last message on %s: %w", n.subject, err)
	}
	var entry models.LedgerEntry
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		return 0, fmt.Errorf("undecodable last message on %s: %w", n.subject, err)
	}
	return entry.Seq, nil
}
