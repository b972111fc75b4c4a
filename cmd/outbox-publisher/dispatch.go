package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/supportdesk-backend/pkg/db/models"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	"github.com/angelmondragon/supportdesk-backend/pkg/outbox/registry"
)

// inflight is a row whose message has been handed to the publisher and is
// awaiting its server ack.
type inflight struct {
	event  models.OutboxEvent
	fields map[string]any
	pub    publisher
	key    string
	result publishResult
}

type batchTally struct {
	published, retried, deadLettered int
}

// processBatch reports whether any row was claimed. A returned error rolls
// the whole batch back so every row is retried on the next poll.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var tally batchTally
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.ClaimBatch(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()

		var waiting []inflight
		for _, event := range events {
			item, err := s.send(publishCtx, event)
			if err != nil {
				if err := s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, item.fields); err != nil {
					return err
				}
				tally.deadLettered++
				continue
			}
			waiting = append(waiting, item)
		}

		resumed := map[string]bool{}
		for _, item := range waiting {
			_, pubErr := item.result.Get(publishCtx)
			if pubErr == nil {
				if err := s.repo.MarkPublished(tx, item.event.ID); err != nil {
					return fmt.Errorf("mark published %s: %w", item.event.ID, err)
				}
				s.metrics.Published(string(item.event.EventType))
				s.logg.Debug(s.logg.WithFields(ctx, item.fields), "outbox event published")
				tally.published++
				continue
			}

			// The client pauses a key after a failure; later rows on the
			// same key fail too and are retried together next poll.
			if r, ok := item.pub.(orderingResumer); ok && !resumed[item.key] {
				r.ResumePublish(item.key)
				resumed[item.key] = true
			}
			deadLettered, err := s.retryOrDeadLetter(ctx, tx, item, pubErr)
			if err != nil {
				return err
			}
			if deadLettered {
				tally.deadLettered++
			} else {
				tally.retried++
			}
		}
		return nil
	})
	if processed && err == nil && (tally.retried > 0 || tally.deadLettered > 0) {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"published":     tally.published,
			"retried":       tally.retried,
			"dead_lettered": tally.deadLettered,
		}), "outbox batch finished with failures")
	}
	return processed, err
}

// send resolves the row and hands it to the topic publisher. Any error is
// terminal for the row.
func (s *Service) send(ctx context.Context, event models.OutboxEvent) (inflight, error) {
	item := inflight{event: event, key: event.AggregateID.String(), fields: eventFields(event, nil)}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return item, err
	}
	item.fields = eventFields(event, resolved)

	topic := resolved.Descriptor.Topic
	item.pub = s.publishers.get(topic)
	if item.pub == nil {
		return item, registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	item.result = item.pub.Publish(ctx, buildMessage(event, resolved))
	if item.result == nil {
		return item, registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	return item, nil
}

// buildMessage keys messages by complaint so subscribers see one complaint's
// events in commit order.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func (s *Service) retryOrDeadLetter(ctx context.Context, tx *gorm.DB, item inflight, pubErr error) (bool, error) {
	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return true, s.deadLetter(ctx, tx, item.event, enums.OutboxDLQReasonNonRetryable, pubErr, item.fields)
	}

	attempt := item.event.AttemptCount + 1
	item.fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		err := fmt.Errorf("max publish attempts reached: %w", pubErr)
		return true, s.deadLetter(ctx, tx, item.event, enums.OutboxDLQReasonMaxAttempts, err, item.fields)
	}

	warnCtx := s.logg.WithFields(ctx, item.fields)
	s.logg.Warn(s.logg.WithField(warnCtx, "error", pubErr.Error()), "outbox publish failed")
	if err := s.repo.RecordFailure(tx, item.event.ID, pubErr); err != nil {
		return false, fmt.Errorf("mark failure %s: %w", item.event.ID, err)
	}
	s.metrics.Retried(string(item.event.EventType))
	return false, nil
}

// deadLetter copies the row into outbox_dlq and parks it at the attempt cap
// so the poll query never claims it again.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	if fields == nil {
		fields = eventFields(event, nil)
	}
	fields["error_reason"] = reason
	warnCtx := s.logg.WithFields(ctx, fields)
	s.logg.Warn(s.logg.WithField(warnCtx, "error", cause.Error()), "outbox event dead-lettered")

	entry := models.DeadLetterOf(event, reason, cause, time.Now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.Park(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.DeadLettered(string(event.EventType), string(reason))
	return nil
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"complaint_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if resolved.Envelope.EventID != "" {
			fields["event_id"] = resolved.Envelope.EventID
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
