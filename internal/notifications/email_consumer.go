package notifications

import (
	"context"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/mailer"
	"github.com/angelmondragon/bookstore-backend/pkg/metrics"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/registry"
)

const emailJobConsumer = "email-jobs"

type EmailConsumerParams struct {
	Sender       mailer.Sender
	Subscription subscriber
	Idempotency  *idempotency.Manager
	Decoders     *registry.DecoderRegistry
	Metrics      *metrics.EventMetrics
	Logger       *logger.Logger
}

// EmailConsumer delivers queued email_requested jobs.
type EmailConsumer struct {
	sender       mailer.Sender
	subscription subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	metrics      *metrics.EventMetrics
	logg         *logger.Logger
}

func NewEmailConsumer(params EmailConsumerParams) (*EmailConsumer, error) {
	if params.Sender == nil {
		return nil, fmt.Errorf("email sender required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("email subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := params.Decoders
	if decoders == nil {
		decoders = NewDecoders()
	}
	return &EmailConsumer{
		sender:       params.Sender,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		decoders:     decoders,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

func (c *EmailConsumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *EmailConsumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	started := time.Now()
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if enums.OutboxEventType(eventType) != enums.EventEmailRequested {
		c.logg.Info(logCtx, "skipping non-email event")
		return processResult{ack: true}
	}

	decoded, err := decodeMessage(c.decoders, msg)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode email job", err)
		c.metrics.IncFailure(eventType, "decode")
		return processResult{ack: true}
	}
	job, ok := decoded.payload.(payloads.EmailRequestedEvent)
	if !ok {
		c.logg.Error(logCtx, "unexpected email payload", fmt.Errorf("payload %T", decoded.payload))
		c.metrics.IncFailure(eventType, "decode")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id": decoded.eventID.String(),
		"template": string(job.Template),
	})

	// Unrenderable jobs will never succeed; drop them instead of redelivering.
	message, err := mailer.Render(mailer.Template(job.Template), job.To, job.Name, job.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to render email", err)
		c.metrics.IncFailure(eventType, "render")
		return processResult{ack: true}
	}

	skipped, err := c.idempotency.Run(ctx, emailJobConsumer, decoded.eventID, func(ctx context.Context) error {
		return c.sender.Send(ctx, message)
	})
	if err != nil {
		c.logg.Error(logCtx, "email delivery failed", err)
		c.metrics.IncFailure(eventType, "send")
		return processResult{nack: true}
	}
	if skipped {
		c.logg.Info(logCtx, "email already sent")
		return processResult{ack: true}
	}

	c.metrics.IncSuccess(eventType)
	c.metrics.ObserveDuration(eventType, time.Since(started))
	return processResult{ack: true}
}
