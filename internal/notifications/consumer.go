package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/metrics"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/registry"
)

const orderNotificationConsumer = "order-notifications"

type userLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAdmins(ctx context.Context, exclude *uuid.UUID) ([]models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type subscriber interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// ConsumerParams bundles the dependencies of the order event consumer.
type ConsumerParams struct {
	Repo         Repository
	Users        userLookup
	Outbox       outbox.Emitter
	Tx           txRunner
	Subscription subscriber
	Idempotency  *idempotency.Manager
	Decoders     *registry.DecoderRegistry
	Metrics      *metrics.EventMetrics
	Logger       *logger.Logger
}

// Consumer turns order events into in-app notifications and queues one email
// job per recipient.
type Consumer struct {
	repo         Repository
	users        userLookup
	outbox       outbox.Emitter
	tx           txRunner
	subscription subscriber
	idempotency  *idempotency.Manager
	decoders     *registry.DecoderRegistry
	metrics      *metrics.EventMetrics
	logg         *logger.Logger
}

// NewConsumer builds the order notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
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
	return &Consumer{
		repo:         params.Repo,
		users:        params.Users,
		outbox:       params.Outbox,
		tx:           params.Tx,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		decoders:     decoders,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

// decodedMessage is a Pub/Sub message unwrapped into its typed payload.
type decodedMessage struct {
	eventType enums.OutboxEventType
	eventID   uuid.UUID
	payload   interface{}
}

func decodeMessage(decoders *registry.DecoderRegistry, msg *pubsub.Message) (decodedMessage, error) {
	eventType, err := enums.ParseOutboxEventType(msg.Attributes["event_type"])
	if err != nil {
		return decodedMessage{}, err
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		return decodedMessage{}, fmt.Errorf("decode envelope: %w", err)
	}
	eventID, err := envelope.ParsedEventID()
	if err != nil {
		return decodedMessage{}, fmt.Errorf("invalid event id: %w", err)
	}
	payload, err := decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return decodedMessage{}, fmt.Errorf("decode payload: %w", err)
	}
	return decodedMessage{eventType: eventType, eventID: eventID, payload: payload}, nil
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	started := time.Now()
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	switch enums.OutboxEventType(eventType) {
	case enums.EventOrderPlaced, enums.EventOrderStatusChanged:
	default:
		c.logg.Info(logCtx, "skipping event not handled by order notifications")
		return processResult{ack: true}
	}

	decoded, err := decodeMessage(c.decoders, msg)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		c.metrics.IncFailure(eventType, "decode")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", decoded.eventID.String())

	skipped, err := c.idempotency.Run(ctx, orderNotificationConsumer, decoded.eventID, func(ctx context.Context) error {
		return c.handle(ctx, decoded)
	})
	if err != nil {
		c.logg.Error(logCtx, "order notification handling failed", err)
		c.metrics.IncFailure(eventType, "handler")
		return processResult{nack: true}
	}
	if skipped {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	c.metrics.IncSuccess(eventType)
	c.metrics.ObserveDuration(eventType, time.Since(started))
	return processResult{ack: true}
}

func (c *Consumer) handle(ctx context.Context, decoded decodedMessage) error {
	switch payload := decoded.payload.(type) {
	case payloads.OrderPlacedEvent:
		return c.handleOrderPlaced(ctx, decoded.eventID, payload)
	case payloads.OrderStatusChangedEvent:
		return c.handleStatusChanged(ctx, decoded.eventID, payload)
	default:
		return fmt.Errorf("unexpected payload %T", decoded.payload)
	}
}

func (c *Consumer) handleOrderPlaced(ctx context.Context, eventID uuid.UUID, payload payloads.OrderPlacedEvent) error {
	admins, err := c.users.ListAdmins(ctx, nil)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		c.logg.Warn(ctx, "no admin to notify of new order")
		return nil
	}
	name := payload.CustomerName
	if name == "" {
		name = "a customer"
	}
	_, err = c.repo.CreateForEvent(ctx, []models.Notification{{
		UserID:  admins[0].ID,
		Type:    enums.NotificationTypeOrder,
		Message: fmt.Sprintf("New order placed by %s.", name),
		EventID: &eventID,
	}})
	return err
}

func (c *Consumer) handleStatusChanged(ctx context.Context, eventID uuid.UUID, payload payloads.OrderStatusChangedEvent) error {
	orderID := payload.OrderID.String()

	var customer *models.User
	found, err := c.users.FindByID(ctx, payload.CustomerID)
	switch {
	case err == nil:
		customer = found
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.logg.Warn(ctx, "order customer no longer exists")
	default:
		return fmt.Errorf("load customer: %w", err)
	}

	exclude := payload.ChangedBy
	admins, err := c.users.ListAdmins(ctx, &exclude)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}

	rows := make([]models.Notification, 0, len(admins)+1)
	emails := make([]outbox.DomainEvent, 0, len(admins)+1)
	data := map[string]string{"orderId": orderID, "status": payload.Status}

	if customer != nil {
		rows = append(rows, models.Notification{
			UserID:  customer.ID,
			Type:    enums.NotificationTypeOrder,
			Message: fmt.Sprintf("Your order (ID: %s) status has been updated to \"%s\".", orderID, payload.Status),
			EventID: &eventID,
		})
		emails = append(emails, emailJob(customer, payloads.EmailOrderStatusCustomer, data))
	}
	for i := range admins {
		admin := &admins[i]
		if customer != nil && admin.ID == customer.ID {
			continue
		}
		rows = append(rows, models.Notification{
			UserID:  admin.ID,
			Type:    enums.NotificationTypeOrder,
			Message: fmt.Sprintf("Order ID %s status has been updated to \"%s\".", orderID, payload.Status),
			EventID: &eventID,
		})
		emails = append(emails, emailJob(admin, payloads.EmailOrderStatusAdmin, data))
	}

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := c.repo.WithTx(tx).CreateForEvent(ctx, rows); err != nil {
			return fmt.Errorf("insert notifications: %w", err)
		}
		for _, job := range emails {
			if err := c.outbox.Emit(ctx, tx, job); err != nil {
				return fmt.Errorf("queue email: %w", err)
			}
		}
		return nil
	})
}

func emailJob(user *models.User, template payloads.EmailTemplate, data map[string]string) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventEmailRequested,
		AggregateType: enums.AggregateUser,
		AggregateID:   user.ID,
		Data: payloads.EmailRequestedEvent{
			To:       user.Email,
			Name:     user.Name,
			Template: template,
			Data:     data,
		},
	}
}
