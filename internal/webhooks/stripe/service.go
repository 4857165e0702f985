package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/bookstore-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

type checkoutCompleter interface {
	CompleteStripeCheckout(ctx context.Context, session orders.CompletedSession) (*orders.OrderDTO, bool, error)
}

type ServiceParams struct {
	Orders checkoutCompleter
	Logger *logger.Logger
}

// Service turns verified Stripe events into paid orders.
type Service struct {
	orders checkoutCompleter
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent creates the order for paid checkout sessions and ignores every
// other event type. Sessions whose metadata cannot be turned into an order
// are logged and acknowledged, since Stripe retries would never succeed.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.log(ctx, event, session.ID, "checkout session completed without payment; waiting for async payment")
		return nil
	}

	completed := orders.CompletedSession{
		ID:          session.ID,
		Metadata:    session.Metadata,
		AmountTotal: session.AmountTotal,
	}
	if session.CustomerDetails != nil {
		completed.CustomerEmail = session.CustomerDetails.Email
	}

	order, created, err := s.orders.CompleteStripeCheckout(ctx, completed)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeValidation) || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			if s.logg != nil {
				s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID), "drop unusable checkout session", err)
			}
			return nil
		}
		return err
	}
	if created {
		s.log(ctx, event, session.ID, fmt.Sprintf("order %s created from checkout session", order.ID))
	} else {
		s.log(ctx, event, session.ID, "checkout session already fulfilled")
	}
	return nil
}

func (s *Service) log(ctx context.Context, event *stripe.Event, sessionID, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"session_id": sessionID,
	})
	s.logg.Info(logCtx, msg)
}
