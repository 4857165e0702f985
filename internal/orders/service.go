package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	product "github.com/angelmondragon/bookstore-backend/internal/products"
	"github.com/angelmondragon/bookstore-backend/internal/users"
	"github.com/angelmondragon/bookstore-backend/pkg/db"
	"github.com/angelmondragon/bookstore-backend/pkg/db/models"
	"github.com/angelmondragon/bookstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
	"github.com/angelmondragon/bookstore-backend/pkg/logger"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox"
	"github.com/angelmondragon/bookstore-backend/pkg/outbox/payloads"
	pkgstripe "github.com/angelmondragon/bookstore-backend/pkg/stripe"
	"github.com/angelmondragon/bookstore-backend/pkg/types"
)

const unavailableProduct = "Unavailable product"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order placement, payment completion and admin status updates.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error)
	StartStripeCheckout(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*CheckoutSessionDTO, error)
	CompleteStripeCheckout(ctx context.Context, session CompletedSession) (*OrderDTO, bool, error)
	ListAll(ctx context.Context) ([]OrderDTO, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error)
	UpdateStatus(ctx context.Context, adminID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error)
}

// ServiceParams bundles the dependencies required to build an orders service.
// Checkout may be nil when card payments are disabled.
type ServiceParams struct {
	Repo        Repository
	Users       *users.Repository
	Products    *product.Repository
	Tx          txRunner
	Activity    activity.Recorder
	Outbox      outbox.Emitter
	Checkout    pkgstripe.CheckoutSessions
	DeliveryFee decimal.Decimal
	ClientURL   string
	Logger      *logger.Logger
	Clock       func() time.Time
}

type service struct {
	repo        Repository
	users       *users.Repository
	products    *product.Repository
	tx          txRunner
	activity    activity.Recorder
	outbox      outbox.Emitter
	checkout    pkgstripe.CheckoutSessions
	deliveryFee decimal.Decimal
	clientURL   string
	logg        *logger.Logger
	now         func() time.Time
	validate    *validator.Validate
}

// NewService builds an orders service backed by the provided stack.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Activity == nil {
		return nil, fmt.Errorf("activity recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DeliveryFee.IsNegative() {
		return nil, fmt.Errorf("delivery fee must not be negative")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:        params.Repo,
		users:       params.Users,
		products:    params.Products,
		tx:          params.Tx,
		activity:    params.Activity,
		outbox:      params.Outbox,
		checkout:    params.Checkout,
		deliveryFee: params.DeliveryFee,
		clientURL:   strings.TrimRight(params.ClientURL, "/"),
		logg:        params.Logger,
		now:         clock,
		validate:    validator.New(),
	}, nil
}

// PlaceOrder creates a cash-on-delivery order. The order row, the cleared
// cart, the activity entry and the order_placed event commit together.
func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*OrderDTO, error) {
	actor := "Unknown"
	order, err := func() (*models.Order, error) {
		user, err := s.loadUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		actor = user.Name
		if err := s.validateInput(input); err != nil {
			return nil, err
		}
		items, err := s.snapshot(ctx, input.Items)
		if err != nil {
			return nil, err
		}

		order := &models.Order{
			UserID:        &userID,
			Items:         items,
			Amount:        items.Subtotal().Add(s.deliveryFee).Round(2),
			Address:       input.Address,
			Status:        enums.OrderStatusPlaced,
			Payment:       false,
			PaymentMethod: enums.PaymentMethodCOD,
		}
		if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.persistPlaced(ctx, tx, user, order)
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "place order")
		}
		return order, nil
	}()
	if err != nil {
		s.activity.Record(ctx, activity.Entry{
			UserID: &userID,
			Actor:  actor,
			Action: "failed to place",
			Target: "order",
			Status: enums.ActivityStatusFailed,
		})
		return nil, err
	}
	return FromModel(order), nil
}

// StartStripeCheckout prices the order from the catalog and opens a hosted
// Checkout Session. The order itself is created by the payment webhook.
func (s *service) StartStripeCheckout(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*CheckoutSessionDTO, error) {
	if s.checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "card payments are not configured")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	items, err := s.snapshot(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	lines := make([]sessionLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, sessionLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCents: toCents(item.Price),
		})
	}
	meta, err := encodeMetadata(user.ID, input.Address, lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "order too large for card checkout")
	}

	params := buildSessionParams(items, s.deliveryFee, user.ID.String(), user.Email, s.clientURL)
	for key, value := range meta {
		params.AddMetadata(key, value)
	}

	session, err := s.checkout.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"user_id":    user.ID.String(),
			"session_id": session.ID,
		})
		s.logg.Info(logCtx, "checkout session created")
	}
	return &CheckoutSessionDTO{SessionID: session.ID, URL: session.URL}, nil
}

// CompleteStripeCheckout creates the paid order for a completed session. The
// session id is unique on orders, so replays return the existing order and
// report created=false.
func (s *service) CompleteStripeCheckout(ctx context.Context, session CompletedSession) (*OrderDTO, bool, error) {
	sessionID := strings.TrimSpace(session.ID)
	if sessionID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id required")
	}
	if existing, err := s.existingSession(ctx, sessionID); err != nil || existing != nil {
		return existing, false, err
	}

	userID, address, lines, err := decodeMetadata(session.Metadata)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout metadata")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	items, err := s.paidItems(ctx, lines)
	if err != nil {
		return nil, false, err
	}

	amount := items.Subtotal().Add(s.deliveryFee).Round(2)
	if session.AmountTotal > 0 {
		amount = decimal.New(session.AmountTotal, -2)
	}
	customerID := user.ID
	order := &models.Order{
		UserID:           &customerID,
		Items:            items,
		Amount:           amount,
		Address:          address,
		Status:           enums.OrderStatusPlaced,
		Payment:          true,
		PaymentMethod:    enums.PaymentMethodStripe,
		PaymentSessionID: &sessionID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.persistPlaced(ctx, tx, user, order)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			existing, lookupErr := s.existingSession(ctx, sessionID)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create paid order")
	}
	return FromModel(order), true, nil
}

func (s *service) ListAll(ctx context.Context) ([]OrderDTO, error) {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return FromModels(list), nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]OrderDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list user orders")
	}
	return FromModels(list), nil
}

// UpdateStatus sets any non-empty status. The tracking history gains one
// entry per update; the customer and admin fan-out happens downstream of the
// order_status_changed event.
func (s *service) UpdateStatus(ctx context.Context, adminID uuid.UUID, input UpdateStatusInput) (*OrderDTO, error) {
	status := strings.TrimSpace(input.Status)
	if input.OrderID == uuid.Nil || status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Order ID and status are required")
	}
	var tracking *string
	if input.TrackingNumber != nil {
		if trimmed := strings.TrimSpace(*input.TrackingNumber); trimmed != "" {
			tracking = &trimmed
		}
	}
	actor := s.actorLabel(ctx, adminID)

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return err
		}
		events := append(order.TrackingEvents, types.TrackingEvent{Status: status, Time: s.now().UTC()})
		if err := repo.UpdateStatus(ctx, order.ID, status, tracking, events); err != nil {
			return err
		}
		if err := s.activity.RecordTx(ctx, tx, activity.Entry{
			UserID: &adminID,
			Actor:  actor,
			Action: fmt.Sprintf("Changed order status to %q for order ID %s", status, order.ID),
			Target: "Order: " + order.ID.String(),
		}); err != nil {
			return err
		}

		payload := payloads.OrderStatusChangedEvent{
			OrderID:    order.ID,
			CustomerID: customerOf(order),
			ChangedBy:  adminID,
			Status:     status,
		}
		if tracking != nil {
			payload.TrackingNumber = *tracking
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.RoleAdmin.String()},
			Data:          payload,
		}); err != nil {
			return err
		}

		updated, err = repo.FindByID(ctx, order.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	return FromModel(updated), nil
}

func (s *service) persistPlaced(ctx context.Context, tx *gorm.DB, user *models.User, order *models.Order) error {
	if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
		return err
	}
	if err := s.users.WithTx(tx).SaveCart(ctx, user.ID, types.NewCart()); err != nil {
		return err
	}
	action := "placed"
	if order.Payment {
		action = "paid for"
	}
	if err := s.activity.RecordTx(ctx, tx, activity.Entry{
		UserID: &user.ID,
		Actor:  user.Name,
		Action: action,
		Target: "order",
	}); err != nil {
		return err
	}

	count := 0
	for _, item := range order.Items {
		count += item.Quantity
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: user.ID, Role: user.Role.String()},
		Data: payloads.OrderPlacedEvent{
			OrderID:       order.ID,
			UserID:        user.ID,
			CustomerName:  user.Name,
			Amount:        order.Amount.StringFixed(2),
			ItemCount:     count,
			PaymentMethod: order.PaymentMethod.String(),
		},
	})
}

func (s *service) validateInput(input PlaceOrderInput) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "Cart is empty")
	}
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order")
	}
	return nil
}

// snapshot freezes the catalog name, price and first image of every line.
// Repeated products are merged.
func (s *service) snapshot(ctx context.Context, lines []LineInput) (types.OrderItems, error) {
	order := make([]uuid.UUID, 0, len(lines))
	quantities := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if line.ProductID == uuid.Nil || line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every item needs a product and a positive quantity")
		}
		if _, seen := quantities[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		quantities[line.ProductID] += line.Quantity
	}

	known, err := s.products.FindByIDs(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order products")
	}
	items := make(types.OrderItems, 0, len(order))
	for _, id := range order {
		p, ok := known[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("Product %s is no longer available", id))
		}
		items = append(items, types.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  quantities[id],
			Image:     firstImage(p),
		})
	}
	return items, nil
}

// paidItems rebuilds the snapshot at the prices that were charged. Products
// deleted since checkout keep their line under a placeholder name.
func (s *service) paidItems(ctx context.Context, lines []sessionLine) (types.OrderItems, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	known, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order products")
	}
	items := make(types.OrderItems, 0, len(lines))
	for _, line := range lines {
		item := types.OrderItem{
			ProductID: line.ProductID,
			Name:      unavailableProduct,
			Price:     decimal.New(line.UnitCents, -2),
			Quantity:  line.Quantity,
		}
		if p, ok := known[line.ProductID]; ok {
			item.Name = p.Name
			item.Image = firstImage(p)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *service) existingSession(ctx context.Context, sessionID string) (*OrderDTO, error) {
	order, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup checkout session")
	}
	return FromModel(order), nil
}

func (s *service) loadUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Invalid user ID")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "User not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return user, nil
}

func (s *service) actorLabel(ctx context.Context, id uuid.UUID) string {
	if user, err := s.users.FindByID(ctx, id); err == nil {
		return user.Email
	}
	return "admin"
}

func firstImage(p models.Product) string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func customerOf(order *models.Order) uuid.UUID {
	if order.UserID == nil {
		return uuid.Nil
	}
	return *order.UserID
}
