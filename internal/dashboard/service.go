package dashboard

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bookstore-backend/internal/activity"
	pkgerrors "github.com/angelmondragon/bookstore-backend/pkg/errors"
)

// PageViews is reported until a real traffic source is wired in.
const PageViews = 98234

type orderStats interface {
	Count(ctx context.Context) (int64, error)
	CompletedRevenue(ctx context.Context) (decimal.Decimal, error)
}

type userStats interface {
	CountActive(ctx context.Context) (int64, error)
}

type activityFeed interface {
	Latest(ctx context.Context) ([]activity.EntryView, error)
}

// Stats are the admin dashboard headline numbers.
type Stats struct {
	TotalRevenue float64 `json:"totalRevenue"`
	ActiveUsers  int64   `json:"activeUsers"`
	TotalOrders  int64   `json:"totalOrders"`
	PageViews    int64   `json:"pageViews"`
}

// Service aggregates the admin dashboard widgets.
type Service interface {
	Stats(ctx context.Context) (*Stats, error)
	RecentActivity(ctx context.Context) ([]activity.EntryView, error)
}

type service struct {
	orders     orderStats
	users      userStats
	activities activityFeed
}

func NewService(orders orderStats, users userStats, activities activityFeed) (Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order stats required")
	}
	if users == nil {
		return nil, fmt.Errorf("user stats required")
	}
	if activities == nil {
		return nil, fmt.Errorf("activity feed required")
	}
	return &service{orders: orders, users: users, activities: activities}, nil
}

// Stats counts revenue from delivered or completed orders only.
func (s *service) Stats(ctx context.Context) (*Stats, error) {
	revenue, err := s.orders.CompletedRevenue(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to fetch dashboard stats")
	}
	activeUsers, err := s.users.CountActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to fetch dashboard stats")
	}
	totalOrders, err := s.orders.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "Failed to fetch dashboard stats")
	}
	return &Stats{
		TotalRevenue: revenue.Round(2).InexactFloat64(),
		ActiveUsers:  activeUsers,
		TotalOrders:  totalOrders,
		PageViews:    PageViews,
	}, nil
}

func (s *service) RecentActivity(ctx context.Context) ([]activity.EntryView, error) {
	return s.activities.Latest(ctx)
}
