package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bookstore-backend/pkg/logger"
)

const metricsShutdownTimeout = 5 * time.Second

type pinger interface {
	Ping(context.Context) error
}

type runner interface {
	Run(context.Context) error
}

type ServiceParams struct {
	Logger        *logger.Logger
	DB            pinger
	Redis         pinger
	PubSub        pinger
	Notifications runner
	Emails        runner
	MetricsServer *http.Server
}

// Service runs the order notification and email consumers side by side. The
// first consumer to fail cancels the other.
type Service struct {
	logg          *logger.Logger
	db            pinger
	redis         pinger
	pubsub        pinger
	notifications runner
	emails        runner
	metricsServer *http.Server
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Notifications == nil {
		return nil, errors.New("notification consumer is required")
	}
	if params.Emails == nil {
		return nil, errors.New("email consumer is required")
	}
	return &Service{
		logg:          params.Logger,
		db:            params.DB,
		redis:         params.Redis,
		pubsub:        params.PubSub,
		notifications: params.Notifications,
		emails:        params.Emails,
		metricsServer: params.MetricsServer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"redis", s.redis.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := pingDependency(ctx, s.logg, dep.name, dep.fn); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.consume(groupCtx, "order-notifications", s.notifications)
	})
	group.Go(func() error {
		return s.consume(groupCtx, "email-jobs", s.emails)
	})
	if s.metricsServer != nil {
		group.Go(func() error {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return s.metricsServer.Shutdown(shutdownCtx)
		})
	}

	err := group.Wait()
	if ctx.Err() != nil {
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	}
	return err
}

func (s *Service) consume(ctx context.Context, name string, consumer runner) error {
	ctx = s.logg.WithField(ctx, "consumer", name)
	s.logg.Info(ctx, "consumer started")
	err := consumer.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	if ctx.Err() == nil {
		return fmt.Errorf("%s: subscription closed", name)
	}
	return nil
}
