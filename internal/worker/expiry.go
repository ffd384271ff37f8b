package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

const (
	notifyWindow   = 24 * time.Hour
	notifyDedupTTL = 48 * time.Hour
)

// subscriptionStore is the slice of the subscription service the sweep uses.
type subscriptionStore interface {
	ExpireDue(ctx context.Context, now time.Time) ([]models.Subscription, error)
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Subscription, error)
	ActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
}

// provisioner is the panel-side end of the sweep.
type provisioner interface {
	Deprovision(ctx context.Context, subscriptionID uuid.UUID) error
	RefreshUsage(ctx context.Context, sub *models.Subscription) error
}

// Sweeper is the periodic reconciliation loop: it expires overdue
// subscriptions, tears their panel clients down, refreshes traffic counters
// and flags subscriptions approaching expiry. One run executes immediately on
// start so a restart never extends anyone's access.
type Sweeper struct {
	subscriptions subscriptionStore
	provisioner   provisioner
	redis         *redis.Client
	interval      time.Duration
	stop          chan struct{}
	done          chan struct{}
}

func NewSweeper(subscriptions subscriptionStore, provisioner provisioner, rdb *redis.Client, interval time.Duration) *Sweeper {
	return &Sweeper{
		subscriptions: subscriptions,
		provisioner:   provisioner,
		redis:         rdb,
		interval:      interval,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)

		s.sweep()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	expired, err := s.subscriptions.ExpireDue(ctx, now)
	if err != nil {
		slog.Error("expiry sweep failed", "action", "sweep", "error", err)
	}
	for i := range expired {
		if err := s.provisioner.Deprovision(ctx, expired[i].ID); err != nil {
			slog.Error("deprovision of expired subscription failed",
				"subscription_id", expired[i].ID.String(),
				"action", "deprovision",
				"error", err)
		}
	}
	if len(expired) > 0 {
		slog.Info("expired subscriptions swept", "count", len(expired))
	}

	s.notifyExpiring(ctx, now)
	s.refreshUsage(ctx)
}

// notifyExpiring flags subscriptions inside the pre-expiry window at most
// once per subscription, deduplicated through Redis.
func (s *Sweeper) notifyExpiring(ctx context.Context, now time.Time) {
	expiring, err := s.subscriptions.ExpiringBetween(ctx, now, now.Add(notifyWindow))
	if err != nil {
		slog.Error("expiring query failed", "action", "notify", "error", err)
		return
	}

	for i := range expiring {
		sub := &expiring[i]
		key := "notify:expiry:" + sub.ID.String()
		fresh, err := s.redis.SetNX(ctx, key, "1", notifyDedupTTL).Result()
		if err != nil || !fresh {
			continue
		}
		slog.Info("subscription expiring soon",
			"subscription_id", sub.ID.String(),
			"user_id", sub.UserID.String(),
			"end_date", sub.EndDate,
			"action", "expiry_notice")
	}
}

func (s *Sweeper) refreshUsage(ctx context.Context) {
	active, err := s.subscriptions.ActiveSubscriptions(ctx)
	if err != nil {
		slog.Error("usage refresh query failed", "action", "refresh_usage", "error", err)
		return
	}

	for i := range active {
		if active[i].XUIClientID == "" {
			continue
		}
		if err := s.provisioner.RefreshUsage(ctx, &active[i]); err != nil {
			slog.Warn("usage refresh failed",
				"subscription_id", active[i].ID.String(), "error", err)
		}
	}
}
