package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/config"
	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/yookassa"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrNotActive            = errors.New("subscription is not active")
	ErrNotLinked            = errors.New("Subscription not linked to 3x-ui client")
	ErrInvalidStatus        = errors.New("invalid subscription status")
)

// Enqueuer dispatches provisioning jobs. Satisfied by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, subscriptionID uuid.UUID) error
}

// SubscriptionService owns subscription status transitions. Billing state is
// authoritative here: panel-side provisioning failures never roll a paid
// subscription back.
type SubscriptionService struct {
	db       *gorm.DB
	cfg      *config.Config
	payments *yookassa.Client
	jobs     Enqueuer
}

func NewSubscriptionService(db *gorm.DB, cfg *config.Config, payments *yookassa.Client, jobs Enqueuer) *SubscriptionService {
	return &SubscriptionService{db: db, cfg: cfg, payments: payments, jobs: jobs}
}

// Checkout creates a PENDING subscription and its gateway payment, returning
// the confirmation URL the user is redirected to.
func (s *SubscriptionService) Checkout(ctx context.Context, userID, planID uuid.UUID) (string, error) {
	var plan models.VpnPlan
	if err := s.db.First(&plan, "id = ? AND is_active = true", planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrPlanNotFound
		}
		return "", fmt.Errorf("load plan: %w", err)
	}

	sub := models.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanID:    plan.ID,
		StartDate: time.Now().UTC(),
		EndDate:   time.Now().UTC().AddDate(0, 0, plan.DurationDays),
	}
	sub.SetStatus(models.StatusPending)
	if plan.MaxBandwidth > 0 {
		limit := plan.MaxBandwidth
		sub.TrafficLimit = &limit
	}

	payment, err := s.payments.CreatePayment(ctx,
		strconv.FormatFloat(plan.Price, 'f', 2, 64),
		plan.Currency,
		fmt.Sprintf("SafeSurf VPN: %s", plan.Name),
		s.cfg.PaymentReturnURL,
		map[string]string{
			"subscription_id": sub.ID.String(),
			"plan_id":         plan.ID.String(),
		},
	)
	if err != nil {
		return "", fmt.Errorf("create payment: %w", err)
	}

	sub.PaymentID = payment.ID

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		return tx.Create(&models.Payment{
			ID:             uuid.New(),
			UserID:         userID,
			SubscriptionID: &sub.ID,
			Amount:         plan.Price,
			Currency:       plan.Currency,
			Status:         "pending",
			YooKassaID:     payment.ID,
		}).Error
	})
	if err != nil {
		return "", fmt.Errorf("persist checkout: %w", err)
	}

	return payment.Confirmation.ConfirmationURL, nil
}

// OnPaymentSucceeded activates the unique PENDING subscription carrying the
// payment id. Duplicate webhook deliveries for the same payment find no
// PENDING subscription and no-op, so replays are harmless. Provisioning is
// dispatched to the job queue; an enqueue failure is logged and left to the
// sweep, never rolled into the activation.
func (s *SubscriptionService) OnPaymentSucceeded(ctx context.Context, paymentID string) error {
	var sub models.Subscription
	err := s.db.Where("payment_id = ? AND status = ?", paymentID, models.StatusPending).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Info("payment.succeeded with no pending subscription, ignoring (likely replay)",
			"yookassa_id", paymentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup pending subscription: %w", err)
	}

	var plan models.VpnPlan
	if err := s.db.First(&plan, "id = ?", sub.PlanID).Error; err != nil {
		return fmt.Errorf("load plan: %w", err)
	}

	now := time.Now().UTC()
	sub.SetStatus(models.StatusActive)
	sub.StartDate = now
	sub.EndDate = now.AddDate(0, 0, plan.DurationDays)
	if sub.XUIClientID == "" {
		sub.XUIClientID = uuid.New().String()
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
			"status":        sub.Status,
			"is_active":     sub.IsActive,
			"start_date":    sub.StartDate,
			"end_date":      sub.EndDate,
			"xui_client_id": sub.XUIClientID,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("yoo_kassa_id = ?", paymentID).
			Update("status", "succeeded").Error
	})
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	slog.Info("subscription activated",
		"subscription_id", sub.ID.String(), "yookassa_id", paymentID)

	if err := s.jobs.Enqueue(ctx, sub.ID); err != nil {
		slog.Error("failed to enqueue provisioning after activation",
			"subscription_id", sub.ID.String(), "action", "enqueue", "error", err)
	}

	return nil
}

// OnPaymentCanceled cancels the matching PENDING subscription. No panel-side
// cleanup is needed: PENDING subscriptions are never provisioned.
func (s *SubscriptionService) OnPaymentCanceled(ctx context.Context, paymentID string) error {
	var sub models.Subscription
	err := s.db.Where("payment_id = ? AND status = ?", paymentID, models.StatusPending).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		slog.Info("payment.canceled with no pending subscription, ignoring", "yookassa_id", paymentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup pending subscription: %w", err)
	}

	sub.SetStatus(models.StatusCancelled)

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
			"status":    sub.Status,
			"is_active": sub.IsActive,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("yoo_kassa_id = ?", paymentID).
			Update("status", "canceled").Error
	})
}

// Extend adds days to the validity window and forces the subscription back to
// ACTIVE. Used for admin recovery and trial extensions.
func (s *SubscriptionService) Extend(ctx context.Context, subscriptionID uuid.UUID, days int) error {
	var sub models.Subscription
	if err := s.db.First(&sub, "id = ?", subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}

	sub.EndDate = sub.EndDate.AddDate(0, 0, days)
	sub.SetStatus(models.StatusActive)
	if sub.XUIClientID == "" {
		sub.XUIClientID = uuid.New().String()
	}

	if err := s.db.Model(&models.Subscription{}).Where("id = ?", sub.ID).Updates(map[string]interface{}{
		"status":        sub.Status,
		"is_active":     sub.IsActive,
		"end_date":      sub.EndDate,
		"xui_client_id": sub.XUIClientID,
	}).Error; err != nil {
		return err
	}

	if err := s.jobs.Enqueue(ctx, sub.ID); err != nil {
		slog.Error("failed to enqueue provisioning after extension",
			"subscription_id", sub.ID.String(), "action", "enqueue", "error", err)
	}
	return nil
}

// UpdateStatus is the admin override. IsActive stays derived from status.
func (s *SubscriptionService) UpdateStatus(ctx context.Context, subscriptionID uuid.UUID, status models.SubscriptionStatus) error {
	if !models.ValidStatus(status) {
		return ErrInvalidStatus
	}

	result := s.db.Model(&models.Subscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"status":    status,
			"is_active": status == models.StatusActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// GetForUser returns the user's most recent subscription with plan and
// configs preloaded.
func (s *SubscriptionService) GetForUser(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Preload("Plan").
		Preload("Configs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByFeedUUID resolves the capability token used by the public feed.
func (s *SubscriptionService) GetByFeedUUID(ctx context.Context, feedUUID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.Preload("Configs", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("feed_uuid = ?", feedUUID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// EnsureFeedUUID lazily assigns the feed token. Once set it never changes.
func (s *SubscriptionService) EnsureFeedUUID(ctx context.Context, sub *models.Subscription) (string, error) {
	if sub.FeedUUID != nil && *sub.FeedUUID != "" {
		return *sub.FeedUUID, nil
	}

	token := uuid.New().String()
	if err := s.db.Model(&models.Subscription{}).
		Where("id = ? AND feed_uuid IS NULL", sub.ID).
		Update("feed_uuid", token).Error; err != nil {
		return "", err
	}

	// A concurrent assignment may have won; read back the authoritative value.
	var fresh models.Subscription
	if err := s.db.Select("feed_uuid").First(&fresh, "id = ?", sub.ID).Error; err != nil {
		return "", err
	}
	if fresh.FeedUUID == nil {
		return "", fmt.Errorf("feed uuid assignment failed for %s", sub.ID)
	}
	sub.FeedUUID = fresh.FeedUUID
	return *fresh.FeedUUID, nil
}

// ExpireDue transitions all ACTIVE subscriptions past their end date to
// EXPIRED and returns them so the caller can remove the panel-side clients.
func (s *SubscriptionService) ExpireDue(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	var due []models.Subscription
	if err := s.db.Where("status = ? AND end_date < ?", models.StatusActive, now).Find(&due).Error; err != nil {
		return nil, fmt.Errorf("query due subscriptions: %w", err)
	}

	for i := range due {
		due[i].SetStatus(models.StatusExpired)
		if err := s.db.Model(&models.Subscription{}).Where("id = ?", due[i].ID).Updates(map[string]interface{}{
			"status":    due[i].Status,
			"is_active": due[i].IsActive,
		}).Error; err != nil {
			slog.Error("failed to expire subscription",
				"subscription_id", due[i].ID.String(), "action", "expire", "error", err)
		}
	}

	return due, nil
}

// ActiveSubscriptions lists all currently ACTIVE subscriptions.
func (s *SubscriptionService) ActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.Where("status = ?", models.StatusActive).Find(&subs).Error
	return subs, err
}

// ExpiringBetween lists ACTIVE subscriptions whose end date falls inside the
// window, for pre-expiry notification.
func (s *SubscriptionService) ExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.Preload("User").
		Where("status = ? AND end_date BETWEEN ? AND ?", models.StatusActive, from, to).
		Find(&subs).Error
	return subs, err
}
