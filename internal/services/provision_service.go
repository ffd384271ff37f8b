package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/sublink"
	"github.com/safesurf-vpn/safesurf-backend/internal/xui"
)

var ErrNoConfigs = errors.New("no configs could be generated on any panel")

const provisionLockTTL = 60 * time.Second

// PanelAPI is the slice of the 3x-ui client the orchestrator needs. Satisfied
// by *xui.Client; tests substitute a fake.
type PanelAPI interface {
	Login(ctx context.Context, panel *models.XUIPanel) (*xui.Session, error)
	ListInbounds(ctx context.Context, s *xui.Session) ([]xui.Inbound, error)
	UpsertClient(ctx context.Context, s *xui.Session, inbound *xui.Inbound, identity string, cons xui.Constraints) (*xui.InboundClient, error)
	RemoveClient(ctx context.Context, s *xui.Session, inboundID int, identity string) error
	ClientStats(ctx context.Context, s *xui.Session, identity string) (up, down int64, err error)
}

// ProvisionService reconciles a subscription's desired state onto every active
// panel. Panels are independent failure domains: one panel being down degrades
// the result, it never fails the sync.
type ProvisionService struct {
	db    *gorm.DB
	redis *redis.Client
	panel PanelAPI
}

func NewProvisionService(db *gorm.DB, rdb *redis.Client, panel PanelAPI) *ProvisionService {
	return &ProvisionService{db: db, redis: rdb, panel: panel}
}

// EnsureProvisioned pushes the subscription's client onto every reachable
// active panel and replaces the persisted config rows with the result. The
// operation is idempotent: panel upserts are keyed by the subscription's
// client identity and config URIs are deterministic, so re-running converges
// to the same rows.
func (p *ProvisionService) EnsureProvisioned(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionConfig, error) {
	var sub models.Subscription
	if err := p.db.Preload("Plan").First(&sub, "id = ?", subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	if sub.Status != models.StatusActive {
		return nil, ErrNotActive
	}
	if sub.XUIClientID == "" {
		return nil, ErrNotLinked
	}

	// One sync per subscription at a time. A concurrent caller gets whatever
	// rows the in-flight sync (or the previous one) persisted.
	lockKey := "provision:lock:" + sub.ID.String()
	locked, err := p.redis.SetNX(ctx, lockKey, "1", provisionLockTTL).Result()
	if err != nil {
		slog.Warn("provision lock unavailable, proceeding without it",
			"subscription_id", sub.ID.String(), "error", err)
		locked = true
	}
	if !locked {
		return p.persistedConfigs(sub.ID)
	}
	defer p.redis.Del(context.WithoutCancel(ctx), lockKey)

	var panels []models.XUIPanel
	if err := p.db.Where("is_active = true").Order("name ASC").Find(&panels).Error; err != nil {
		return nil, fmt.Errorf("load panels: %w", err)
	}

	cons := xui.Constraints{
		ExpiryUnixMilli: sub.EndDate.UnixMilli(),
	}
	if sub.Plan.ID != uuid.Nil {
		cons.MaxDevices = sub.Plan.MaxDevices
	}
	if sub.TrafficLimit != nil {
		cons.TrafficLimitBytes = *sub.TrafficLimit
	}

	allowed := protocolSet(sub.Plan.ProtocolList())

	var configs []models.SubscriptionConfig
	var reached int
	for i := range panels {
		panelConfigs, err := p.syncPanel(ctx, &panels[i], &sub, cons, allowed)
		if err != nil {
			slog.Error("panel sync failed, continuing with remaining panels",
				"subscription_id", sub.ID.String(),
				"panel_id", panels[i].ID.String(),
				"action", "sync_panel",
				"error", err)
			continue
		}
		reached++
		configs = append(configs, panelConfigs...)
	}

	if len(configs) == 0 {
		if reached == 0 && len(panels) > 0 {
			return nil, fmt.Errorf("%w: all %d panels unreachable", ErrNoConfigs, len(panels))
		}
		return nil, ErrNoConfigs
	}

	for i := range configs {
		configs[i].SubscriptionID = sub.ID
		configs[i].Position = i
	}

	err = p.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscription_id = ?", sub.ID).Delete(&models.SubscriptionConfig{}).Error; err != nil {
			return err
		}
		return tx.Create(&configs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persist configs: %w", err)
	}

	slog.Info("subscription provisioned",
		"subscription_id", sub.ID.String(),
		"configs", len(configs),
		"panels_reached", reached,
		"panels_total", len(panels))

	return configs, nil
}

func (p *ProvisionService) syncPanel(ctx context.Context, panel *models.XUIPanel, sub *models.Subscription, cons xui.Constraints, allowed map[string]bool) ([]models.SubscriptionConfig, error) {
	session, err := p.panel.Login(ctx, panel)
	if err != nil {
		return nil, err
	}

	inbounds, err := p.panel.ListInbounds(ctx, session)
	if err != nil {
		return nil, err
	}

	var configs []models.SubscriptionConfig
	for i := range inbounds {
		inbound := inbounds[i]
		if !inbound.Enable {
			continue
		}
		if allowed != nil && !allowed[inbound.Protocol] {
			continue
		}

		if _, err := p.panel.UpsertClient(ctx, session, &inbound, sub.XUIClientID, cons); err != nil {
			var unavailable *xui.UnavailableError
			if errors.As(err, &unavailable) {
				return nil, err
			}
			slog.Error("inbound client upsert failed, skipping inbound",
				"subscription_id", sub.ID.String(),
				"panel_id", panel.ID.String(),
				"inbound_id", inbound.ID,
				"action", "upsert_client",
				"error", err)
			continue
		}

		link, err := sublink.FromInbound(panel.Host, panel.Location, inbound, sub.XUIClientID)
		if err != nil {
			slog.Error("link generation failed, skipping inbound",
				"subscription_id", sub.ID.String(),
				"panel_id", panel.ID.String(),
				"inbound_id", inbound.ID,
				"action", "build_link",
				"error", err)
			continue
		}

		uri, err := link.URI()
		if err != nil {
			slog.Error("link encoding failed, skipping inbound",
				"subscription_id", sub.ID.String(),
				"panel_id", panel.ID.String(),
				"inbound_id", inbound.ID,
				"action", "build_link",
				"error", err)
			continue
		}

		qr, err := sublink.QRDataURI(uri)
		if err != nil {
			slog.Warn("qr encoding failed, storing config without qr",
				"subscription_id", sub.ID.String(), "inbound_id", inbound.ID, "error", err)
			qr = ""
		}

		configs = append(configs, models.SubscriptionConfig{
			PanelID:   panel.ID,
			InboundID: inbound.ID,
			Protocol:  inbound.Protocol,
			ConfigURL: uri,
			QRCode:    qr,
			Host:      panel.Host,
			Port:      inbound.Port,
			Remark:    sublink.Remark(panel.Location, inbound.Protocol, inbound.Remark),
		})
	}

	return configs, nil
}

// Deprovision removes the subscription's client from every active panel and
// drops its config rows. Unreachable panels are logged and skipped; the expiry
// constraint already pushed to the panel stops service regardless.
func (p *ProvisionService) Deprovision(ctx context.Context, subscriptionID uuid.UUID) error {
	var sub models.Subscription
	if err := p.db.First(&sub, "id = ?", subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	if sub.XUIClientID == "" {
		return p.db.Where("subscription_id = ?", sub.ID).Delete(&models.SubscriptionConfig{}).Error
	}

	var panels []models.XUIPanel
	if err := p.db.Where("is_active = true").Find(&panels).Error; err != nil {
		return fmt.Errorf("load panels: %w", err)
	}

	for i := range panels {
		if err := p.removeFromPanel(ctx, &panels[i], &sub); err != nil {
			slog.Error("panel deprovision failed, continuing",
				"subscription_id", sub.ID.String(),
				"panel_id", panels[i].ID.String(),
				"action", "deprovision",
				"error", err)
		}
	}

	return p.db.Where("subscription_id = ?", sub.ID).Delete(&models.SubscriptionConfig{}).Error
}

func (p *ProvisionService) removeFromPanel(ctx context.Context, panel *models.XUIPanel, sub *models.Subscription) error {
	session, err := p.panel.Login(ctx, panel)
	if err != nil {
		return err
	}

	inbounds, err := p.panel.ListInbounds(ctx, session)
	if err != nil {
		return err
	}

	for _, inbound := range inbounds {
		if err := p.panel.RemoveClient(ctx, session, inbound.ID, sub.XUIClientID); err != nil {
			return err
		}
	}
	return nil
}

// RefreshUsage sums the subscription's traffic counters across all reachable
// panels and stores the total.
func (p *ProvisionService) RefreshUsage(ctx context.Context, sub *models.Subscription) error {
	if sub.XUIClientID == "" {
		return ErrNotLinked
	}

	var panels []models.XUIPanel
	if err := p.db.Where("is_active = true").Find(&panels).Error; err != nil {
		return fmt.Errorf("load panels: %w", err)
	}

	var total int64
	for i := range panels {
		session, err := p.panel.Login(ctx, &panels[i])
		if err != nil {
			slog.Warn("usage refresh skipping panel",
				"subscription_id", sub.ID.String(), "panel_id", panels[i].ID.String(), "error", err)
			continue
		}
		up, down, err := p.panel.ClientStats(ctx, session, sub.XUIClientID)
		if err != nil {
			slog.Warn("usage refresh failed on panel",
				"subscription_id", sub.ID.String(), "panel_id", panels[i].ID.String(), "error", err)
			continue
		}
		total += up + down
	}

	sub.TrafficUsed = total
	return p.db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Update("traffic_used", total).Error
}

func (p *ProvisionService) persistedConfigs(subscriptionID uuid.UUID) ([]models.SubscriptionConfig, error) {
	var configs []models.SubscriptionConfig
	err := p.db.Where("subscription_id = ?", subscriptionID).Order("position ASC").Find(&configs).Error
	return configs, err
}

func protocolSet(protocols []string) map[string]bool {
	if len(protocols) == 0 {
		return nil
	}
	set := make(map[string]bool, len(protocols))
	for _, proto := range protocols {
		set[proto] = true
	}
	return set
}
