package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

type fakeStore struct {
	expired  []models.Subscription
	expiring []models.Subscription
	active   []models.Subscription
}

func (f *fakeStore) ExpireDue(context.Context, time.Time) ([]models.Subscription, error) {
	return f.expired, nil
}

func (f *fakeStore) ExpiringBetween(context.Context, time.Time, time.Time) ([]models.Subscription, error) {
	return f.expiring, nil
}

func (f *fakeStore) ActiveSubscriptions(context.Context) ([]models.Subscription, error) {
	return f.active, nil
}

type fakeProvisioner struct {
	deprovisioned []uuid.UUID
	refreshed     []uuid.UUID
	deprovErr     map[uuid.UUID]error
}

func (f *fakeProvisioner) Deprovision(_ context.Context, id uuid.UUID) error {
	f.deprovisioned = append(f.deprovisioned, id)
	return f.deprovErr[id]
}

func (f *fakeProvisioner) RefreshUsage(_ context.Context, sub *models.Subscription) error {
	f.refreshed = append(f.refreshed, sub.ID)
	return nil
}

func testSweeper(t *testing.T, store *fakeStore, prov *fakeProvisioner) *Sweeper {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewSweeper(store, prov, rdb, time.Hour)
}

func subWithEnd(end time.Time) models.Subscription {
	sub := models.Subscription{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		XUIClientID: uuid.New().String(),
		EndDate:     end,
	}
	sub.SetStatus(models.StatusActive)
	return sub
}

func TestSweepDeprovisionsExpiredSubscriptions(t *testing.T) {
	overdue := subWithEnd(time.Now().UTC().Add(-time.Hour))
	store := &fakeStore{expired: []models.Subscription{overdue}}
	prov := &fakeProvisioner{}

	testSweeper(t, store, prov).sweep()

	require.Len(t, prov.deprovisioned, 1)
	assert.Equal(t, overdue.ID, prov.deprovisioned[0])
}

func TestSweepDeprovisionFailureDoesNotBlockOthers(t *testing.T) {
	first := subWithEnd(time.Now().UTC().Add(-2 * time.Hour))
	second := subWithEnd(time.Now().UTC().Add(-time.Hour))
	store := &fakeStore{expired: []models.Subscription{first, second}}
	prov := &fakeProvisioner{
		deprovErr: map[uuid.UUID]error{first.ID: errors.New("panel unreachable")},
	}

	testSweeper(t, store, prov).sweep()

	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, prov.deprovisioned,
		"a panel failure on one subscription must not skip the rest")
}

func TestSweepRefreshesUsageOnlyForProvisionedClients(t *testing.T) {
	provisioned := subWithEnd(time.Now().UTC().Add(24 * time.Hour))
	unprovisioned := subWithEnd(time.Now().UTC().Add(24 * time.Hour))
	unprovisioned.XUIClientID = ""
	store := &fakeStore{active: []models.Subscription{provisioned, unprovisioned}}
	prov := &fakeProvisioner{}

	testSweeper(t, store, prov).sweep()

	assert.Equal(t, []uuid.UUID{provisioned.ID}, prov.refreshed)
}

func TestSweepNotifyDedupAcrossRuns(t *testing.T) {
	soon := subWithEnd(time.Now().UTC().Add(6 * time.Hour))
	store := &fakeStore{expiring: []models.Subscription{soon}}
	prov := &fakeProvisioner{}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := NewSweeper(store, prov, rdb, time.Hour)

	s.sweep()
	require.True(t, mr.Exists("notify:expiry:"+soon.ID.String()))

	// A second run within the dedup window finds the marker and stays quiet.
	s.sweep()
	ttl := rdb.TTL(context.Background(), "notify:expiry:"+soon.ID.String()).Val()
	assert.Greater(t, ttl, 24*time.Hour, "marker keeps its original expiry")
}
