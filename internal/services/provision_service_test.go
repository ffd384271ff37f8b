package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
	"github.com/safesurf-vpn/safesurf-backend/internal/xui"
)

// fakePanelAPI scripts panel behavior per test without any HTTP.
type fakePanelAPI struct {
	loginErr    error
	inbounds    []xui.Inbound
	upsertErr   map[int]error // keyed by inbound id
	upsertCalls []int
	removed     []int
	stats       map[string][2]int64
}

func (f *fakePanelAPI) Login(ctx context.Context, panel *models.XUIPanel) (*xui.Session, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &xui.Session{PanelID: panel.ID, BaseURL: panel.BaseURL(), Cookie: "3x-ui=test"}, nil
}

func (f *fakePanelAPI) ListInbounds(ctx context.Context, s *xui.Session) ([]xui.Inbound, error) {
	return f.inbounds, nil
}

func (f *fakePanelAPI) UpsertClient(ctx context.Context, s *xui.Session, inbound *xui.Inbound, identity string, cons xui.Constraints) (*xui.InboundClient, error) {
	f.upsertCalls = append(f.upsertCalls, inbound.ID)
	if err, ok := f.upsertErr[inbound.ID]; ok {
		return nil, err
	}
	client := xui.BuildClient(identity, inbound.ID, inbound.Protocol, cons)
	return &client, nil
}

func (f *fakePanelAPI) RemoveClient(ctx context.Context, s *xui.Session, inboundID int, identity string) error {
	f.removed = append(f.removed, inboundID)
	return nil
}

func (f *fakePanelAPI) ClientStats(ctx context.Context, s *xui.Session, identity string) (int64, int64, error) {
	st := f.stats[identity]
	return st[0], st[1], nil
}

func testSubscription() *models.Subscription {
	sub := &models.Subscription{
		ID:          uuid.New(),
		XUIClientID: uuid.New().String(),
		EndDate:     time.Now().Add(30 * 24 * time.Hour),
	}
	sub.SetStatus(models.StatusActive)
	return sub
}

func testPanel(name string) *models.XUIPanel {
	return &models.XUIPanel{
		ID:       uuid.New(),
		Name:     name,
		Host:     name + ".example.com",
		Port:     2053,
		Location: "Amsterdam",
		IsActive: true,
	}
}

func TestSyncPanelGeneratesConfigPerEnabledInbound(t *testing.T) {
	fake := &fakePanelAPI{
		inbounds: []xui.Inbound{
			{ID: 1, Port: 443, Protocol: "vless", Enable: true,
				StreamSettings: `{"network":"tcp","security":"reality","tlsSettings":{"serverName":"cdn.example.com"}}`},
			{ID: 2, Port: 8443, Protocol: "vmess", Enable: true,
				StreamSettings: `{"network":"ws","security":"tls","wsSettings":{"path":"/v"}}`},
			{ID: 3, Port: 80, Protocol: "vless", Enable: false},
		},
	}
	svc := &ProvisionService{panel: fake}
	sub := testSubscription()
	panel := testPanel("nl1")

	configs, err := svc.syncPanel(context.Background(), panel, sub, xui.Constraints{}, nil)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, []int{1, 2}, fake.upsertCalls, "disabled inbound never provisioned")
	assert.Equal(t, "vless", configs[0].Protocol)
	assert.Equal(t, "vmess", configs[1].Protocol)
	for _, c := range configs {
		assert.Equal(t, panel.ID, c.PanelID)
		assert.Equal(t, "nl1.example.com", c.Host)
		assert.NotEmpty(t, c.ConfigURL)
		assert.NotEmpty(t, c.QRCode)
		assert.Contains(t, c.Remark, "Amsterdam")
	}
}

func TestSyncPanelIsDeterministic(t *testing.T) {
	fake := &fakePanelAPI{
		inbounds: []xui.Inbound{
			{ID: 1, Port: 443, Protocol: "vless", Enable: true,
				StreamSettings: `{"network":"tcp","security":"reality"}`},
		},
	}
	svc := &ProvisionService{panel: fake}
	sub := testSubscription()
	panel := testPanel("nl1")
	cons := xui.Constraints{MaxDevices: 3, ExpiryUnixMilli: sub.EndDate.UnixMilli()}

	first, err := svc.syncPanel(context.Background(), panel, sub, cons, nil)
	require.NoError(t, err)
	second, err := svc.syncPanel(context.Background(), panel, sub, cons, nil)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ConfigURL, second[0].ConfigURL)
	assert.Equal(t, first[0].QRCode, second[0].QRCode)
}

func TestSyncPanelProtocolFilter(t *testing.T) {
	fake := &fakePanelAPI{
		inbounds: []xui.Inbound{
			{ID: 1, Port: 443, Protocol: "vless", Enable: true},
			{ID: 2, Port: 8443, Protocol: "vmess", Enable: true},
			{ID: 3, Port: 8388, Protocol: "shadowsocks", Enable: true},
		},
	}
	svc := &ProvisionService{panel: fake}

	configs, err := svc.syncPanel(context.Background(), testPanel("nl1"), testSubscription(),
		xui.Constraints{}, protocolSet([]string{"vless", "vmess"}))
	require.NoError(t, err)

	assert.Len(t, configs, 2)
	assert.Equal(t, []int{1, 2}, fake.upsertCalls)
}

func TestSyncPanelUnavailablePropagates(t *testing.T) {
	fake := &fakePanelAPI{
		inbounds: []xui.Inbound{
			{ID: 1, Port: 443, Protocol: "vless", Enable: true},
			{ID: 2, Port: 8443, Protocol: "vmess", Enable: true},
		},
		upsertErr: map[int]error{
			1: &xui.UnavailableError{Panel: "nl1", Err: errors.New("connection refused")},
		},
	}
	svc := &ProvisionService{panel: fake}

	_, err := svc.syncPanel(context.Background(), testPanel("nl1"), testSubscription(), xui.Constraints{}, nil)
	var unavailable *xui.UnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestSyncPanelSkipsFailedInbound(t *testing.T) {
	fake := &fakePanelAPI{
		inbounds: []xui.Inbound{
			{ID: 1, Port: 443, Protocol: "vless", Enable: true},
			{ID: 2, Port: 8443, Protocol: "vmess", Enable: true},
		},
		upsertErr: map[int]error{
			1: errors.New("panel API /panel/api/inbounds/addClient: duplicate email"),
		},
	}
	svc := &ProvisionService{panel: fake}

	configs, err := svc.syncPanel(context.Background(), testPanel("nl1"), testSubscription(), xui.Constraints{}, nil)
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, 2, configs[0].InboundID)
}

func TestSyncPanelLoginFailure(t *testing.T) {
	fake := &fakePanelAPI{loginErr: &xui.UnavailableError{Panel: "nl1", Err: errors.New("timeout")}}
	svc := &ProvisionService{panel: fake}

	_, err := svc.syncPanel(context.Background(), testPanel("nl1"), testSubscription(), xui.Constraints{}, nil)
	require.Error(t, err)
}

func TestProtocolSet(t *testing.T) {
	assert.Nil(t, protocolSet(nil), "empty filter allows everything")
	set := protocolSet([]string{"vless", "trojan"})
	assert.True(t, set["vless"])
	assert.True(t, set["trojan"])
	assert.False(t, set["vmess"])
}
