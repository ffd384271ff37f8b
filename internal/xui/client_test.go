package xui

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = "b3c8a7f2-1d4e-4a9b-8c6d-5e2f1a0b9c8d"

func TestBuildClient(t *testing.T) {
	cons := Constraints{MaxDevices: 3, TrafficLimitBytes: 107374182400, ExpiryUnixMilli: 1790000000000}

	client := BuildClient(testIdentity, 7, "vless", cons)

	assert.Equal(t, testIdentity, client.ID)
	assert.Equal(t, testIdentity, client.SubID)
	assert.Equal(t, "safesurf-b3c8a7f2-7", client.Email)
	assert.Equal(t, 3, client.LimitIP)
	assert.Equal(t, int64(107374182400), client.TotalGB)
	assert.Equal(t, int64(1790000000000), client.ExpiryTime)
	assert.True(t, client.Enable)
	assert.Equal(t, "xtls-rprx-vision", client.Flow)
}

func TestBuildClientNoFlowForNonVLESS(t *testing.T) {
	for _, protocol := range []string{"vmess", "trojan", "shadowsocks"} {
		client := BuildClient(testIdentity, 1, protocol, Constraints{})
		assert.Empty(t, client.Flow, protocol)
	}
}

func TestBuildClientIsDeterministic(t *testing.T) {
	cons := Constraints{MaxDevices: 2, ExpiryUnixMilli: 1790000000000}
	assert.Equal(t, BuildClient(testIdentity, 3, "vless", cons), BuildClient(testIdentity, 3, "vless", cons))
}

func TestClientEmail(t *testing.T) {
	assert.Equal(t, "safesurf-b3c8a7f2-12", ClientEmail(testIdentity, 12))
	assert.Equal(t, "safesurf-short-1", ClientEmail("short", 1))
}

func TestFindClient(t *testing.T) {
	clients := []InboundClient{
		{ID: "other-uuid", SubID: "other-uuid"},
		{ID: "legacy-id", SubID: testIdentity},
		{ID: testIdentity, SubID: ""},
	}

	found := FindClient(clients, testIdentity)
	require.NotNil(t, found)
	assert.Equal(t, "legacy-id", found.ID, "first entry matching by subId or uuid wins")

	assert.Nil(t, FindClient(clients, "missing"))
	assert.Nil(t, FindClient(nil, testIdentity))
}

func TestRemoveClient(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"removed", http.StatusOK, `{"success":true,"msg":""}`, false},
		{"already absent", http.StatusOK, `{"success":false,"msg":"client not found"}`, false},
		{"already absent, alternate phrasing", http.StatusOK, `{"success":false,"msg":"no client with this id"}`, false},
		{"session expired", http.StatusUnauthorized, `{"success":false,"msg":"login required"}`, true},
		{"other panel refusal", http.StatusOK, `{"success":false,"msg":"database is locked"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(2 * time.Second)
			s := &Session{PanelID: uuid.New(), BaseURL: srv.URL, Cookie: "3x-ui=test"}

			err := c.RemoveClient(context.Background(), s, 1, testIdentity)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemoveClientSurfacesUnreachablePanel(t *testing.T) {
	c := NewClient(500 * time.Millisecond)
	s := &Session{PanelID: uuid.New(), BaseURL: "http://127.0.0.1:1", Cookie: "3x-ui=test"}

	err := c.RemoveClient(context.Background(), s, 1, testIdentity)
	require.Error(t, err)

	var unavailable *UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestParseStreamSettings(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantNetwork  string
		wantSecurity string
		wantSNI      string
		wantPath     string
	}{
		{"empty document", "", "tcp", "none", "", ""},
		{"malformed document", "{not json", "tcp", "none", "", ""},
		{"missing fields default", `{}`, "tcp", "none", "", ""},
		{
			"reality tcp",
			`{"network":"tcp","security":"reality","tlsSettings":{"serverName":"cdn.example.com"}}`,
			"tcp", "reality", "cdn.example.com", "",
		},
		{
			"ws with path",
			`{"network":"ws","security":"tls","wsSettings":{"path":"/feed"}}`,
			"ws", "tls", "", "/feed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := ParseStreamSettings(tt.raw)
			assert.Equal(t, tt.wantNetwork, ss.Network)
			assert.Equal(t, tt.wantSecurity, ss.Security)
			if tt.wantSNI != "" {
				require.NotNil(t, ss.TLSSettings)
				assert.Equal(t, tt.wantSNI, ss.TLSSettings.ServerName)
			}
			if tt.wantPath != "" {
				require.NotNil(t, ss.WSSettings)
				assert.Equal(t, tt.wantPath, ss.WSSettings.Path)
			}
		})
	}
}
