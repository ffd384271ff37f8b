package sublink

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesurf-vpn/safesurf-backend/internal/xui"
)

const testIdentity = "b3c8a7f2-1d4e-4a9b-8c6d-5e2f1a0b9c8d"

func TestVLESSLinkDeterministic(t *testing.T) {
	link := VLESS{
		UUID:     testIdentity,
		Address:  "nl1.example.com",
		Port:     443,
		Network:  "tcp",
		Security: "reality",
		SNI:      "cdn.example.com",
		Flow:     "xtls-rprx-vision",
		Remark:   "Amsterdam vless",
	}

	first, err := link.URI()
	require.NoError(t, err)
	second, err := link.URI()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, strings.HasPrefix(first, "vless://"+testIdentity+"@nl1.example.com:443?"))
	assert.Contains(t, first, "flow=xtls-rprx-vision")
	assert.Contains(t, first, "security=reality")
	assert.Contains(t, first, "sni=cdn.example.com")
}

func TestVLESSLinkRequiresUUIDAndAddress(t *testing.T) {
	_, err := VLESS{Address: "host"}.URI()
	assert.Error(t, err)

	_, err = VLESS{UUID: testIdentity}.URI()
	assert.Error(t, err)
}

func TestVMESSLinkRoundTrips(t *testing.T) {
	link := VMESS{
		UUID:    testIdentity,
		Address: "de1.example.com",
		Port:    8443,
		Network: "ws",
		Path:    "/vmess",
		TLS:     true,
		SNI:     "de1.example.com",
		Remark:  "Frankfurt vmess",
	}

	uri, err := link.URI()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "vmess://"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "vmess://"))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "2", decoded["v"])
	assert.Equal(t, testIdentity, decoded["id"])
	assert.Equal(t, "de1.example.com", decoded["add"])
	assert.Equal(t, float64(8443), decoded["port"])
	assert.Equal(t, "ws", decoded["net"])
	assert.Equal(t, "/vmess", decoded["path"])
	assert.Equal(t, "tls", decoded["tls"])
	assert.Equal(t, "Frankfurt vmess", decoded["ps"])

	again, err := link.URI()
	require.NoError(t, err)
	assert.Equal(t, uri, again)
}

func TestTrojanLinkOmitsTCPType(t *testing.T) {
	uri, err := Trojan{
		Password: testIdentity,
		Address:  "fi1.example.com",
		Port:     443,
		Network:  "tcp",
		SNI:      "fi1.example.com",
		Remark:   "Helsinki trojan",
	}.URI()
	require.NoError(t, err)

	assert.NotContains(t, uri, "type=")
	assert.Contains(t, uri, "sni=fi1.example.com")
}

func TestShadowsocksLinkEncodesUserInfo(t *testing.T) {
	uri, err := Shadowsocks{
		Method:   "chacha20-ietf-poly1305",
		Password: testIdentity,
		Address:  "us1.example.com",
		Port:     8388,
		Remark:   "NYC ss",
	}.URI()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(uri, "ss://"))
	encoded := strings.TrimPrefix(uri, "ss://")
	encoded = encoded[:strings.Index(encoded, "@")]
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "chacha20-ietf-poly1305:"+testIdentity, string(raw))
}

func TestFromInbound(t *testing.T) {
	tests := []struct {
		name     string
		inbound  xui.Inbound
		wantType string
		wantErr  bool
	}{
		{
			name: "vless reality tcp gets vision flow",
			inbound: xui.Inbound{
				ID: 1, Port: 443, Protocol: "vless",
				StreamSettings: `{"network":"tcp","security":"reality","tlsSettings":{"serverName":"cdn.example.com"}}`,
			},
			wantType: "vless",
		},
		{
			name: "vmess ws",
			inbound: xui.Inbound{
				ID: 2, Port: 8443, Protocol: "vmess",
				StreamSettings: `{"network":"ws","security":"tls","wsSettings":{"path":"/v"}}`,
			},
			wantType: "vmess",
		},
		{
			name:     "trojan default stream settings",
			inbound:  xui.Inbound{ID: 3, Port: 443, Protocol: "trojan"},
			wantType: "trojan",
		},
		{
			name:     "shadowsocks",
			inbound:  xui.Inbound{ID: 4, Port: 8388, Protocol: "shadowsocks"},
			wantType: "shadowsocks",
		},
		{
			name:    "unsupported protocol",
			inbound: xui.Inbound{ID: 5, Port: 53, Protocol: "dokodemo-door"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link, err := FromInbound("nl1.example.com", "Amsterdam", tt.inbound, testIdentity)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, link.Protocol())

			uri, err := link.URI()
			require.NoError(t, err)
			again, err := link.URI()
			require.NoError(t, err)
			assert.Equal(t, uri, again)
		})
	}
}

func TestFromInboundVLESSFlowOnlyOnSecuredTCP(t *testing.T) {
	plain := xui.Inbound{ID: 1, Port: 80, Protocol: "vless",
		StreamSettings: `{"network":"ws","security":"none"}`}
	link, err := FromInbound("h.example.com", "", plain, testIdentity)
	require.NoError(t, err)
	uri, err := link.URI()
	require.NoError(t, err)
	assert.NotContains(t, uri, "flow=")
}

func TestRemark(t *testing.T) {
	assert.Equal(t, "Amsterdam vless", Remark("Amsterdam", "vless", "ignored"))
	assert.Equal(t, "nl-main vless", Remark("", "vless", "nl-main"))
	assert.Equal(t, "vless", Remark("", "vless", ""))
}

func TestQRDataURI(t *testing.T) {
	uri, err := QRDataURI("vless://" + testIdentity + "@nl1.example.com:443?type=tcp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, raw[:4])
}
