package xui

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Session is an authenticated handle to one panel. The cookie is the value
// 3x-ui sets on a successful login.
type Session struct {
	PanelID uuid.UUID
	BaseURL string
	Cookie  string
}

// Inbound is a protocol+port+security binding on a panel. Settings and
// StreamSettings are JSON documents stored by the panel as strings.
type Inbound struct {
	ID             int    `json:"id"`
	Up             int64  `json:"up"`
	Down           int64  `json:"down"`
	Total          int64  `json:"total"`
	Remark         string `json:"remark"`
	Enable         bool   `json:"enable"`
	ExpiryTime     int64  `json:"expiryTime"`
	Listen         string `json:"listen"`
	Port           int    `json:"port"`
	Protocol       string `json:"protocol"`
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
	Tag            string `json:"tag"`
}

// InboundClient is one client entry inside an inbound's settings document.
type InboundClient struct {
	ID         string `json:"id"`
	Flow       string `json:"flow,omitempty"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"` // bytes despite the name, 0 = unlimited
	ExpiryTime int64  `json:"expiryTime"`
	Enable     bool   `json:"enable"`
	TgID       int64  `json:"tgId"`
	SubID      string `json:"subId"`
	Reset      int    `json:"reset"`
}

// inboundSettings is the parsed form of Inbound.Settings.
type inboundSettings struct {
	Clients    []InboundClient `json:"clients"`
	Decryption string          `json:"decryption,omitempty"`
}

// StreamSettings carries the transport parameters needed for link synthesis.
type StreamSettings struct {
	Network     string `json:"network"`
	Security    string `json:"security"`
	TLSSettings *struct {
		ServerName string `json:"serverName"`
	} `json:"tlsSettings,omitempty"`
	WSSettings *struct {
		Path string `json:"path"`
	} `json:"wsSettings,omitempty"`
}

// ParseStreamSettings decodes an inbound's streamSettings document. A missing
// or malformed document yields tcp/none defaults rather than an error; the
// panel owns that format and older panels omit fields freely.
func ParseStreamSettings(raw string) StreamSettings {
	ss := StreamSettings{Network: "tcp", Security: "none"}
	if raw == "" {
		return ss
	}
	var parsed StreamSettings
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ss
	}
	if parsed.Network == "" {
		parsed.Network = "tcp"
	}
	if parsed.Security == "" {
		parsed.Security = "none"
	}
	return parsed
}

// ClientTraffic mirrors the panel's per-client traffic counters.
type ClientTraffic struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
}

// Constraints are the plan-derived limits applied to a panel client.
type Constraints struct {
	MaxDevices        int
	TrafficLimitBytes int64 // 0 = unlimited
	ExpiryUnixMilli   int64
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

type clientPayload struct {
	ID       int    `json:"id"`
	Settings string `json:"settings"`
}
