// Package sublink synthesizes client-importable connection URIs and QR codes
// from provisioned panel inbounds. Output is a pure function of its inputs:
// no timestamps, no nonces, so repeated syncs are byte-identical.
package sublink

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/safesurf-vpn/safesurf-backend/internal/xui"
)

// Link is a per-protocol connection descriptor. Each protocol gets its own
// variant so the synthesizer is exhaustively checked at compile time instead
// of string-matching loose JSON.
type Link interface {
	Protocol() string
	URI() (string, error)
}

type VLESS struct {
	UUID     string
	Address  string
	Port     int
	Network  string
	Security string
	SNI      string
	Path     string
	Flow     string
	Remark   string
}

func (v VLESS) Protocol() string { return "vless" }

func (v VLESS) URI() (string, error) {
	if v.UUID == "" || v.Address == "" {
		return "", fmt.Errorf("vless link: uuid and address are required")
	}

	u := &url.URL{
		Scheme: "vless",
		User:   url.User(v.UUID),
		Host:   fmt.Sprintf("%s:%d", v.Address, v.Port),
	}

	query := url.Values{}
	query.Set("type", v.Network)
	query.Set("security", v.Security)
	if v.SNI != "" {
		query.Set("sni", v.SNI)
	}
	if v.Path != "" {
		query.Set("path", v.Path)
	}
	if v.Flow != "" {
		query.Set("flow", v.Flow)
	}

	// url.Values.Encode sorts keys, keeping output deterministic.
	u.RawQuery = query.Encode()
	u.Fragment = v.Remark

	return u.String(), nil
}

type VMESS struct {
	UUID    string
	Address string
	Port    int
	Network string
	Host    string
	Path    string
	TLS     bool
	SNI     string
	Remark  string
}

func (v VMESS) Protocol() string { return "vmess" }

// vmessJSON is the v2rayN share format. Field order is fixed by the struct,
// keeping the encoded form deterministic.
type vmessJSON struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port int    `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host,omitempty"`
	Path string `json:"path,omitempty"`
	TLS  string `json:"tls"`
	SNI  string `json:"sni,omitempty"`
}

func (v VMESS) URI() (string, error) {
	if v.UUID == "" || v.Address == "" {
		return "", fmt.Errorf("vmess link: uuid and address are required")
	}

	payload := vmessJSON{
		V:    "2",
		PS:   v.Remark,
		Add:  v.Address,
		Port: v.Port,
		ID:   v.UUID,
		Aid:  "0",
		Net:  v.Network,
		Type: "none",
		Host: v.Host,
		Path: v.Path,
	}
	if v.TLS {
		payload.TLS = "tls"
		payload.SNI = v.SNI
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	return "vmess://" + base64.StdEncoding.EncodeToString(data), nil
}

type Trojan struct {
	Password string
	Address  string
	Port     int
	SNI      string
	Network  string
	Remark   string
}

func (t Trojan) Protocol() string { return "trojan" }

func (t Trojan) URI() (string, error) {
	if t.Password == "" || t.Address == "" {
		return "", fmt.Errorf("trojan link: password and address are required")
	}

	u := &url.URL{
		Scheme: "trojan",
		User:   url.User(t.Password),
		Host:   fmt.Sprintf("%s:%d", t.Address, t.Port),
	}

	query := url.Values{}
	if t.SNI != "" {
		query.Set("sni", t.SNI)
	}
	if t.Network != "" && t.Network != "tcp" {
		query.Set("type", t.Network)
	}

	u.RawQuery = query.Encode()
	u.Fragment = t.Remark

	return u.String(), nil
}

type Shadowsocks struct {
	Method   string
	Password string
	Address  string
	Port     int
	Remark   string
}

func (s Shadowsocks) Protocol() string { return "shadowsocks" }

func (s Shadowsocks) URI() (string, error) {
	if s.Password == "" || s.Address == "" {
		return "", fmt.Errorf("shadowsocks link: password and address are required")
	}

	userInfo := base64.StdEncoding.EncodeToString([]byte(s.Method + ":" + s.Password))
	link := fmt.Sprintf("ss://%s@%s:%d", userInfo, s.Address, s.Port)
	if s.Remark != "" {
		link += "#" + url.QueryEscape(s.Remark)
	}
	return link, nil
}

// FromInbound builds the link variant for one provisioned inbound. The remark
// combines the panel location with the protocol so users can tell entries
// apart in their client app.
func FromInbound(host, location string, inbound xui.Inbound, identity string) (Link, error) {
	ss := xui.ParseStreamSettings(inbound.StreamSettings)
	remark := Remark(location, inbound.Protocol, inbound.Remark)

	sni := ""
	if ss.TLSSettings != nil {
		sni = ss.TLSSettings.ServerName
	}
	path := ""
	if ss.WSSettings != nil {
		path = ss.WSSettings.Path
	}

	switch inbound.Protocol {
	case "vless":
		flow := ""
		if ss.Security != "none" && ss.Network == "tcp" {
			flow = "xtls-rprx-vision"
		}
		return VLESS{
			UUID:     identity,
			Address:  host,
			Port:     inbound.Port,
			Network:  ss.Network,
			Security: ss.Security,
			SNI:      sni,
			Path:     path,
			Flow:     flow,
			Remark:   remark,
		}, nil
	case "vmess":
		return VMESS{
			UUID:    identity,
			Address: host,
			Port:    inbound.Port,
			Network: ss.Network,
			Path:    path,
			TLS:     ss.Security == "tls",
			SNI:     sni,
			Remark:  remark,
		}, nil
	case "trojan":
		return Trojan{
			Password: identity,
			Address:  host,
			Port:     inbound.Port,
			SNI:      sni,
			Network:  ss.Network,
			Remark:   remark,
		}, nil
	case "shadowsocks":
		return Shadowsocks{
			Method:   "chacha20-ietf-poly1305",
			Password: identity,
			Address:  host,
			Port:     inbound.Port,
			Remark:   remark,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", inbound.Protocol)
	}
}

// Remark builds the human-readable entry name shown in VPN clients.
func Remark(location, protocol, inboundRemark string) string {
	if location == "" {
		location = inboundRemark
	}
	if location == "" {
		return protocol
	}
	return fmt.Sprintf("%s %s", location, protocol)
}
