package xui

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/safesurf-vpn/safesurf-backend/internal/models"
)

// Client talks to 3x-ui panels. One instance is shared by all panels; the
// per-panel state lives in Session.
type Client struct {
	hc *http.Client
}

// NewClient builds a panel client with a bounded per-call timeout. Panels
// commonly run on self-signed certificates, so verification is skipped.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		hc: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Login authenticates against a panel and returns a session. Credentials are
// never logged; failures distinguish unreachable panels from rejected logins.
func (c *Client) Login(ctx context.Context, panel *models.XUIPanel) (*Session, error) {
	body, err := json.Marshal(loginRequest{Username: panel.Username, Password: panel.Password})
	if err != nil {
		return nil, fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, panel.BaseURL()+"/login", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &UnavailableError{Panel: panel.Name, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Panel: panel.Name, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{Panel: panel.Name, Msg: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var loginResp apiResponse
	if err := json.Unmarshal(respBody, &loginResp); err != nil {
		return nil, &AuthError{Panel: panel.Name, Msg: "unexpected login response"}
	}
	if !loginResp.Success {
		return nil, &AuthError{Panel: panel.Name, Msg: loginResp.Msg}
	}

	for _, cookie := range resp.Header.Values("Set-Cookie") {
		if strings.Contains(cookie, "3x-ui=") || strings.Contains(cookie, "session=") {
			return &Session{
				PanelID: panel.ID,
				BaseURL: panel.BaseURL(),
				Cookie:  strings.Split(cookie, ";")[0],
			}, nil
		}
	}

	return nil, &AuthError{Panel: panel.Name, Msg: "session cookie not found"}
}

// ListInbounds enumerates all inbounds on the panel.
func (c *Client) ListInbounds(ctx context.Context, s *Session) ([]Inbound, error) {
	raw, err := c.do(ctx, s, http.MethodGet, "/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, err
	}

	var inbounds []Inbound
	if err := json.Unmarshal(raw, &inbounds); err != nil {
		return nil, fmt.Errorf("unmarshal inbounds: %w", err)
	}
	return inbounds, nil
}

// GetInbound fetches one inbound with its current settings document.
func (c *Client) GetInbound(ctx context.Context, s *Session, inboundID int) (*Inbound, error) {
	raw, err := c.do(ctx, s, http.MethodGet, fmt.Sprintf("/panel/api/inbounds/get/%d", inboundID), nil)
	if err != nil {
		return nil, err
	}

	var inbound Inbound
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return nil, fmt.Errorf("unmarshal inbound: %w", err)
	}
	return &inbound, nil
}

// UpsertClient ensures a client with the given identity exists on the inbound
// with the given constraints. The identity doubles as the client UUID and
// subId, so repeated calls never create duplicates and always produce the
// same connection parameters.
func (c *Client) UpsertClient(ctx context.Context, s *Session, inbound *Inbound, identity string, cons Constraints) (*InboundClient, error) {
	current, err := c.GetInbound(ctx, s, inbound.ID)
	if err != nil {
		return nil, err
	}

	var settings inboundSettings
	if current.Settings != "" {
		if err := json.Unmarshal([]byte(current.Settings), &settings); err != nil {
			return nil, fmt.Errorf("unmarshal inbound %d settings: %w", inbound.ID, err)
		}
	}

	client := BuildClient(identity, inbound.ID, inbound.Protocol, cons)

	payload, err := json.Marshal(inboundSettings{Clients: []InboundClient{client}})
	if err != nil {
		return nil, fmt.Errorf("marshal client settings: %w", err)
	}
	reqBody := clientPayload{ID: inbound.ID, Settings: string(payload)}

	if existing := FindClient(settings.Clients, identity); existing != nil {
		_, err = c.do(ctx, s, http.MethodPost, "/panel/api/inbounds/updateClient/"+identity, reqBody)
	} else {
		_, err = c.do(ctx, s, http.MethodPost, "/panel/api/inbounds/addClient", reqBody)
	}
	if err != nil {
		return nil, err
	}

	return &client, nil
}

// RemoveClient deletes the client from the inbound. Removing an absent client
// is not an error.
func (c *Client) RemoveClient(ctx context.Context, s *Session, inboundID int, identity string) error {
	_, err := c.do(ctx, s, http.MethodPost, fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, identity), nil)
	if err != nil {
		// The panel reports deleting a missing client as a failure; that is
		// already the desired end state. Anything else (unreachable panel,
		// expired session, 401) must surface so the sweep retries.
		if isMissingClient(err) {
			slog.Debug("delClient reported missing client, treating as removed",
				"inbound_id", inboundID, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// isMissingClient matches the panel's "client does not exist" refusal. 3x-ui
// phrases it a few different ways across versions, all with a 200 status and
// a message naming the lookup failure.
func isMissingClient(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 0 {
		return false
	}
	msg := strings.ToLower(apiErr.Msg)
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no client") ||
		strings.Contains(msg, "does not exist")
}

// ClientStats returns the upload/download counters for the identity summed
// across the panel's inbounds.
func (c *Client) ClientStats(ctx context.Context, s *Session, identity string) (up, down int64, err error) {
	raw, err := c.do(ctx, s, http.MethodGet, "/panel/api/inbounds/getClientTrafficsById/"+identity, nil)
	if err != nil {
		return 0, 0, err
	}

	var stats []ClientTraffic
	if err := json.Unmarshal(raw, &stats); err != nil {
		return 0, 0, fmt.Errorf("unmarshal client traffic: %w", err)
	}

	for _, st := range stats {
		up += st.Up
		down += st.Down
	}
	return up, down, nil
}

func (c *Client) do(ctx context.Context, s *Session, method, path string, body interface{}) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Cookie", s.Cookie)
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &UnavailableError{Panel: s.PanelID.String(), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Panel: s.PanelID.String(), Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Path: path, Status: resp.StatusCode, Msg: truncate(respBody, 200)}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("panel API %s: unmarshal response: %w", path, err)
	}
	if !apiResp.Success {
		return nil, &APIError{Path: path, Msg: apiResp.Msg}
	}

	return apiResp.Obj, nil
}

// BuildClient derives the deterministic client entry for an identity on an
// inbound. Everything is a pure function of its inputs so that repeated syncs
// write byte-identical configuration.
func BuildClient(identity string, inboundID int, protocol string, cons Constraints) InboundClient {
	client := InboundClient{
		ID:         identity,
		Email:      ClientEmail(identity, inboundID),
		LimitIP:    cons.MaxDevices,
		TotalGB:    cons.TrafficLimitBytes,
		ExpiryTime: cons.ExpiryUnixMilli,
		Enable:     true,
		SubID:      identity,
	}
	if protocol == "vless" {
		client.Flow = "xtls-rprx-vision"
	}
	return client
}

// ClientEmail derives the panel-side email tag. 3x-ui requires emails to be
// unique per panel, so the inbound id is baked in.
func ClientEmail(identity string, inboundID int) string {
	short := identity
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("safesurf-%s-%d", short, inboundID)
}

// FindClient locates a client entry by identity (subId or client UUID).
func FindClient(clients []InboundClient, identity string) *InboundClient {
	for i := range clients {
		if clients[i].SubID == identity || clients[i].ID == identity {
			return &clients[i]
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
