package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the production ON cloud endpoint.
const DefaultBaseURL = "https://app.on.is/DuskyWebApi"

// userAgent mimics the Android app; the upstream WAF blocks generic clients.
const userAgent = "is.on.charge.android v.2025.7.5 == Android-16;Pixel 7 Pro;SDK:36"

// Client handles communication with the ON charging cloud API.
type Client struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client
	logger     *logrus.Logger

	mu          sync.Mutex
	accessToken string
}

// NewClient creates a new ON API client. A nil httpClient falls back to a
// plain client with a 10 second timeout.
func NewClient(baseURL, email, password string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		email:      email,
		password:   password,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Login exchanges the configured credentials for a bearer token. The token is
// kept on the client and attached to all subsequent requests.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{}
	form.Set("email", c.email)
	form.Set("password", c.password)
	form.Set("grant_type", "password")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if parsed.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode, Body: "no access_token in response"}
	}

	c.mu.Lock()
	c.accessToken = parsed.AccessToken
	c.mu.Unlock()

	c.logger.Debug("Logged in to ON API")
	return nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// doAuthed performs an authenticated request. A 401 triggers exactly one
// re-login and one retry before the failure is surfaced.
func (c *Client) doAuthed(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	if c.token() == "" {
		if err := c.Login(ctx); err != nil {
			return 0, nil, err
		}
	}

	status, body, err := c.request(ctx, method, path, payload)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Debug("Token expired, re-authenticating")
		if err := c.Login(ctx); err != nil {
			return 0, nil, err
		}
		return c.request(ctx, method, path, payload)
	}
	return status, body, nil
}

func (c *Client) request(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return resp.StatusCode, body, nil
}

// OnlineData fetches the active session feed. An empty result is normal when
// nothing is plugged in; only transport failures are errors.
func (c *Client) OnlineData(ctx context.Context) ([]*Session, error) {
	status, body, err := c.doAuthed(ctx, http.MethodGet, "/api/onlineData", nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		c.logger.WithField("status", status).Warn("onlineData returned non-200, treating as no active sessions")
		return []*Session{}, nil
	}

	var parsed struct {
		CurrentSessions []*Session `json:"CurrentSessions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse onlineData response: %w", err)
	}

	c.logger.WithField("sessions", len(parsed.CurrentSessions)).Debug("Fetched active sessions")
	return parsed.CurrentSessions, nil
}

// LocationStatus fetches the passive infrastructure feed for one location and
// flattens ChargePoints[].Evses[].Connectors[] into per-connector records.
// The synthesized sessions carry zero measurements.
func (c *Client) LocationStatus(ctx context.Context, locationID int) (map[int]*Session, error) {
	path := fmt.Sprintf("/api/locations/%d?uiCulture=en-GB", locationID)
	status, body, err := c.doAuthed(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("location %d returned status %d", locationID, status)
	}

	var loc Location
	if err := json.Unmarshal(body, &loc); err != nil {
		return nil, fmt.Errorf("failed to parse location %d: %w", locationID, err)
	}

	results := make(map[int]*Session)
	for i := range loc.ChargePoints {
		cp := loc.ChargePoints[i]
		for j := range cp.Evses {
			evse := cp.Evses[j]
			for _, conn := range evse.Connectors {
				if conn.ID == 0 {
					continue
				}
				results[conn.ID] = &Session{
					Location:    &Location{ID: loc.ID, FriendlyName: loc.FriendlyName},
					ChargePoint: &ChargePoint{ID: cp.ID, FriendlyCode: cp.FriendlyCode},
					Evse:        &Evse{ID: evse.ID, FriendlyCode: evse.FriendlyCode},
					Connector:   conn,
					Passive:     true,
				}
			}
		}
	}

	c.logger.WithFields(logrus.Fields{
		"location_id": locationID,
		"connectors":  len(results),
	}).Debug("Fetched location status")
	return results, nil
}

// RecentSessions fetches the most recent completed sessions, newest first.
func (c *Client) RecentSessions(ctx context.Context, limit int) ([]HistoryEntry, error) {
	path := fmt.Sprintf("/api/chargingSessions?count=%d", limit)
	status, body, err := c.doAuthed(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("chargingSessions returned status %d", status)
	}

	var parsed struct {
		ChargingSessions []HistoryEntry `json:"ChargingSessions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse chargingSessions response: %w", err)
	}
	return parsed.ChargingSessions, nil
}

type commandResponse struct {
	IsSuccessful     bool   `json:"IsSuccessful"`
	ErrorDescription string `json:"ErrorDescription"`
}

// StartCharging sends remoteStartTransaction for the given connector.
func (c *Client) StartCharging(ctx context.Context, evseCode string, connectorID int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"EvseCode":     evseCode,
		"ConnectorId":  connectorID,
		"EnableLimits": false,
		"SocLimits":    false,
	})
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"evse_code":    evseCode,
		"connector_id": connectorID,
	}).Debug("Sending remoteStartTransaction")
	return c.command(ctx, "/api/commands/remoteStartTransaction", payload)
}

// StopCharging sends remoteStopTransaction. The charge point ID comes from
// the current session data.
func (c *Client) StopCharging(ctx context.Context, evseCode string, chargePointID, connectorID int) error {
	payload, err := json.Marshal(map[string]interface{}{
		"EvseCode":      evseCode,
		"ChargePointId": chargePointID,
		"ConnectorId":   connectorID,
		"SocLimits":     false,
	})
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"evse_code":       evseCode,
		"charge_point_id": chargePointID,
		"connector_id":    connectorID,
	}).Debug("Sending remoteStopTransaction")
	return c.command(ctx, "/api/commands/remoteStopTransaction", payload)
}

func (c *Client) command(ctx context.Context, path string, payload []byte) error {
	status, body, err := c.doAuthed(ctx, http.MethodPost, path, payload)
	if err != nil {
		return &CommandError{Description: err.Error()}
	}
	if status != http.StatusOK {
		return &CommandError{Description: fmt.Sprintf("status %d", status)}
	}

	var parsed commandResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &CommandError{Description: "malformed response: " + err.Error()}
	}
	if !parsed.IsSuccessful {
		return &CommandError{Description: parsed.ErrorDescription}
	}
	return nil
}

// ResolveEvseCode resolves a printed QR code (IS*ONP...) to its location ID.
// Used at setup time to validate the configured code.
func (c *Client) ResolveEvseCode(ctx context.Context, code string) (int, error) {
	code = strings.TrimSpace(code)
	path := fmt.Sprintf("/api/connectors/%s/chargingData", url.PathEscape(code))
	status, body, err := c.doAuthed(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("failed to resolve EVSE code %s: status %d", code, status)
	}

	var parsed struct {
		LocationID int `json:"LocationId"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to parse chargingData response: %w", err)
	}
	if parsed.LocationID == 0 {
		return 0, fmt.Errorf("no location ID for EVSE code %s", code)
	}
	return parsed.LocationID, nil
}
