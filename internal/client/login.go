package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ErrUnauthorized is returned when the server rejects the password.
var ErrUnauthorized = errors.New("unauthorized")

// Login authenticates the server session. Only needed in password mode.
func Login(ctx context.Context, httpClient *http.Client, baseURL, password string) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base, err := normalizeBase(baseURL)
	if err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}
	loginURL := base.JoinPath("login")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("login: unexpected status %s", resp.Status)
	}
}

// WebSocketURL derives the control socket URL from the page URL, the same
// way the page does: http becomes ws, https becomes wss, path is /ws.
func WebSocketURL(baseURL string) (string, error) {
	u, err := normalizeBase(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// normalizeBase parses a server address, defaulting to http.
func normalizeBase(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server address %q has no host", raw)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}
