// Package gamebridge is the HTTP client for the game-protocol side-car.
//
// The side-car owns the low-level game connection; this adapter maps its
// JSON API onto domain.GameClient, one client per bot account. Login
// sessions are persisted by the side-car under a per-username session
// file so restarts can resume without a fresh logon.
package gamebridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// Options configures the side-car connection shared by all clients.
type Options struct {
	BaseURL     string
	SessionPath string
	ProxyURL    string
	Timeout     time.Duration
}

// Client speaks to the side-car on behalf of one account.
type Client struct {
	opts       Options
	cred       domain.Credential
	httpClient *http.Client
}

// NewFactory returns a domain.GameClientFactory bound to opts.
func NewFactory(opts Options) domain.GameClientFactory {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:9400"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: opts.Timeout}
	return func(cred domain.Credential) domain.GameClient {
		return &Client{opts: opts, cred: cred, httpClient: httpClient}
	}
}

type loginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	SessionFile string `json:"session_file,omitempty"`
	ProxyURL    string `json:"proxy_url,omitempty"`
}

type inspectRequest struct {
	Username string `json:"username"`
	Owner    string `json:"owner"`
	AssetID  string `json:"asset_id"`
	Proof    string `json:"proof"`
}

type bridgeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login establishes the account session on the side-car.
func (c *Client) Login(ctx context.Context) error {
	req := loginRequest{
		Username: c.cred.Username,
		Password: c.cred.Password,
		ProxyURL: c.opts.ProxyURL,
	}
	if c.opts.SessionPath != "" {
		req.SessionFile = filepath.Join(c.opts.SessionPath, c.cred.Username+".session")
	}
	if err := c.post(ctx, "/session/login", req, nil); err != nil {
		return fmt.Errorf("op=gamebridge.login bot=%s: %w", c.cred.Username, err)
	}
	return nil
}

// Inspect performs one item inspect round-trip.
func (c *Client) Inspect(ctx context.Context, owner, assetID, proof uint64) (domain.ItemInfo, error) {
	req := inspectRequest{
		Username: c.cred.Username,
		Owner:    strconv.FormatUint(owner, 10),
		AssetID:  strconv.FormatUint(assetID, 10),
		Proof:    strconv.FormatUint(proof, 10),
	}
	var info domain.ItemInfo
	if err := c.post(ctx, "/inspect", req, &info); err != nil {
		return domain.ItemInfo{}, fmt.Errorf("op=gamebridge.inspect bot=%s asset=%d: %w", c.cred.Username, assetID, err)
	}
	return info, nil
}

// Close drops the side-car session best-effort.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.post(ctx, "/session/logout", loginRequest{Username: c.cred.Username}, nil)
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &domain.TransportError{Kind: domain.TransportTimeout, Msg: ctx.Err().Error()}
		}
		return &domain.TransportError{Kind: domain.TransportDisconnected, Msg: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.TransportError{Kind: domain.TransportDisconnected, Msg: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return transportErrorOf(resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.TransportError{Kind: domain.TransportTransient, Msg: "malformed bridge response"}
		}
	}
	return nil
}

// transportErrorOf maps a side-car error payload onto the fleet's error
// taxonomy. Unknown codes degrade to TRANSIENT so the retry machinery
// handles them.
func transportErrorOf(status int, raw []byte) error {
	var be bridgeError
	if err := json.Unmarshal(raw, &be); err == nil && be.Code != "" {
		switch kind := domain.TransportErrorKind(be.Code); kind {
		case domain.TransportAccountDisabled,
			domain.TransportInvalidPassword,
			domain.TransportRateLimitPermanent,
			domain.TransportLoginThrottled,
			domain.TransportDisconnected,
			domain.TransportTimeout:
			return &domain.TransportError{Kind: kind, Msg: be.Message}
		}
		return &domain.TransportError{Kind: domain.TransportTransient, Msg: be.Code + ": " + be.Message}
	}
	return &domain.TransportError{Kind: domain.TransportTransient, Msg: "bridge status " + strconv.Itoa(status)}
}
