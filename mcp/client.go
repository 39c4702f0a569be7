// Package mcp is the tool-invocation gateway: a per-user streamable-HTTP
// JSON-RPC client for a remote tool server. It owns the session handshake,
// mixed JSON / event-stream response framing, and credential refresh.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tbxark/brdagent/store"
)

const (
	sessionHeader = "Mcp-Session-Id"
	cloudIDHeader = "X-Atlassian-Cloud-Id"

	// invalidParamsCode on the initialize response is a known server quirk:
	// the session is actually usable once the initialized notification is
	// sent, so the handshake is treated as successful.
	invalidParamsCode = -32602
)

// Config carries the gateway endpoints and OAuth client settings.
type Config struct {
	Endpoint     string
	AuthURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// Client is the per-user gateway. Safe for concurrent use; concurrent first
// handshakes for the same user are serialized by a per-user lock.
type Client struct {
	endpoint     string
	authURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	creds        store.CredentialStore
	sessions     SessionStore
	locks        sync.Map
	nextID       atomic.Int64
}

func NewClient(cfg Config, creds store.CredentialStore, sessions SessionStore) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		authURL:      cfg.AuthURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         httpClient,
		creds:        creds,
		sessions:     sessions,
	}
}

// EnsureSession returns the cached session id for the user, performing the
// initialize handshake first when none exists.
func (c *Client) EnsureSession(ctx context.Context, userID string) (string, error) {
	mu := c.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	if id, ok := c.sessions.Get(userID); ok {
		return id, nil
	}

	resp, sessionID, err := c.post(ctx, userID, "", rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "initialize",
		Params:  map[string]any{},
	})
	if err != nil {
		return "", err
	}

	if resp.Error != nil {
		if resp.Error.Code != invalidParamsCode {
			return "", &ProtocolError{Reason: fmt.Sprintf("initialize failed: %d %s", resp.Error.Code, resp.Error.Message)}
		}
		slog.Debug("initialize returned invalid-params, sending initialized notification", "user_id", userID)
		if nErr := c.notify(ctx, userID, sessionID, "notifications/initialized", map[string]any{}); nErr != nil {
			slog.Warn("initialized notification failed", "user_id", userID, "error", nErr)
		}
	}

	c.sessions.Set(userID, sessionID)
	slog.Debug("tool session established", "user_id", userID, "session_id", sessionID)
	return sessionID, nil
}

// ListTools returns the callable-operation catalog for the user's session.
// Any transport or protocol failure is returned as an error; an empty list
// never masks a failure.
func (c *Client) ListTools(ctx context.Context, userID string) ([]Tool, error) {
	sessionID, err := c.EnsureSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp, _, err := c.post(ctx, userID, sessionID, rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "tools/list",
		Params:  map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("tools/list failed: %d %s", resp.Error.Code, resp.Error.Message)}
	}
	var result listToolsResult
	if err := sonic.Unmarshal(resp.Result, &result); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("undecodable tools/list result: %v", err)}
	}
	return result.Tools, nil
}

// CallTool invokes the named operation and returns its raw result. There is
// no client-side retry on this path.
func (c *Client) CallTool(ctx context.Context, userID, name string, args map[string]any) (json.RawMessage, error) {
	sessionID, err := c.EnsureSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp, _, err := c.post(ctx, userID, sessionID, rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  "tools/call",
		Params: map[string]any{
			"name":      name,
			"arguments": args,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("tools/call %s failed: %d %s", name, resp.Error.Code, resp.Error.Message)}
	}
	var result callToolResult
	if err := sonic.Unmarshal(resp.Result, &result); err == nil && len(result.Content) > 0 {
		return result.Content, nil
	}
	return resp.Result, nil
}

// ResetSession drops the local session mapping only; no network call.
func (c *Client) ResetSession(userID string) {
	c.sessions.Delete(userID)
}

// SessionID returns the current session id for a user, if any.
func (c *Client) SessionID(userID string) (string, bool) {
	return c.sessions.Get(userID)
}

func (c *Client) lockFor(userID string) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// post sends one JSON-RPC request and decodes the response, handling both
// application/json and text/event-stream framing. The returned string is the
// session id carried by the mandatory response header.
func (c *Client) post(ctx context.Context, userID, sessionID string, payload rpcRequest) (*rpcResponse, string, error) {
	resp, err := c.send(ctx, userID, sessionID, payload)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	raw, err := decodePayload(resp)
	if err != nil {
		return nil, "", err
	}

	responseSession := resp.Header.Get(sessionHeader)
	if responseSession == "" {
		return nil, "", &ProtocolError{Reason: "response is missing the " + sessionHeader + " header"}
	}

	var decoded rpcResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return nil, "", &ProtocolError{Reason: fmt.Sprintf("undecodable response payload: %v", err)}
	}
	return &decoded, responseSession, nil
}

// notify sends a fire-and-forget notification (no JSON-RPC id). The body is
// drained and ignored.
func (c *Client) notify(ctx context.Context, userID, sessionID, method string, params map[string]any) error {
	resp, err := c.send(ctx, userID, sessionID, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) send(ctx context.Context, userID, sessionID string, payload rpcRequest) (*http.Response, error) {
	cred, err := c.credential(ctx, userID)
	if err != nil {
		return nil, err
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Bearer)
	req.Header.Set(cloudIDHeader, cred.CloudID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func decodePayload(resp *http.Response) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{Status: resp.StatusCode, Body: string(body)}
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		return decodeEventStream(resp.Body)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return raw, nil
}

type refreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// credential loads the user's stored credential, refreshing it first when
// its expiry is at or before now. The refreshed credential is persisted
// before the call proceeds.
func (c *Client) credential(ctx context.Context, userID string) (*store.Credential, error) {
	cred, err := c.creds.Get(ctx, userID)
	if err != nil {
		return nil, &AuthError{Reason: "no remote-auth credential for user " + userID, Err: err}
	}
	if !cred.Expired(time.Now()) {
		return cred, nil
	}

	refreshed, err := c.refresh(ctx, cred.RefreshToken)
	if err != nil {
		return nil, err
	}
	expiry := time.Now().Add(time.Duration(refreshed.ExpiresIn) * time.Second)
	if err := c.creds.Update(ctx, userID, refreshed.AccessToken, refreshed.RefreshToken, expiry); err != nil {
		return nil, &AuthError{Reason: "persist refreshed credential", Err: err}
	}
	slog.Debug("refreshed remote-auth credential", "user_id", userID, "expiry", expiry)

	cred.Bearer = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		cred.RefreshToken = refreshed.RefreshToken
	}
	cred.Expiry = expiry
	return cred, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*refreshResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Reason: "build refresh request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AuthError{Reason: "refresh exchange", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &AuthError{Reason: fmt.Sprintf("refresh exchange returned HTTP %d: %s", resp.StatusCode, string(body))}
	}

	var result refreshResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &AuthError{Reason: "undecodable refresh response", Err: err}
	}
	if result.AccessToken == "" {
		return nil, &AuthError{Reason: "refresh response carried no access token"}
	}
	return &result, nil
}
