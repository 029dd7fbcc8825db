package pinagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
	"github.com/pinai-network/agent-sdk-go/pkg/logger"
)

// DefaultBaseURL points at the hosted PIN Agent platform.
const DefaultBaseURL = "https://emute3dbtc.us-east-1.awsapprunner.com"

// DefaultHTTPTimeout is used when the caller does not supply an http.Client.
const DefaultHTTPTimeout = 30 * time.Second

const apiKeyHeader = "X-API-Key"

// Client wraps the HTTP interactions with the PIN Agent REST API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	mu       sync.RWMutex
	personas map[string]*Persona
}

// APIError carries the HTTP status and server-provided detail of a failed call.
type APIError struct {
	StatusCode int
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("pinai api error (%d): %s", e.StatusCode, e.Detail)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the platform base URL.
func WithBaseURL(rawURL string) Option {
	return func(c *Client) {
		if parsed, err := url.Parse(rawURL); err == nil {
			c.baseURL = parsed
		}
	}
}

// WithHTTPClient supplies a custom http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTimeout sets the request timeout on the default http.Client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a client authenticated with the given API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "api key is required")
	}
	base, err := url.Parse(DefaultBaseURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse base url")
	}
	c := &Client{
		baseURL:    base,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		log:        logger.Named("pinagent"),
		personas:   make(map[string]*Persona),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// RegisterAgent creates a new agent on the platform.
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	if req.Name == "" || req.Ticker == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent name and ticker are required")
	}
	var agent Agent
	if err := c.post(ctx, "api/sdk/register_agent", req, &agent); err != nil {
		return nil, err
	}
	c.log.Info("agent registered",
		slog.String("name", req.Name),
		slog.Int64("agent_id", agent.ID))
	return &agent, nil
}

// UpdateAgent modifies an existing agent's profile.
func (c *Client) UpdateAgent(ctx context.Context, req UpdateAgentRequest) (*Agent, error) {
	if req.ID == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}
	var agent Agent
	if err := c.post(ctx, "api/sdk/update_agent", req, &agent); err != nil {
		return nil, err
	}
	c.log.Info("agent updated", slog.Int64("agent_id", agent.ID))
	return &agent, nil
}

// UnregisterAgent removes an agent from the platform.
func (c *Client) UnregisterAgent(ctx context.Context, agentID int64) error {
	if agentID == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "agent id is required")
	}
	endpoint := fmt.Sprintf("sdk/delete/agent/%d", agentID)
	if err := c.post(ctx, endpoint, nil, nil); err != nil {
		return err
	}
	c.log.Info("agent unregistered", slog.Int64("agent_id", agentID))
	return nil
}

// PollMessages fetches messages with created_at strictly greater than since.
func (c *Client) PollMessages(ctx context.Context, agentID int64, since string) ([]Message, error) {
	payload := pollPayload{AgentID: agentID, SinceTimestamp: since}
	var messages []Message
	if err := c.post(ctx, "api/sdk/poll_messages", payload, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetPersona returns the profile bound to a session, served from the in-memory
// cache after the first lookup.
func (c *Client) GetPersona(ctx context.Context, sessionID string) (*Persona, error) {
	if sessionID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "session id is required")
	}
	c.mu.RLock()
	cached, ok := c.personas[sessionID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	endpoint := "api/sdk/get_persona_by_session?session_id=" + url.QueryEscape(sessionID)
	var persona Persona
	if err := c.get(ctx, endpoint, &persona); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.personas[sessionID] = &persona
	c.mu.Unlock()
	c.log.Debug("persona cached", slog.String("session_id", sessionID), slog.Int64("persona_id", persona.ID))
	return &persona, nil
}

// SendMessage posts a reply into a session on behalf of the agent. The session
// persona is resolved (and cached) before sending.
func (c *Client) SendMessage(ctx context.Context, agentID int64, req SendMessageRequest) (*Message, error) {
	if req.SessionID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "session id is required")
	}
	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = MediaNone
	}
	if !mediaType.Valid() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported media type %q", mediaType))
	}
	if mediaType != MediaNone && req.MediaURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "media url is required for media messages")
	}

	persona, err := c.GetPersona(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload := replyPayload{
		AgentID:   agentID,
		PersonaID: persona.ID,
		Content:   req.Content,
		MediaType: mediaType,
		MediaURL:  req.MediaURL,
		Metadata:  metadata,
	}
	endpoint := "api/sdk/reply_message?session_id=" + url.QueryEscape(req.SessionID)
	var sent Message
	if err := c.post(ctx, endpoint, payload, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode request")
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse endpoint")
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "create request")
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransport, err, "perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return xerrors.Wrap(xerrors.CodeTransport, readErr, "read error response")
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Detail == "" {
				apiErr.Detail = string(bytes.TrimSpace(data))
			}
		}
		if apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(resp.StatusCode)
		}
		return xerrors.Wrap(codeForStatus(resp.StatusCode), apiErr, apiErr.Detail)
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeTransport, err, "decode response")
	}
	return nil
}

func codeForStatus(status int) xerrors.Code {
	switch status {
	case http.StatusBadRequest:
		return xerrors.CodeValidation
	case http.StatusUnauthorized:
		return xerrors.CodeUnauthorized
	case http.StatusForbidden:
		return xerrors.CodeForbidden
	case http.StatusNotFound:
		return xerrors.CodeNotFound
	case http.StatusConflict:
		return xerrors.CodeConflict
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return xerrors.CodeTimeout
	}
	if status >= 500 {
		return xerrors.CodeTransport
	}
	return xerrors.CodeUnknown
}
