package pinagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestRegisterAgentSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sdk/register_agent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Fatalf("expected api key header, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected a request id header")
		}
		var req RegisterAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.Ticker != "ECHO" {
			t.Fatalf("unexpected ticker: %s", req.Ticker)
		}
		_ = json.NewEncoder(w).Encode(Agent{ID: 42, Name: req.Name, Ticker: req.Ticker})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	agent, err := client.RegisterAgent(context.Background(), RegisterAgentRequest{
		Name:        "Echo Agent",
		Ticker:      "ECHO",
		Description: "echoes",
	})
	if err != nil {
		t.Fatalf("register agent: %v", err)
	}
	if agent.ID != 42 {
		t.Fatalf("expected agent id 42, got %d", agent.ID)
	}
}

func TestUpdateAgentPostsChangedFieldsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sdk/update_agent" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if raw["id"] != float64(42) || raw["description"] != "new bio" {
			t.Fatalf("unexpected payload: %v", raw)
		}
		if _, ok := raw["name"]; ok {
			t.Fatal("unset fields must be omitted from the payload")
		}
		_ = json.NewEncoder(w).Encode(Agent{ID: 42, Description: "new bio"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	agent, err := client.UpdateAgent(context.Background(), UpdateAgentRequest{
		ID:          42,
		Description: "new bio",
	})
	if err != nil {
		t.Fatalf("update agent: %v", err)
	}
	if agent.Description != "new bio" {
		t.Fatalf("unexpected description: %q", agent.Description)
	}
}

func TestUpdateAgentRequiresID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the server")
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if _, err := client.UpdateAgent(context.Background(), UpdateAgentRequest{Description: "x"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestUnregisterAgentPath(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sdk/delete/agent/7" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		called = true
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.UnregisterAgent(context.Background(), 7); err != nil {
		t.Fatalf("unregister agent: %v", err)
	}
	if !called {
		t.Fatal("unregister endpoint was not called")
	}
}

func TestAPIErrorCarriesStatusAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "agent not found"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.PollMessages(context.Background(), 1, "2025-01-01T00:00:00")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError in chain, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if apiErr.Detail != "agent not found" {
		t.Fatalf("unexpected detail: %q", apiErr.Detail)
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeNotFound {
		t.Fatalf("unexpected error code: %s", code)
	}
}

func TestGetPersonaCachesBySession(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sdk/get_persona_by_session" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "sess-1" {
			t.Fatalf("unexpected session id: %q", got)
		}
		hits++
		_ = json.NewEncoder(w).Encode(Persona{ID: 9, Name: "Alex"})
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	for i := 0; i < 3; i++ {
		persona, err := client.GetPersona(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("get persona: %v", err)
		}
		if persona.ID != 9 {
			t.Fatalf("unexpected persona id: %d", persona.ID)
		}
	}
	if hits != 1 {
		t.Fatalf("expected a single upstream lookup, got %d", hits)
	}
}

func TestSendMessageResolvesPersona(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/sdk/get_persona_by_session":
			_ = json.NewEncoder(w).Encode(Persona{ID: 9})
		case "/api/sdk/reply_message":
			if got := r.URL.Query().Get("session_id"); got != "sess-1" {
				t.Fatalf("unexpected session id: %q", got)
			}
			var payload replyPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("decode reply payload: %v", err)
			}
			if payload.PersonaID != 9 || payload.AgentID != 42 {
				t.Fatalf("unexpected payload: %+v", payload)
			}
			if payload.MediaType != MediaNone {
				t.Fatalf("unexpected media type: %s", payload.MediaType)
			}
			_ = json.NewEncoder(w).Encode(Message{ID: 100, SessionID: "sess-1", Type: MessageTypeAgent})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	sent, err := client.SendMessage(context.Background(), 42, SendMessageRequest{
		SessionID: "sess-1",
		Content:   "hello",
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if sent.ID != 100 {
		t.Fatalf("unexpected message id: %d", sent.ID)
	}
}

func TestSendMessageRequiresMediaURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the server")
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.SendMessage(context.Background(), 42, SendMessageRequest{
		SessionID: "sess-1",
		Content:   "picture",
		MediaType: MediaImage,
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
		t.Fatalf("unexpected error code: %s", code)
	}
}

func TestUploadMediaMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sdk/upload_media" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("media_type"); got != "image" {
			t.Fatalf("unexpected media type field: %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "cover.png" {
			t.Fatalf("unexpected filename: %s", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(MediaUpload{MediaType: MediaImage, MediaURL: "https://cdn.example/cover.png"})
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	client := newTestClient(t, srv)
	upload, err := client.UploadMedia(context.Background(), path, MediaImage)
	if err != nil {
		t.Fatalf("upload media: %v", err)
	}
	if upload.MediaURL != "https://cdn.example/cover.png" {
		t.Fatalf("unexpected media url: %s", upload.MediaURL)
	}
}
