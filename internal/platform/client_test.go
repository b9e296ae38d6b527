package platform

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// testHandler captures the incoming request and returns a canned response.
type testHandler struct {
	method   string
	path     string
	query    string
	body     string
	clientID string
	auth     string

	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.clientID = r.Header.Get("Client-Id")
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}
	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	}
	_, _ = w.Write([]byte(h.responseBody))
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, ClientID: "cid", Token: "tok", RequestsPerSecond: 1000})
}

func TestClient_LookupIDByName(t *testing.T) {
	h := &testHandler{responseBody: `{"data":[{"id":"4242","login":"alice"}]}`}
	c := newTestClient(t, h)

	id, err := c.LookupIDByName(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("LookupIDByName() error = %v, want nil", err)
	}
	if id != "4242" {
		t.Errorf("id = %q, want 4242", id)
	}
	if h.method != http.MethodGet || h.path != "/users" || h.query != "login=alice" {
		t.Errorf("request = %s %s?%s", h.method, h.path, h.query)
	}
	if h.clientID != "cid" || h.auth != "Bearer tok" {
		t.Errorf("headers = %q %q", h.clientID, h.auth)
	}
}

func TestClient_LookupIDByName_Unknown(t *testing.T) {
	c := newTestClient(t, &testHandler{responseBody: `{"data":[]}`})

	_, err := c.LookupIDByName(context.Background(), "ghost")
	if !errors.Is(err, types.ErrPrincipalUnknown) {
		t.Fatalf("error = %v, want ErrPrincipalUnknown", err)
	}
}

func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, &testHandler{statusCode: http.StatusUnauthorized, responseBody: `{"message":"invalid token"}`})

	_, err := c.LookupIDByName(context.Background(), "alice")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "invalid token" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestClient_StartCommercial(t *testing.T) {
	h := &testHandler{responseBody: `{"data":[{"length":60,"message":"","retry_after":480}]}`}
	c := newTestClient(t, h)

	res, err := c.StartCommercial(context.Background(), "1", 60)
	if err != nil {
		t.Fatalf("StartCommercial() error = %v, want nil", err)
	}
	if res.Length != 60 || res.RetryAfter != 480 {
		t.Errorf("result = %+v", res)
	}
	if h.method != http.MethodPost || h.path != "/channels/commercial" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	if h.body != `{"broadcaster_id":"1","length":60}` {
		t.Errorf("body = %s", h.body)
	}
}

func TestClient_CreateClip(t *testing.T) {
	h := &testHandler{responseBody: `{"data":[{"id":"FunnyClip","edit_url":"https://x/edit"}]}`}
	c := newTestClient(t, h)

	clip, err := c.CreateClip(context.Background(), "1", true)
	if err != nil {
		t.Fatalf("CreateClip() error = %v, want nil", err)
	}
	if clip.URL() != "https://clips.twitch.tv/FunnyClip" {
		t.Errorf("URL() = %q", clip.URL())
	}
	if h.query != "broadcaster_id=1&has_delay=true" {
		t.Errorf("query = %q", h.query)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, &testHandler{responseBody: `{}`})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.LookupIDByName(ctx, "alice"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
