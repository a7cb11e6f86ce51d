package telnyx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   map[string]any
}

func newTestClient(t *testing.T, status int, response string) (*RESTClient, *recorded, func()) {
	t.Helper()

	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))

	c := NewRESTClient(Config{APIKey: "key-123", BaseURL: srv.URL})
	return c, rec, srv.Close
}

func TestDialParsesResult(t *testing.T) {
	c, rec, done := newTestClient(t, http.StatusCreated,
		`{"data":{"call_control_id":"v3:abc","call_session_id":"sess-1"}}`)
	defer done()

	res, err := c.Dial(context.Background(), DialRequest{
		To: "+15557654321", From: "+15550001111", ConnectionID: "conn-1",
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if res.CallControlID != "v3:abc" || res.CallSessionID != "sess-1" {
		t.Fatalf("unexpected result %+v", res)
	}

	if rec.method != http.MethodPost || rec.path != "/calls" {
		t.Fatalf("unexpected request %s %s", rec.method, rec.path)
	}
	if rec.auth != "Bearer key-123" {
		t.Fatalf("unexpected auth header %q", rec.auth)
	}
	if rec.body["to"] != "+15557654321" || rec.body["connection_id"] != "conn-1" {
		t.Fatalf("unexpected request body %v", rec.body)
	}
}

func TestActionsHitLegPaths(t *testing.T) {
	cases := []struct {
		name string
		call func(c *RESTClient) error
		path string
	}{
		{"hangup", func(c *RESTClient) error { return c.Hangup(context.Background(), "v3:abc") },
			"/calls/v3:abc/actions/hangup"},
		{"answer", func(c *RESTClient) error { return c.Answer(context.Background(), "v3:abc") },
			"/calls/v3:abc/actions/answer"},
		{"bridge", func(c *RESTClient) error { return c.Bridge(context.Background(), "v3:abc", "v3:def") },
			"/calls/v3:abc/actions/bridge"},
		{"record", func(c *RESTClient) error { return c.StartRecording(context.Background(), "v3:abc") },
			"/calls/v3:abc/actions/record_start"},
		{"ai", func(c *RESTClient) error {
			return c.StartAI(context.Background(), "v3:abc", AIConfig{Prompt: "assist"})
		}, "/calls/v3:abc/actions/ai_assistant_start"},
		{"stream", func(c *RESTClient) error {
			return c.StartStreaming(context.Background(), "v3:abc", "wss://media.example")
		}, "/calls/v3:abc/actions/streaming_start"},
		{"join", func(c *RESTClient) error {
			return c.JoinConference(context.Background(), "conf-1", "v3:abc", JoinOptions{SupervisorRole: "monitor"})
		}, "/conferences/conf-1/actions/join"},
		{"switch", func(c *RESTClient) error {
			return c.SwitchSupervisorRole(context.Background(), "v3:abc", "barge")
		}, "/calls/v3:abc/actions/switch_supervisor_role"},
	}

	for _, tc := range cases {
		c, rec, done := newTestClient(t, http.StatusOK, `{}`)
		if err := tc.call(c); err != nil {
			done()
			t.Fatalf("%s: %v", tc.name, err)
		}
		if rec.path != tc.path {
			done()
			t.Fatalf("%s: expected path %s, got %s", tc.name, tc.path, rec.path)
		}
		done()
	}
}

func TestRejectionSurfacesProviderBody(t *testing.T) {
	c, _, done := newTestClient(t, http.StatusUnprocessableEntity,
		`{"errors":[{"detail":"destination not reachable"}]}`)
	defer done()

	err := c.Hangup(context.Background(), "v3:abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
	if apiErr.Body != `{"errors":[{"detail":"destination not reachable"}]}` {
		t.Fatalf("provider body not carried verbatim: %q", apiErr.Body)
	}
}
