package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/realtime"
	"callcenter-platform/internal/webhooklog"
)

func newWebhookRouter(deliveries webhooklog.Store, store calls.Store, hub realtime.Broadcaster) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := New(store, hub)
	h := WebhookHandler{Deliveries: deliveries, Reconciler: r, Hub: hub}
	router := gin.New()
	router.POST("/webhook", h.Handle)
	return router
}

func postWebhook(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHandler_ValidEvent(t *testing.T) {
	deliveries := webhooklog.NewMemoryStore()
	store := calls.NewMemoryStore()
	hub := realtime.NewCapture()
	router := newWebhookRouter(deliveries, store, hub)

	body := `{"data":{"event_type":"call.initiated","payload":{"call_control_id":"X1","direction":"incoming","from":"+15551234567"}}}`
	rec := postWebhook(t, router, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || !resp["received"] {
		t.Fatalf("unexpected response %s (err %v)", rec.Body.String(), err)
	}

	all, _ := store.ListHistory(context.Background(), calls.HistoryFilter{})
	if len(all) != 1 || all[0].Status != calls.StatusRinging {
		t.Fatalf("expected one ringing call, got %+v", all)
	}

	logged, total, _ := deliveries.List(context.Background(), 1, 10)
	if total != 1 || !logged[0].Processed || logged[0].Error != "" {
		t.Fatalf("expected one processed delivery, got total=%d %+v", total, logged)
	}
	if logged[0].Body != body || logged[0].Method != http.MethodPost {
		t.Fatalf("delivery does not capture the raw request: %+v", logged[0])
	}

	if got := hub.ByEvent(realtime.EventWebhookReceived); len(got) != 1 {
		t.Fatalf("expected webhookReceived broadcast, got %d", len(got))
	}
	if got := hub.ByEvent(realtime.EventWebhookProcessed); len(got) != 1 {
		t.Fatalf("expected webhookProcessed broadcast, got %d", len(got))
	}
	if got := hub.ByEvent(realtime.EventCallUpdate); len(got) != 1 {
		t.Fatalf("expected callUpdate broadcast, got %d", len(got))
	}
}

func TestWebhookHandler_MalformedBodyStillAcknowledged(t *testing.T) {
	deliveries := webhooklog.NewMemoryStore()
	store := calls.NewMemoryStore()
	hub := realtime.NewCapture()
	router := newWebhookRouter(deliveries, store, hub)

	for _, body := range []string{"{}", "not json", `{"data":{"payload":{}}}`} {
		rec := postWebhook(t, router, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: expected 200, got %d", body, rec.Code)
		}
	}

	logged, total, _ := deliveries.List(context.Background(), 1, 10)
	if total != 3 {
		t.Fatalf("expected 3 logged deliveries, got %d", total)
	}
	for _, d := range logged {
		if !d.Processed || d.Error != "" {
			t.Fatalf("expected processed-with-no-action, got %+v", d)
		}
	}
	all, _ := store.ListHistory(context.Background(), calls.HistoryFilter{})
	if len(all) != 0 {
		t.Fatalf("malformed bodies created calls: %+v", all)
	}
}

type failingCallStore struct {
	calls.Store
}

func (failingCallStore) FindByLeg(ctx context.Context, leg string) (calls.Call, error) {
	return calls.Call{}, errors.New("connection reset")
}

func TestWebhookHandler_ReconcileFailureForcesRedelivery(t *testing.T) {
	deliveries := webhooklog.NewMemoryStore()
	hub := realtime.NewCapture()
	router := newWebhookRouter(deliveries, failingCallStore{Store: calls.NewMemoryStore()}, hub)

	body := `{"data":{"event_type":"call.answered","payload":{"call_control_id":"X1"}}}`
	rec := postWebhook(t, router, body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	logged, _, _ := deliveries.List(context.Background(), 1, 10)
	if len(logged) != 1 || !logged[0].Processed || logged[0].Error == "" {
		t.Fatalf("expected delivery marked with error, got %+v", logged)
	}
	if got := hub.ByEvent(realtime.EventWebhookError); len(got) != 1 {
		t.Fatalf("expected webhookError broadcast, got %d", len(got))
	}
}
