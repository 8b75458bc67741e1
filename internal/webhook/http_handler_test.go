package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/stats"

	"github.com/gin-gonic/gin"
)

func newTestRouter(h Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/dialer/events", h.HandleEvent)
	return r
}

func TestHandleEventAccepted(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	seedDialedContact(cs)
	ing := NewIngester(cs, stats.NewMemoryRepo(), nil, time.UTC, nil)
	r := newTestRouter(Handler{Ingester: ing})

	body := `{"event":"call_started","call":{"call_id":"call-1"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/dialer/events", strings.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHandleEventRejectsUnknownType(t *testing.T) {
	ing := NewIngester(contacts.NewMemoryRepo(), stats.NewMemoryRepo(), nil, time.UTC, nil)
	r := newTestRouter(Handler{Ingester: ing})

	body := `{"event":"call_levitated","call":{"call_id":"call-1"}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/dialer/events", strings.NewReader(body))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleEventRejectsMalformedBody(t *testing.T) {
	ing := NewIngester(contacts.NewMemoryRepo(), stats.NewMemoryRepo(), nil, time.UTC, nil)
	r := newTestRouter(Handler{Ingester: ing})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/dialer/events", strings.NewReader(`{`))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
