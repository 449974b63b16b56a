package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zerolog.Nop()), RequestMetricsMiddleware("test"))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})
	return r
}

func TestRequestIDAssignsWhenMissing(t *testing.T) {
	testlog.Start(t)
	r := newTestRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := w.Header().Get(RequestIDHeader)
	if id == "" {
		t.Fatalf("expected generated request id")
	}
	if w.Body.String() != id {
		t.Fatalf("handler saw %q, header carries %q", w.Body.String(), id)
	}
}

func TestRequestIDReusesInbound(t *testing.T) {
	testlog.Start(t)
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected inbound id echoed, got %q", got)
	}
}

func TestUnmatchedRoutesShareOneLabel(t *testing.T) {
	testlog.Start(t)
	r := newTestRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
