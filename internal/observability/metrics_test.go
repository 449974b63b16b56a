package observability

import (
	"testing"
	"time"

	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("nwcd", "GET", "/health", 200, 12*time.Millisecond)
	RecordNotification("payment_received")
	RecordDroppedReply("get_info", "late")

	before := testutil.ToFloat64(exchanges.WithLabelValues("get_balance", "ok"))
	RecordExchange("get_balance", "ok", 1, 40*time.Millisecond)
	RecordExchange("get_balance", "ok", 1, 40*time.Millisecond)
	if got := testutil.ToFloat64(exchanges.WithLabelValues("get_balance", "ok")); got != before+2 {
		t.Fatalf("exchange counter: got %v want %v", got, before+2)
	}
}
