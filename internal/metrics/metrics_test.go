package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDecision(t *testing.T) {
	m := New()

	m.RecordDecision(true, 40000)
	m.RecordDecision(true, 20000)
	m.RecordDecision(false, 0)
	m.RecordDecision(false, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionTotal.WithLabelValues("approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionTotal.WithLabelValues("declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreditLimitBucket.WithLabelValues("300-400", "approved")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CreditLimitBucket.WithLabelValues("0", "declined")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.ApprovalRate))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.AvgCreditLimit))
}

func TestRecordBankFetch(t *testing.T) {
	m := New()
	m.RecordBankFetch(120*time.Millisecond, "")
	m.RecordBankFetch(2*time.Second, "timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BankFetchTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BankFetchTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BankFetchFailures.WithLabelValues("timeout")))

	var out dto.Metric
	require.NoError(t, m.BankFetchLatency.Write(&out))
	assert.Equal(t, uint64(2), out.GetHistogram().GetSampleCount())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("POST", "/v1/decision", 200, 30*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `bnpl_http_requests_total{endpoint="/v1/decision",method="POST",status="200"} 1`)
	assert.Contains(t, string(body), "bnpl_webhook_queue_depth 0")
}
