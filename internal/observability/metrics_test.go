package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	m := DefaultMetrics

	before := testutil.ToFloat64(m.Fallbacks.WithLabelValues("list", "timeout"))
	RecordFallback("list", "timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(m.Fallbacks.WithLabelValues("list", "timeout")))

	applied := testutil.ToFloat64(m.PatchesApplied.WithLabelValues("detail"))
	ignored := testutil.ToFloat64(m.PatchesIgnored.WithLabelValues("detail"))
	RecordPatch("detail", true)
	RecordPatch("detail", false)
	RecordPatch("detail", false)
	assert.Equal(t, applied+1, testutil.ToFloat64(m.PatchesApplied.WithLabelValues("detail")))
	assert.Equal(t, ignored+2, testutil.ToFloat64(m.PatchesIgnored.WithLabelValues("detail")))

	RecordResponseApplied("leaderboard", "push", 1700000000)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastSuccessfulUpdate))

	pullErrs := testutil.ToFloat64(m.PullErrors.WithLabelValues("list"))
	RecordPullLatency("list", 0.05, nil)
	RecordPullLatency("list", 0.07, errors.New("boom"))
	assert.Equal(t, pullErrs+1, testutil.ToFloat64(m.PullErrors.WithLabelValues("list")))

	written := testutil.ToFloat64(m.JournalRecordsWritten)
	dropped := testutil.ToFloat64(m.JournalRecordsDropped)
	RecordJournal(5, 2)
	assert.Equal(t, written+5, testutil.ToFloat64(m.JournalRecordsWritten))
	assert.Equal(t, dropped+2, testutil.ToFloat64(m.JournalRecordsDropped))

	SetPushConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushConnected))
	SetPushConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PushConnected))

	active := testutil.ToFloat64(m.ActiveSubscriptions.WithLabelValues("list"))
	AddActiveSubscription("list", 1)
	AddActiveSubscription("list", 1)
	AddActiveSubscription("list", -1)
	assert.Equal(t, active+1, testutil.ToFloat64(m.ActiveSubscriptions.WithLabelValues("list")))
}

func TestHandler_ExposesSyncMetrics(t *testing.T) {
	RecordRequest("list")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "token_dashboard_sync_requests_issued_total"))
}
