package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register() // must not panic on double registration
}

func TestGatherIncludesRegisteredMetrics(t *testing.T) {
	Register()
	RecordCount.Set(42)
	SyncSuccess.Inc()

	out, err := Gather()
	require.NoError(t, err)
	assert.Contains(t, out, "proxyd_record_count")
	assert.Contains(t, out, "proxyd_sync_success_total")
}

func TestHandlerServesExpositionFormat(t *testing.T) {
	Register()
	RecordCount.Set(7)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "proxyd_record_count")
}
