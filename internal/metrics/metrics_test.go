package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesCollectors(t *testing.T) {
	Values.WithLabelValues("added").Add(2)
	Extractions.WithLabelValues("exif", OutcomeOK).Inc()
	Actions.WithLabelValues("refresh", "ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `metapipe_values_total{direction="added"}`)
	assert.Contains(t, body, `metapipe_extractions_total{extractor="exif",outcome="ok"}`)
	assert.Contains(t, body, `metapipe_actions_total{action="refresh",result="ok"}`)
}
