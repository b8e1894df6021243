package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	assert.Panics(t, func() { NewMetrics(registry) }, "registering twice must fail")
}

func TestMetrics_Recording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveDecision("has_permission", true, time.Now())
	m.ObserveDecision("has_permission", false, time.Now())
	m.ObserveDecision("has_permission", false, time.Now())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("has_permission", "allow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("has_permission", "deny")))

	m.ContractViolation("has_role")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContractViolations.WithLabelValues("has_role")))

	m.AssignmentMutation("assign", "created")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssignmentMutationsTotal.WithLabelValues("assign", "created")))

	m.StoreError("assignments")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("assignments")))

	m.RoleSetCache(true)
	m.RoleSetCache(false)
	m.RoleSetCache(false)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoleSetCacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoleSetCacheMissesTotal))

	m.CatalogReload("success")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CatalogReloadsTotal.WithLabelValues("success")))

	m.SetCatalogSize(19, 6)
	assert.Equal(t, 19.0, testutil.ToFloat64(m.CatalogPermissions))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.CatalogRoles))

	m.Purged(3)
	m.Purged(0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AssignmentsPurgedTotal))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDecision("op", true, time.Now())
		m.ContractViolation("op")
		m.AssignmentMutation("assign", "created")
		m.StoreError("op")
		m.RoleSetCache(true)
		m.CatalogReload("success")
		m.SetCatalogSize(1, 1)
		m.Purged(1)
	})
}

func TestHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.CatalogReload("success")

	server := httptest.NewServer(Handler(registry))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "lmsauthz_catalog_reloads_total"))
}
