package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbserver/kbserver/internal/kbstore"
)

func TestGetJob_NotFoundReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nonexistent", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs_FiltersByKind(t *testing.T) {
	s, metadata := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, metadata.SaveJob(ctx, &kbstore.Job{ID: "job-1", Kind: kbstore.JobKindSemanticIndex, State: kbstore.JobQueued}))
	require.NoError(t, metadata.SaveJob(ctx, &kbstore.Job{ID: "job-2", Kind: kbstore.JobKindStructuralIndex, State: kbstore.JobQueued}))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?kind=semantic", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "job-1")
	assert.NotContains(t, rec.Body.String(), "job-2")
}
