package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-testgen/backend/internal/api/handler"
	"github.com/ai-testgen/backend/internal/auth"
	"github.com/ai-testgen/backend/internal/job"
	"github.com/ai-testgen/backend/internal/service"
)

const (
	testProjectID = "7b8df02e-4d2b-4d52-b979-111122223333"
	testTestID    = "bb8df02e-4d2b-4d52-b979-444455556666"
	testJobID     = "cc8df02e-4d2b-4d52-b979-777788889999"
	testUserID    = "user-42"
	testSecret    = "router-test-secret"
)

type fakeQueue struct {
	enqueuedType string
	enqueuedArgs any
	enqueueErr   error
	report       *job.StatusReport
	statusErr    error
}

func (f *fakeQueue) Enqueue(_ context.Context, jobType, projectID string, args any) (string, error) {
	f.enqueuedType = jobType
	f.enqueuedArgs = args
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	return testJobID, nil
}

func (f *fakeQueue) Status(_ context.Context, jobID string) (*job.StatusReport, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.report, nil
}

type fakeProjects struct {
	project *service.Project
	ownerID string
}

func (f *fakeProjects) GetProject(_ context.Context, projectID string) (*service.Project, error) {
	if f.project == nil {
		return nil, service.ErrProjectNotFound
	}
	return f.project, nil
}

func (f *fakeProjects) Owns(_ context.Context, projectID, userID string) (bool, error) {
	return f.ownerID == userID, nil
}

func newTestRouter(t *testing.T, queue *fakeQueue, projects *fakeProjects) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := &handler.Dependencies{
		Logger:   slog.New(slog.DiscardHandler),
		Queue:    queue,
		Projects: projects,
	}
	ws := func(c *gin.Context) { c.Status(http.StatusOK) }
	return SetupRouter(deps, auth.NewVerifier(testSecret), ws)
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.NewVerifier(testSecret).Sign(testUserID, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t, &fakeQueue{}, &fakeProjects{})

	w := doRequest(t, r, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t, &fakeQueue{}, &fakeProjects{ownerID: testUserID})

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "not bearer", token: "Basic abc"},
		{name: "garbage token", token: "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/scan", tt.token, "")
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestTriggerScan(t *testing.T) {
	queue := &fakeQueue{}
	projects := &fakeProjects{
		project: &service.Project{ID: testProjectID, GitURL: "https://example.com/repo.git"},
		ownerID: testUserID,
	}
	r := newTestRouter(t, queue, projects)

	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/scan", bearerToken(t), "")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, job.TypeScan, queue.enqueuedType)
	assert.Equal(t, job.ScanArgs{GitURL: "https://example.com/repo.git"}, queue.enqueuedArgs)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testJobID, resp["job_id"])
	assert.Equal(t, job.StatusQueued, resp["status"])
}

func TestTriggerScan_NotOwner(t *testing.T) {
	queue := &fakeQueue{}
	projects := &fakeProjects{ownerID: "someone-else"}
	r := newTestRouter(t, queue, projects)

	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/scan", bearerToken(t), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, queue.enqueuedType, "no job is queued for foreign projects")
}

func TestTriggerScan_BadProjectID(t *testing.T) {
	r := newTestRouter(t, &fakeQueue{}, &fakeProjects{ownerID: testUserID})

	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/not-a-uuid/scan", bearerToken(t), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerGeneration(t *testing.T) {
	queue := &fakeQueue{}
	r := newTestRouter(t, queue, &fakeProjects{ownerID: testUserID})

	body := `{"endpoint_ids":["ep-1","ep-2"]}`
	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/tests/generate", bearerToken(t), body)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, job.TypeGenerateBatch, queue.enqueuedType)
	assert.Equal(t, job.GenerateArgs{EndpointIDs: []string{"ep-1", "ep-2"}}, queue.enqueuedArgs)
}

func TestTriggerGeneration_EmptyBatch(t *testing.T) {
	queue := &fakeQueue{}
	r := newTestRouter(t, queue, &fakeProjects{ownerID: testUserID})

	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/tests/generate", bearerToken(t), `{"endpoint_ids":[]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, queue.enqueuedType)
}

func TestTriggerHealing(t *testing.T) {
	queue := &fakeQueue{}
	r := newTestRouter(t, queue, &fakeProjects{ownerID: testUserID})

	w := doRequest(t, r, http.MethodPost, "/api/v1/projects/"+testProjectID+"/tests/"+testTestID+"/heal", bearerToken(t), "")

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, job.TypeHeal, queue.enqueuedType)
	assert.Equal(t, job.HealArgs{TestCaseID: testTestID}, queue.enqueuedArgs)
}

func TestGetJob(t *testing.T) {
	queue := &fakeQueue{report: &job.StatusReport{JobID: testJobID, Status: job.StatusSuccess, Result: json.RawMessage(`{"endpoints_found":4}`)}}
	r := newTestRouter(t, queue, &fakeProjects{ownerID: testUserID})

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/"+testJobID, bearerToken(t), "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, job.StatusSuccess, resp["status"])
}

func TestGetJob_NotFound(t *testing.T) {
	queue := &fakeQueue{statusErr: job.ErrJobNotFound}
	r := newTestRouter(t, queue, &fakeProjects{ownerID: testUserID})

	w := doRequest(t, r, http.MethodGet, "/api/v1/jobs/"+testJobID, bearerToken(t), "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
