package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
	"github.com/target/receiptq/internal/testutil"
)

func uploadReceipt(t *testing.T, s *testServer, f uploadForm) string {
	t.Helper()
	rec := s.do(newUploadRequest(t, f))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)
	return jobID
}

func TestUpload_Accepted(t *testing.T) {
	s := newTestServer(t, 0)

	rec := s.do(newUploadRequest(t, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"}))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "queued", body["status"])
	assert.Equal(t, queuedMessage, body["message"])
	jobID, _ := body["job_id"].(string)
	assert.NoError(t, uuid.Validate(jobID))
	assert.Equal(t, 1, s.queue.len())
	assert.Equal(t, "image/jpeg", s.queue.tasks[0].ContentType)
	assert.Equal(t, "db-1", s.queue.tasks[0].ExternalReferenceID)
	assert.NotEmpty(t, rec.Header().Get("Server-Timing"))

	get := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, get.Code)
	rb := decodeBody(t, get)
	assert.Equal(t, "queued", rb["status"])
	assert.Equal(t, "receipt.jpg", rb["filename"])
	assert.Nil(t, rb["completed_at"])
}

func TestUpload_Rejections(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	tests := []struct {
		name    string
		maxSize int64
		form    uploadForm
		status  int
		errCode string
	}{
		{
			name:    "empty file",
			form:    uploadForm{file: []byte{}, extRef: "db-1"},
			status:  http.StatusBadRequest,
			errCode: "validation",
		},
		{
			name:    "missing file",
			form:    uploadForm{omitFile: true, extRef: "db-1"},
			status:  http.StatusBadRequest,
			errCode: "validation",
		},
		{
			name:    "missing external reference",
			form:    uploadForm{file: testutil.JPEGBytes},
			status:  http.StatusBadRequest,
			errCode: "validation",
		},
		{
			name:    "unsupported format",
			form:    uploadForm{file: []byte("%PDF-1.4 not an image"), extRef: "db-1", contentType: "application/pdf"},
			status:  http.StatusBadRequest,
			errCode: "validation",
		},
		{
			name:    "file over limit",
			maxSize: 8,
			form:    uploadForm{file: png, extRef: "db-1"},
			status:  http.StatusRequestEntityTooLarge,
			errCode: "too_large",
		},
		{
			name:    "malformed job id",
			form:    uploadForm{file: testutil.JPEGBytes, extRef: "db-1", jobID: "not-a-uuid"},
			status:  http.StatusBadRequest,
			errCode: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.maxSize)
			rec := s.do(newUploadRequest(t, tt.form))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, tt.errCode, body["error"])
			assert.NotContains(t, body, "job_id")
			assert.Zero(t, s.queue.len())
		})
	}
}

func TestUpload_PNGAccepted(t *testing.T) {
	s := newTestServer(t, 0)
	uploadReceipt(t, s, uploadForm{file: []byte("\x89PNG\r\n\x1a\n0000"), filename: "r.png", extRef: "db-1"})
	assert.Equal(t, "image/png", s.queue.tasks[0].ContentType)
}

func TestUpload_DuplicateJobIDConflicts(t *testing.T) {
	s := newTestServer(t, 0)
	jobID := uuid.NewString()
	uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1", jobID: jobID})

	rec := s.do(newUploadRequest(t, uploadForm{file: testutil.JPEGBytes, extRef: "db-1", jobID: jobID}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, s.queue.len())
}

func TestUpload_BrokerUnavailable(t *testing.T) {
	s := newTestServer(t, 0)
	s.queue.setErr(apperrors.Connection(errors.New("dial tcp: refused"), "broker unreachable"))

	rec := s.do(newUploadRequest(t, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.NotContains(t, body, "job_id")
	assert.NotContains(t, body["message"], "refused")
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestServer(t, 0)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeBody(t, rec)["error"])
}

func TestCallback_AuthenticationGate(t *testing.T) {
	s := newTestServer(t, 0)
	jobID := uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"})
	report := map[string]string{"status": "success"}

	for name, token := range map[string]string{"missing": "", "wrong": "nope"} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(newCallbackRequest(t, jobID, token, report))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthenticated", decodeBody(t, rec)["error"])
		})
	}

	get := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil))
	assert.Equal(t, "queued", decodeBody(t, get)["status"])
}

func TestCallback_Lifecycle(t *testing.T) {
	s := newTestServer(t, 0)
	jobID := uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"})

	rec := s.do(newCallbackRequest(t, jobID, testCallbackSecret, map[string]string{
		"status":        "success",
		"message":       "created",
		"reference_url": "https://notion.example/p/1",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, jobID, body["job_id"])

	get := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID, nil))
	got := decodeBody(t, get)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "created", got["result_message"])
	assert.Equal(t, "https://notion.example/p/1", got["result_reference_url"])
	assert.NotNil(t, got["completed_at"])

	// Retrying the same terminal report is accepted.
	retry := s.do(newCallbackRequest(t, jobID, testCallbackSecret, map[string]string{"status": "success"}))
	assert.Equal(t, http.StatusOK, retry.Code)

	flip := s.do(newCallbackRequest(t, jobID, testCallbackSecret, map[string]string{"status": "failure"}))
	assert.Equal(t, http.StatusConflict, flip.Code)
}

func TestCallback_Rejections(t *testing.T) {
	s := newTestServer(t, 0)
	jobID := uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"})

	tests := []struct {
		name   string
		jobID  string
		report any
		status int
	}{
		{name: "unknown status", jobID: jobID, report: map[string]string{"status": "done"}, status: http.StatusBadRequest},
		{name: "queued is not reportable", jobID: jobID, report: map[string]string{"status": "queued"}, status: http.StatusBadRequest},
		{name: "unknown field", jobID: jobID, report: map[string]string{"status": "success", "extra": "x"}, status: http.StatusBadRequest},
		{name: "unknown job", jobID: uuid.NewString(), report: map[string]string{"status": "success"}, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(newCallbackRequest(t, tt.jobID, testCallbackSecret, tt.report))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListJobs(t *testing.T) {
	s := newTestServer(t, 0)
	first := uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"})
	uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-2"})
	rec := s.do(newCallbackRequest(t, first, testCallbackSecret, map[string]string{"status": "failure"}))
	require.Equal(t, http.StatusOK, rec.Code)

	all := decodeBody(t, s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)))
	assert.InDelta(t, 2, all["count"], 0)

	failed := decodeBody(t, s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=FAILURE", nil)))
	require.InDelta(t, 1, failed["count"], 0)
	jobs, _ := failed["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, first, jobs[0].(map[string]any)["job_id"])

	limited := decodeBody(t, s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=1", nil)))
	assert.InDelta(t, 1, limited["count"], 0)

	bad := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHealthRoutes(t *testing.T) {
	s := newTestServer(t, 0)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		rec := s.do(httptest.NewRequest(method, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code, method)
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	s.queue.setErr(apperrors.Connection(errors.New("refused"), "broker unreachable"))
	rec = s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	components, _ := decodeBody(t, rec)["components"].(map[string]any)
	broker, _ := components["broker"].(map[string]any)
	assert.Equal(t, "unavailable", broker["status"])
}

func TestMonitoringQueue(t *testing.T) {
	s := newTestServer(t, 0)
	uploadReceipt(t, s, uploadForm{file: testutil.JPEGBytes, extRef: "db-1"})

	rec := s.do(httptest.NewRequest(http.MethodGet, "/monitoring/queue", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, decodeBody(t, rec)["length"], 0)

	s.queue.setErr(apperrors.Connection(errors.New("refused"), "broker unreachable"))
	rec = s.do(httptest.NewRequest(http.MethodGet, "/monitoring/queue", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "connection", decodeBody(t, rec)["error"])
}

func TestCallbackRouteRequiresAuthenticator(t *testing.T) {
	h := NewRouter(RouterServices{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, newCallbackRequest(t, uuid.NewString(), testCallbackSecret, model.CompletionReport{}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
