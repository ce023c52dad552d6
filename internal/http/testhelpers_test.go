package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/target/receiptq/internal/data"
	"github.com/target/receiptq/internal/domain/model"
	"github.com/target/receiptq/internal/observability/tracing"
	"github.com/target/receiptq/internal/service"
	"github.com/target/receiptq/internal/testutil"
)

const testCallbackSecret = "callback-secret"

// memQueue is an in-memory core.TaskQueue.
type memQueue struct {
	mu    sync.Mutex
	tasks []*model.QueueTask
	err   error
}

func (q *memQueue) Enqueue(_ context.Context, task *model.QueueTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *memQueue) QueueStats(context.Context) (*model.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	return &model.QueueStats{Name: "default", Length: int64(len(q.tasks))}, nil
}

func (q *memQueue) setErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *memQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type testServer struct {
	handler http.Handler
	queue   *memQueue
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()
	db := testutil.SetupSQLiteDB(t)
	queue := &memQueue{}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:  data.NewSQLiteJobRecordRepo(db, data.RepoConfig{}),
		Queue:  queue,
		Tracer: tracing.NewNoopTracer(),
	})
	require.NoError(t, err)
	auth, err := service.NewCallbackAuthenticator(testCallbackSecret)
	require.NoError(t, err)
	health, err := service.NewHealthService(service.HealthServiceOptions{DB: db, Queue: queue})
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(RouterServices{
			Jobs:          jobs,
			Callback:      auth,
			Health:        health,
			MaxUploadSize: maxUpload,
		}),
		queue: queue,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type uploadForm struct {
	file        []byte
	filename    string
	contentType string
	extRef      string
	jobID       string
	omitFile    bool
}

func newUploadRequest(t *testing.T, f uploadForm) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if !f.omitFile {
		h := make(map[string][]string)
		name := f.filename
		if name == "" {
			name = "receipt.jpg"
		}
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + name + `"`}
		if f.contentType != "" {
			h["Content-Type"] = []string{f.contentType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.file)
		require.NoError(t, err)
	}
	if f.extRef != "" {
		require.NoError(t, mw.WriteField("external_reference_id", f.extRef))
	}
	if f.jobID != "" {
		require.NoError(t, mw.WriteField("job_id", f.jobID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/receipts/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func newCallbackRequest(t *testing.T, jobID, token string, report any) *http.Request {
	t.Helper()
	b, err := json.Marshal(report)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+jobID+"/callback", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(CallbackTokenHeader, token)
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}
