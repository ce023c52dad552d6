package jobrunner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/receiptq/internal/testutil"
)

func TestNewWorkflowTrigger_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewWorkflowTrigger(WorkflowTriggerOptions{})
	require.Error(t, err)
	_, err = NewWorkflowTrigger(WorkflowTriggerOptions{WebhookURL: "not a url"})
	require.Error(t, err)
	_, err = NewWorkflowTrigger(WorkflowTriggerOptions{WebhookURL: "https://n8n.example.com/webhook/receipt"})
	require.NoError(t, err)
}

func TestCallbackURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"https://receipts.example.com/api/v1/jobs/abc/callback",
		CallbackURL("https://receipts.example.com/", "abc"))
	assert.Equal(t, "/api/v1/jobs/abc/callback", CallbackURL("", "abc"))
}

func TestWorkflowTrigger_Handle(t *testing.T) {
	t.Parallel()

	var got WorkflowRequest
	var gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	trigger, err := NewWorkflowTrigger(WorkflowTriggerOptions{
		WebhookURL: srv.URL,
		APIKey:     "k3y",
		BaseURL:    "https://receipts.example.com",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	task := testutil.NewQueueTask(jobID)
	require.NoError(t, trigger.Handle(context.Background(), task))

	assert.Equal(t, "Bearer k3y", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, jobID, got.JobID)
	assert.Equal(t, "receipt.jpg", got.Filename)
	assert.Equal(t, "db-abc", got.ExternalReferenceID)
	assert.Equal(t, "https://receipts.example.com/api/v1/jobs/"+jobID+"/callback", got.CallbackURL)

	raw, err := base64.StdEncoding.DecodeString(got.ImageData)
	require.NoError(t, err)
	assert.Equal(t, testutil.JPEGBytes, raw)
}

func TestWorkflowTrigger_Handle_RejectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "workflow inactive", http.StatusNotFound)
	}))
	defer srv.Close()

	trigger, err := NewWorkflowTrigger(WorkflowTriggerOptions{WebhookURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	err = trigger.Handle(context.Background(), testutil.NewQueueTask(jobID))
	require.Error(t, err)

	var statusErr *WebhookStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "workflow inactive", statusErr.Body)
}

func TestWorkflowTrigger_Handle_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	trigger, err := NewWorkflowTrigger(WorkflowTriggerOptions{WebhookURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = trigger.Handle(ctx, testutil.NewQueueTask(jobID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
