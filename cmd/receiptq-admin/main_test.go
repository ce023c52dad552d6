package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/receiptq/internal/domain/model"
)

func strPtr(s string) *string { return &s }

func TestRenderJobs(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(90 * time.Second)
	recs := []*model.JobRecord{
		{
			JobID:               "job-1",
			Status:              model.JobStatusSuccess,
			CreatedAt:           created,
			CompletedAt:         &completed,
			ExternalReferenceID: strPtr("db-42"),
		},
		{JobID: "job-2", Status: model.JobStatusQueued, CreatedAt: created},
	}

	var buf bytes.Buffer
	require.NoError(t, renderJobs(&buf, recs))

	out := buf.String()
	assert.Contains(t, out, "JOB ID")
	assert.Contains(t, out, "job-1")
	assert.Contains(t, out, "2026-03-01T12:01:30Z")
	assert.Contains(t, out, "db-42")
	assert.Contains(t, out, "2 job(s)")
}

func TestRenderQueueStats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderQueueStats(&buf, &model.QueueStats{
		Name:         "receipts",
		Length:       7,
		FailedCount:  2,
		StartedCount: 1,
	}))

	out := buf.String()
	assert.Contains(t, out, "receipts")
	assert.Regexp(t, `queued\s+7`, out)
	assert.Regexp(t, `failed\s+2`, out)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJSON(&buf, &model.JobRecord{JobID: "job-9", Status: model.JobStatusFailure}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "job-9", got["job_id"])
	assert.Equal(t, "failure", got["status"])
}

func TestParseListFlags(t *testing.T) {
	opts, err := parseListFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, opts.Status)
	assert.Equal(t, defaultListLimit, opts.Limit)

	opts, err = parseListFlags([]string{"-status", "queued", "-limit", "5"})
	require.NoError(t, err)
	require.NotNil(t, opts.Status)
	assert.Equal(t, model.JobStatusQueued, *opts.Status)
	assert.Equal(t, 5, opts.Limit)

	_, err = parseListFlags([]string{"-status", "done"})
	require.Error(t, err)
	_, err = parseListFlags([]string{"-limit", "0"})
	require.Error(t, err)
}

func TestParseRequeueFlags(t *testing.T) {
	_, err := parseRequeueFlags([]string{"-id", "job-1"})
	require.Error(t, err)

	opts, err := parseRequeueFlags([]string{"-id", "job-1", "-file", "/tmp/receipt.jpg"})
	require.NoError(t, err)
	assert.Equal(t, requeueOptions{JobID: "job-1", File: "/tmp/receipt.jpg"}, opts)
}

func TestParseJobIDFlag(t *testing.T) {
	_, err := parseJobIDFlag("job-get", nil)
	require.Error(t, err)

	id, err := parseJobIDFlag("job-get", []string{"-id", "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestPrintUsage_ListsCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))
	for _, c := range commands {
		assert.Contains(t, buf.String(), c.name)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	assert.Equal(t, 2, run(nil))
	assert.Equal(t, 2, run([]string{"frobnicate"}))
}

func TestLookupCommand(t *testing.T) {
	c, ok := lookupCommand("requeue")
	require.True(t, ok)
	assert.Equal(t, "requeue", c.name)

	_, ok = lookupCommand("scheduler")
	assert.False(t, ok)
}
