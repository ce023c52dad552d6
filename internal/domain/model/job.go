// Package model defines the core data types shared by the receipt job queue.
package model

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a job record.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates the job record exists and its task was handed to the broker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates a worker picked the task up.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusSuccess indicates the workflow reported success.
	JobStatusSuccess JobStatus = "success"
	// JobStatusFailure indicates the workflow or the worker reported failure.
	JobStatusFailure JobStatus = "failure"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing || s == JobStatusSuccess ||
		s == JobStatusFailure
}

// IsTerminal reports whether no further processing is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// Reportable reports whether a completion report may carry this status.
func (s JobStatus) Reportable() bool {
	return s == JobStatusProcessing || s.IsTerminal()
}

// UnmarshalText implements encoding.TextUnmarshaler so statuses parse case-insensitively.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = v
	return nil
}

// TerminalStatuses returns the statuses that stamp completed_at.
func TerminalStatuses() []JobStatus {
	return []JobStatus{JobStatusSuccess, JobStatusFailure}
}

// JobRecord is the durable lifecycle entry for one submitted job.
type JobRecord struct {
	JobID               string     `json:"job_id"                         db:"job_id"`
	Status              JobStatus  `json:"status"                         db:"status"`
	Filename            *string    `json:"filename,omitempty"             db:"filename"`
	ExternalReferenceID *string    `json:"external_reference_id,omitempty" db:"external_reference_id"`
	CreatedAt           time.Time  `json:"created_at"                     db:"created_at"`
	CompletedAt         *time.Time `json:"completed_at"                   db:"completed_at"`
	ResultMessage       *string    `json:"result_message,omitempty"       db:"result_message"`
	ResultReferenceURL  *string    `json:"result_reference_url,omitempty" db:"result_reference_url"`
}

// CreateJobRecordRequest carries the immutable fields captured at creation.
type CreateJobRecordRequest struct {
	JobID               string
	Filename            *string
	ExternalReferenceID *string
}

// UpdateJobStatusRequest describes a status transition. Empty Message or
// ReferenceURL leave the stored values untouched.
type UpdateJobStatusRequest struct {
	JobID        string
	Status       JobStatus
	Message      string
	ReferenceURL string
}

// JobListOptions filters List queries.
type JobListOptions struct {
	Status *JobStatus
	Limit  int
}

// StaleJobQuery selects QUEUED records created before a cutoff.
type StaleJobQuery struct {
	Status    JobStatus
	OlderThan time.Time
	Limit     int
}

// PurgeJobsParams selects terminal records whose completion predates a cutoff.
type PurgeJobsParams struct {
	CompletedBefore time.Time
	BatchSize       int
}

// SubmitRequest is the inbound submission handed to the coordinator.
type SubmitRequest struct {
	Payload             []byte
	Filename            string
	ExternalReferenceID string
	ContentType         string
	// JobID is optional; a uuid is generated when empty.
	JobID string
}

// SubmitResult is returned once the record exists and its task is enqueued.
type SubmitResult struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

// CompletionReport is the body of a callback or a worker-side status report.
type CompletionReport struct {
	Status       JobStatus `json:"status"`
	Message      string    `json:"message,omitempty"`
	ReferenceURL string    `json:"reference_url,omitempty"`
}
