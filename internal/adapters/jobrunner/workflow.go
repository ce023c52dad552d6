package jobrunner

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/receiptq/internal/domain/model"
)

const (
	defaultWorkflowTimeout = 60 * time.Second
	maxResponseBodyBytes   = 4 * 1024
	userAgent              = "receiptq/1.0"
)

// WorkflowTriggerOptions configures the webhook that starts receipt processing.
type WorkflowTriggerOptions struct {
	WebhookURL string // Required: workflow engine webhook endpoint
	APIKey     string // Optional: sent as a bearer token
	// BaseURL is this service's public origin, used to build the callback URL.
	BaseURL    string
	VerifySSL  bool
	Timeout    time.Duration
	HTTPClient *http.Client // Optional: overrides VerifySSL and Timeout
	Logger     *slog.Logger
}

// WorkflowTrigger posts receipts to the external workflow engine. The engine
// reports the outcome later through the job callback endpoint.
type WorkflowTrigger struct {
	webhook string
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// WorkflowRequest is the JSON body sent to the webhook.
type WorkflowRequest struct {
	JobID               string `json:"job_id"`
	ImageData           string `json:"image_data"`
	Filename            string `json:"filename"`
	ExternalReferenceID string `json:"external_reference_id"`
	ContentType         string `json:"content_type,omitempty"`
	CallbackURL         string `json:"callback_url"`
}

// WebhookStatusError is returned when the webhook answers with a non-accepted status.
type WebhookStatusError struct {
	StatusCode int
	Body       string
}

func (e *WebhookStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("workflow webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("workflow webhook returned status %d: %s", e.StatusCode, e.Body)
}

// NewWorkflowTrigger validates opts and constructs a WorkflowTrigger.
func NewWorkflowTrigger(opts WorkflowTriggerOptions) (*WorkflowTrigger, error) {
	webhook := strings.TrimSpace(opts.WebhookURL)
	if webhook == "" {
		return nil, errors.New("workflow webhook URL is required")
	}
	if u, err := url.Parse(webhook); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid workflow webhook URL %q", webhook)
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultWorkflowTimeout
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if !opts.VerifySSL {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 - opt-out via WORKFLOW_VERIFY_SSL
		}
		hc = &http.Client{Timeout: timeout, Transport: transport}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowTrigger{
		webhook: webhook,
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		logger:  logger.With("component", "workflow_trigger"),
	}, nil
}

// CallbackURL returns the completion callback for jobID under baseURL.
func CallbackURL(baseURL, jobID string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/jobs/" + url.PathEscape(jobID) + "/callback"
}

// Handle implements HandlerFunc for model.OperationTriggerWorkflow.
func (w *WorkflowTrigger) Handle(ctx context.Context, task *model.QueueTask) error {
	body, err := json.Marshal(WorkflowRequest{
		JobID:               task.JobID,
		ImageData:           base64.StdEncoding.EncodeToString(task.Payload),
		Filename:            task.Filename,
		ExternalReferenceID: task.ExternalReferenceID,
		ContentType:         task.ContentType,
		CallbackURL:         CallbackURL(w.baseURL, task.JobID),
	})
	if err != nil {
		return fmt.Errorf("encode workflow request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("send workflow request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		w.logger.InfoContext(ctx, "workflow triggered",
			"job_id", task.JobID,
			"status_code", resp.StatusCode,
			"payload_bytes", len(task.Payload),
			"duration", time.Since(start),
		)
		return nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
		return &WebhookStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
}
