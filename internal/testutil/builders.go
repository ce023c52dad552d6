package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/target/receiptq/internal/domain/model"
)

// JPEGBytes is a minimal JPEG header used as receipt payload in tests.
var JPEGBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

// SubmitRequestBuilder helps build submit requests for tests.
type SubmitRequestBuilder struct {
	req model.SubmitRequest
}

// NewSubmitRequest creates a builder with a JPEG payload and default metadata.
func NewSubmitRequest() *SubmitRequestBuilder {
	return &SubmitRequestBuilder{
		req: model.SubmitRequest{
			Payload:             append([]byte(nil), JPEGBytes...),
			Filename:            "receipt.jpg",
			ExternalReferenceID: "db-abc",
			ContentType:         "image/jpeg",
		},
	}
}

// WithPayload sets the payload bytes.
func (b *SubmitRequestBuilder) WithPayload(p []byte) *SubmitRequestBuilder {
	b.req.Payload = p
	return b
}

// WithFilename sets the filename.
func (b *SubmitRequestBuilder) WithFilename(name string) *SubmitRequestBuilder {
	b.req.Filename = name
	return b
}

// WithExternalReferenceID sets the external reference id.
func (b *SubmitRequestBuilder) WithExternalReferenceID(id string) *SubmitRequestBuilder {
	b.req.ExternalReferenceID = id
	return b
}

// WithJobID sets a caller-supplied job id.
func (b *SubmitRequestBuilder) WithJobID(id string) *SubmitRequestBuilder {
	b.req.JobID = id
	return b
}

// Build returns the request.
func (b *SubmitRequestBuilder) Build() model.SubmitRequest {
	return b.req
}

// NewCreateJobRecordRequest returns a create request with a fresh uuid and default metadata.
func NewCreateJobRecordRequest() model.CreateJobRecordRequest {
	return model.CreateJobRecordRequest{
		JobID:               uuid.NewString(),
		Filename:            StringPtr("receipt.jpg"),
		ExternalReferenceID: StringPtr("db-abc"),
	}
}

// NewQueueTask returns a valid trigger_workflow task for jobID.
func NewQueueTask(jobID string) *model.QueueTask {
	return &model.QueueTask{
		JobID:               jobID,
		Operation:           model.OperationTriggerWorkflow,
		Payload:             append([]byte(nil), JPEGBytes...),
		Filename:            "receipt.jpg",
		ExternalReferenceID: "db-abc",
		ContentType:         "image/jpeg",
		Timeout:             5 * time.Minute,
	}
}
