package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a job or resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates the record already exists or the transition is not allowed.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeConnection indicates the broker could not be reached.
	ErrCodeConnection ErrorCode = "connection"
	// ErrCodeEnqueue indicates a task could not be handed to the broker.
	ErrCodeEnqueue ErrorCode = "enqueue"
	// ErrCodeStorage indicates the job record store failed.
	ErrCodeStorage ErrorCode = "storage"
	// ErrCodeUnauthenticated indicates a missing or invalid credential.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeTooLarge indicates the request payload exceeded a configured limit.
	ErrCodeTooLarge ErrorCode = "too_large"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is the error every receiptq layer returns. Code drives the HTTP status;
// the optional fields carry the job, operation and table for logs.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error

	Field string // validation only
	JobID string
	Op    string // e.g. "create_job_record"
	Table string // storage only
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithJobID attaches the job id to the error and returns it.
func (e *AppError) WithJobID(jobID string) *AppError {
	if e != nil {
		e.JobID = jobID
	}
	return e
}

// WithOp attaches the attempted operation name to the error and returns it.
func (e *AppError) WithOp(op string) *AppError {
	if e != nil {
		e.Op = op
	}
	return e
}

func newError(code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// NotFound reports a job id with no record.
func NotFound(message string) *AppError { return newError(ErrCodeNotFound, message) }

func NotFoundf(format string, args ...any) *AppError {
	return newError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// Conflict reports a duplicate record or a status transition the record cannot make.
func Conflict(message string) *AppError { return newError(ErrCodeConflict, message) }

func Conflictf(format string, args ...any) *AppError {
	return newError(ErrCodeConflict, fmt.Sprintf(format, args...))
}

// AlreadyExists is the Conflict returned when jobID is already recorded.
func AlreadyExists(jobID string) *AppError {
	return Conflictf("job %s already exists", jobID).WithJobID(jobID)
}

func Validation(message string) *AppError { return newError(ErrCodeValidation, message) }

func Validationf(format string, args ...any) *AppError {
	return newError(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField rejects one named input field.
func ValidationField(field, message string) *AppError {
	e := newError(ErrCodeValidation, message)
	e.Field = field
	return e
}

// Connection reports that the broker could not be reached. err may be nil
// when the client was never connected.
func Connection(err error, message string) *AppError {
	return &AppError{Code: ErrCodeConnection, Message: message, Cause: err}
}

// Enqueue reports that the broker rejected or lost the task for jobID.
func Enqueue(err error, jobID string) *AppError {
	e := &AppError{Code: ErrCodeEnqueue, Message: "failed to enqueue job", Cause: err}
	return e.WithJobID(jobID).WithOp("enqueue")
}

// Storage reports a failed statement against table during op.
func Storage(err error, op, table string) *AppError {
	e := &AppError{Code: ErrCodeStorage, Message: "storage operation failed on " + table, Cause: err, Table: table}
	return e.WithOp(op)
}

// Unauthenticated rejects a missing or wrong callback credential.
func Unauthenticated(message string) *AppError { return newError(ErrCodeUnauthenticated, message) }

// TooLarge rejects an upload over the configured size.
func TooLarge(message string) *AppError { return newError(ErrCodeTooLarge, message) }

func Internalf(format string, args ...any) *AppError {
	return newError(ErrCodeInternal, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func asAppError(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

func isCode(err error, code ErrorCode) bool {
	appErr, ok := asAppError(err)
	return ok && appErr.Code == code
}

func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }
func IsConnection(err error) bool { return isCode(err, ErrCodeConnection) }
func IsEnqueue(err error) bool { return isCode(err, ErrCodeEnqueue) }
func IsStorage(err error) bool { return isCode(err, ErrCodeStorage) }
func IsUnauthenticated(err error) bool { return isCode(err, ErrCodeUnauthenticated) }
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the code of the first AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	if appErr, ok := asAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the rejected field of a validation error, or "".
func GetField(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.Field
	}
	return ""
}

// GetJobID returns the job id carried by the first AppError in err's chain, or "".
func GetJobID(err error) string {
	if appErr, ok := asAppError(err); ok {
		return appErr.JobID
	}
	return ""
}
