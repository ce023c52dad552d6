// Package job holds the lifecycle rules for job records.
package job

import (
	"fmt"

	"github.com/target/receiptq/internal/domain/model"
	apperrors "github.com/target/receiptq/internal/errors"
)

// CheckTransition reports whether a record in status from may be moved to status to.
//
// Rules:
//   - QUEUED is only ever the initial status and cannot be reported.
//   - Any non-terminal record may move to PROCESSING, SUCCESS or FAILURE.
//   - A terminal record accepts only a re-report of the same status, which
//     refreshes the result details but keeps completed_at.
func CheckTransition(from, to model.JobStatus) error {
	if !to.Reportable() {
		return apperrors.ValidationField("status", fmt.Sprintf("status %q cannot be reported", to))
	}
	if from.IsTerminal() && from != to {
		return apperrors.Conflictf("invalid transition from %s to %s", from, to)
	}
	return nil
}
