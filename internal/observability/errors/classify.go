// Package errors derives low-cardinality error classes for metric tags and log fields.
package errors

import (
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/receiptq/internal/errors"
)

// Classify returns a short class name for err.
// Application errors classify by their code; anything else by the innermost
// concrete type, lowercased with package dots replaced by underscores.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	inner := err
	for {
		next := goerrors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}

	t := reflect.TypeOf(inner)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.String() == "" {
		return "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(t.String()), ".", "_")
}
