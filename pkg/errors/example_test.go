// Package errors provides examples of structured error handling in csvscan.
package errors_test

import (
	"fmt"
	"io"

	"github.com/rizalgowandy/duckdb/pkg/errors"
)

// Example demonstrates basic error creation with reader details.
func Example() {
	err := errors.New(errors.ErrorTypeSchemaMismatch, "expected 3 values per row, but got 4").
		WithDetail(errors.DetailFile, "data.csv").
		WithDetail(errors.DetailLine, int64(2))

	fmt.Println(err.Error())

	// Output:
	// schema_mismatch: expected 3 values per row, but got 4
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeFile, "failed to read CSV buffer").
		WithDetail(errors.DetailFile, "data.csv")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("Cause was unexpected EOF")
	}

	// Output:
	// This is a file error
	// Cause was unexpected EOF
}

// ExampleIsRecoverable demonstrates which kinds an orchestrator may retry.
func ExampleIsRecoverable() {
	ambiguous := errors.New(errors.ErrorTypeDialectAmbiguous, "no consistent dialect")
	encoding := errors.New(errors.ErrorTypeMalformedEncoding, "invalid unicode")

	fmt.Println(errors.IsRecoverable(ambiguous))
	fmt.Println(errors.IsRecoverable(encoding))

	// Output:
	// true
	// false
}
