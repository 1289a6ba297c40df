package errors

import stdErrors "errors"

// SchemaError wraps a failure to create the store schema. It is the only
// pipeline error that aborts a run.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string {
	return "ensure schema: " + e.Err.Error()
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError wraps err as a SchemaError
func NewSchemaError(err error) *SchemaError {
	return &SchemaError{Err: err}
}

// IsSchemaError reports whether err is a SchemaError (even when wrapped).
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return stdErrors.As(err, &schemaErr)
}
