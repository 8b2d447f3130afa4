package errors

import "fmt"

type MalformedFrame struct {
	Cause error
}

func (e *MalformedFrame) Error() string {
	return fmt.Sprintf("Malformed frame: %v", e.Cause)
}

func (e *MalformedFrame) Unwrap() error {
	return e.Cause
}

type UnknownFrameType struct {
	FrameType string
}

func (e *UnknownFrameType) Error() string {
	return fmt.Sprintf("Unknown frame type '%s'", e.FrameType)
}

type MissingFieldError struct {
	FrameType string
	FieldName string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %s in frame of type %s", e.FieldName, e.FrameType)
}
