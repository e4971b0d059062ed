package logging

// Standardized attribute keys used across components.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldDrive     = "drive"
	FieldRequestID = "request_id"
	FieldPID       = "pid"
	FieldStep      = "step"
)
