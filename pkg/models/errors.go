package models

import (
	"encoding/json"
	"fmt"
)

// ErrorType is a stable identifier surfaced to callers for every failure the
// runtime can produce. The identifiers are part of the tool contract: agents
// and batch scripts branch on them, so they must never be renamed.
type ErrorType string

const (
	// Tool dispatch family.
	ErrInvalidArguments   ErrorType = "invalid_arguments"
	ErrToolNotFound       ErrorType = "tool_not_found"
	ErrToolExecution      ErrorType = "tool_execution_error"
	ErrToolArgsInvalid    ErrorType = "tool_args_invalid"
	ErrToolLoopLimit      ErrorType = "tool_loop_limit"
	ErrUnexpectedResponse ErrorType = "unexpected_response"
	ErrLLMCallFailure     ErrorType = "llm_call_failure"
	ErrProcessingTimeout  ErrorType = "processing_timeout"

	// File-system family.
	ErrFileNotFound     ErrorType = "file_not_found"
	ErrPermissionDenied ErrorType = "permission_denied"
	ErrDiskFull         ErrorType = "disk_full"
	ErrEncoding         ErrorType = "encoding_error"
	ErrPathTooLong      ErrorType = "path_too_long"
	ErrInvalidPath      ErrorType = "invalid_path"

	// Parser family, for tools that parse user-supplied source.
	ErrSyntax              ErrorType = "syntax_error"
	ErrIndentation         ErrorType = "indentation_error"
	ErrTab                 ErrorType = "tab_error"
	ErrUnterminatedString  ErrorType = "unterminated_string"
	ErrBracketMismatch     ErrorType = "bracket_mismatch"
	ErrInvalidEscape       ErrorType = "invalid_escape_sequence"
	ErrBOMDetected         ErrorType = "bom_detected"
	ErrNestingTooDeep      ErrorType = "nesting_too_deep"
	ErrNumberTooLarge      ErrorType = "number_too_large"
	ErrDangerousCommand    ErrorType = "dangerous_command"
	ErrUnrecognizedCommand ErrorType = "unrecognized_command"

	// Resource family.
	ErrMemoryExhaustion  ErrorType = "memory_exhaustion"
	ErrRecursionLimit    ErrorType = "recursion_limit_exceeded"
	ErrJSONSerialization ErrorType = "json_serialization_error"

	// Config family.
	ErrInvalidConfiguration ErrorType = "invalid_configuration"
	ErrConflictingOptions   ErrorType = "conflicting_options"
	ErrInvalidParameterType ErrorType = "invalid_parameter_type"
)

// SyntaxDetails pinpoints a parse failure inside user-supplied source.
type SyntaxDetails struct {
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	Description string `json:"description"`
}

// ToolError is the structured error every layer of the runtime speaks.
//
// Lower-layer errors are translated into a ToolError before they cross a
// component boundary; raw provider or OS errors never reach the LLM.
type ToolError struct {
	Type            ErrorType      `json:"error_type"`
	Message         string         `json:"message"`
	Suggestions     []string       `json:"suggestions,omitempty"`
	Syntax          *SyntaxDetails `json:"syntax_details,omitempty"`
	FilePath        string         `json:"file_path,omitempty"`
	ProcessingStage string         `json:"processing_stage,omitempty"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a ToolError with the given type and message.
func NewToolError(t ErrorType, format string, args ...any) *ToolError {
	return &ToolError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestions attaches recovery suggestions.
func (e *ToolError) WithSuggestions(s ...string) *ToolError {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// WithFile attaches the offending file path.
func (e *ToolError) WithFile(path string) *ToolError {
	e.FilePath = path
	return e
}

// WithSyntax attaches parse location details.
func (e *ToolError) WithSyntax(line, column int, description string) *ToolError {
	e.Syntax = &SyntaxDetails{Line: line, Column: column, Description: description}
	return e
}

// Envelope is the uniform result wrapper returned by the tool runtime.
// Successful calls carry Data; failures carry the error taxonomy fields.
type Envelope struct {
	OK          bool            `json:"ok"`
	Data        json.RawMessage `json:"data,omitempty"`
	ErrorType   ErrorType       `json:"error_type,omitempty"`
	Message     string          `json:"message,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// OKEnvelope wraps an already-encoded result value.
func OKEnvelope(data json.RawMessage) Envelope {
	return Envelope{OK: true, Data: data}
}

// ErrEnvelope wraps a ToolError into the failure shape.
func ErrEnvelope(err *ToolError) Envelope {
	return Envelope{
		OK:          false,
		ErrorType:   err.Type,
		Message:     err.Message,
		Suggestions: err.Suggestions,
	}
}

// Degraded records optional features that were disabled mid-operation while
// the primary result still succeeded.
type Degraded struct {
	DegradedMode     bool           `json:"degraded_mode"`
	DisabledFeatures []string       `json:"disabled_features"`
	FallbackInfo     map[string]any `json:"fallback_info,omitempty"`
}

// CascadeReport classifies a batch or health-check run where most failures
// share a single root error type.
type CascadeReport struct {
	Detected        bool      `json:"detected"`
	RootCause       ErrorType `json:"root_cause,omitempty"`
	MitigationSteps []string  `json:"mitigation_steps,omitempty"`
}
