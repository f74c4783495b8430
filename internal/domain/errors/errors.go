// Package errors defines the typed error kinds raised across the engine's
// layers, mirroring the taxonomy in 
package errors

import "fmt"

// NodeExecutionError carries the node identity of a failed node-execution
// failure.
type NodeExecutionError struct {
	WorkflowID    string
	ExecutionID   string
	NodeID        string
	NodeType      string
	AttemptNumber int
	Message       string
	Cause         error
	Retryable     bool
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s (%s) attempt %d: %s", e.NodeID, e.NodeType, e.AttemptNumber, e.Message)
}

func (e *NodeExecutionError) Unwrap() error { return e.Cause }

func NewNodeExecutionError(workflowID, executionID, nodeID, nodeType string, attempt int, message string, cause error, retryable bool) *NodeExecutionError {
	return &NodeExecutionError{
		WorkflowID:    workflowID, ExecutionID: executionID, NodeID: nodeID, NodeType: nodeType,
		AttemptNumber: attempt, Message: message, Cause: cause, Retryable: retryable,
	}
}

// ExternalAPIError is "external API failure": an I/O or HTTP error
// raised by a node executor. Retry eligibility is a decision made by the
// wrapping retry node's policy, not by this error's Transient flag alone;
// the flag is advisory context for that decision.
type ExternalAPIError struct {
	APIName    string
	StatusCode int
	Transient  bool
	Message    string
	Cause      error
}

func (e *ExternalAPIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.APIName, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.APIName, e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Cause }

// DataParsingError is "data parsing failure": malformed workflow
// JSON or invalid parameter shape, surfaced at import time.
type DataParsingError struct {
	Location string
	Message  string
	Cause    error
}

func (e *DataParsingError) Error() string {
	return fmt.Sprintf("parse error at %s: %s", e.Location, e.Message)
}

func (e *DataParsingError) Unwrap() error { return e.Cause }

// EncryptionError is "encryption failure": a credential or SECRET
// variable could not be decrypted. Always non-retryable.
type EncryptionError struct {
	ResourceKind string
	ResourceID   string
	Cause        error
}

func (e *EncryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt %s %s: %v", e.ResourceKind, e.ResourceID, e.Cause)
}

func (e *EncryptionError) Unwrap() error { return e.Cause }

// ConfigurationError reports a malformed node/engine configuration.
type ConfigurationError struct {
	Component string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

func NewConfigurationError(component, message string) *ConfigurationError {
	return &ConfigurationError{Component: component, Message: message}
}

// ValidationDiagnostic is a non-fatal diagnostic such as "no trigger node"
// or "disconnected node". Severity distinguishes diagnostics that merely
// warn from ones that are fatal to a specific node on run.
type ValidationDiagnostic struct {
	Code    string
	Message string
	NodeID  string
	Fatal   bool
}

func (d ValidationDiagnostic) Error() string { return d.Message }

// IsRetryable inspects known error kinds for a retry hint; unknown error
// types are treated as non-retryable.
func IsRetryable(err error) bool {
	switch e := err.(type) {
	case *NodeExecutionError:
		return e.Retryable
	case *ExternalAPIError:
		return e.Transient
	default:
		return false
	}
}
