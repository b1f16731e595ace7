// Package mcp implements the Model Context Protocol (MCP) tool server for kbserver.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/kbserver/kbserver/internal/errors"
)

// Custom MCP error codes for kbserver.
const (
	// ErrCodeKBNotFound indicates no knowledge base exists with that name.
	ErrCodeKBNotFound = -32001

	// ErrCodeEmbeddingFailed indicates embedding generation failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates a document no longer exists on disk.
	ErrCodeDocumentNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to process.
	ErrCodeFileTooLarge = -32005

	// ErrCodeConflict indicates the requested operation conflicts with
	// existing state (e.g. a duplicate knowledge base name).
	ErrCodeConflict = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrKBNotFound indicates no knowledge base exists with that name.
	ErrKBNotFound = errors.New("knowledge base not found")

	// ErrEmbeddingFailed indicates embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrFileTooLarge indicates a file is too large to process.
	ErrFileTooLarge = errors.New("file too large")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps known error types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	// Check for KBError first
	var kerr *kberrors.KBError
	if errors.As(err, &kerr) {
		return mapKBError(kerr)
	}

	switch {
	case errors.Is(err, ErrKBNotFound):
		return &MCPError{
			Code:    ErrCodeKBNotFound,
			Message: "Knowledge base not found. Run 'kbserver import' first.",
		}
	case errors.Is(err, ErrEmbeddingFailed):
		return &MCPError{
			Code:    ErrCodeEmbeddingFailed,
			Message: "Embedding generation failed. Using BM25-only results.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrFileTooLarge):
		return &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: "File is too large to process.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: "Invalid parameters.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewConflictError creates an error for a request that conflicts with
// existing state.
func NewConflictError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapKBError converts a KBError to an MCPError using its taxonomy category.
func mapKBError(ke *kberrors.KBError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ke.Message, ke.Suggestion)
	}

	switch ke.Category {
	case kberrors.CategoryNotFound:
		switch ke.Code {
		case kberrors.ErrCodeKBNotFound:
			return &MCPError{Code: ErrCodeKBNotFound, Message: message}
		case kberrors.ErrCodeDocumentNotFound, kberrors.ErrCodeChunkNotFound:
			return &MCPError{Code: ErrCodeDocumentNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeMethodNotFound, Message: message}
		}
	case kberrors.CategoryValidation:
		switch ke.Code {
		case kberrors.ErrCodeFileTooLarge:
			return &MCPError{Code: ErrCodeFileTooLarge, Message: message}
		default:
			return &MCPError{Code: ErrCodeInvalidParams, Message: message}
		}
	case kberrors.CategoryDependency:
		switch ke.Code {
		case kberrors.ErrCodeEmbedderUnreachable:
			return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
		default:
			return &MCPError{Code: ErrCodeTimeout, Message: message}
		}
	case kberrors.CategoryConflict, kberrors.CategoryIntegrity:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default: // CategoryFatal and unknown
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
