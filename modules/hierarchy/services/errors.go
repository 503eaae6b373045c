package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func (e *ServiceError) HTTPStatus() int { return e.Status }

func (e *ServiceError) ErrorCode() string { return e.Code }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

var (
	ErrTargetNodeRequired = errors.New("target node is required")
	ErrNodeNotFound       = errors.New("node not found")
	ErrNodeCycle          = errors.New("node cannot be moved under itself or its descendant")
)

// CyclicHierarchyError is returned when parent links form a cycle, so some
// nodes can never be reached from a root.
type CyclicHierarchyError struct {
	NodeIDs []string
}

func (e *CyclicHierarchyError) Error() string {
	return fmt.Sprintf("hierarchy contains a parent cycle involving nodes: %s", strings.Join(e.NodeIDs, ", "))
}

func (e *CyclicHierarchyError) HTTPStatus() int { return http.StatusConflict }

func (e *CyclicHierarchyError) ErrorCode() string { return "HIERARCHY_CYCLE" }

// MalformedCSVError aborts an import before any write happens.
type MalformedCSVError struct {
	Line   int
	Reason string
}

func (e *MalformedCSVError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed csv at line %d: %s", e.Line, e.Reason)
	}
	return "malformed csv: " + e.Reason
}

func (e *MalformedCSVError) HTTPStatus() int { return http.StatusBadRequest }

func (e *MalformedCSVError) ErrorCode() string { return "HIERARCHY_MALFORMED_CSV" }
