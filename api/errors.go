/*
errors.go - Engine error to HTTP status mapping

STATUS CODES:
  400 invalid_input, invalid_range       Malformed or contradictory input
  401 missing_actor                      No X-Actor-ID header
  403 forbidden                          Unauthorized transition, admin required,
                                         other organization
  404 not_found                          Unknown entity
  409 conflict, invalid_state,           Overlap, non-PENDING request, referenced
      leave_type_in_use, duplicate,      leave type, existing entitlement,
      concurrent_modification            lost race (retry)
  422 insufficient_balance,              Request is well formed but the rules
      policy_violation                   or the balance refuse it
  503 retryable                          Overlap check could not run (fails
                                         closed); Retry-After is set
  500 internal                           Anything else
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

type errorClass struct {
	target error
	status int
	code   string
}

// Order matters: the first matching class wins.
var errorClasses = []errorClass{
	{leave.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
	{leave.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{leave.ErrNotFound, http.StatusNotFound, "not_found"},
	{leave.ErrUnauthorizedTransition, http.StatusForbidden, "forbidden"},
	{leave.ErrAdminRequired, http.StatusForbidden, "forbidden"},
	{leave.ErrCrossOrganizationAccess, http.StatusForbidden, "forbidden"},
	{leave.ErrConflict, http.StatusConflict, "conflict"},
	{leave.ErrInvalidStateTransition, http.StatusConflict, "invalid_state"},
	{leave.ErrLeaveTypeInUse, http.StatusConflict, "leave_type_in_use"},
	{leave.ErrDuplicateEntitlement, http.StatusConflict, "duplicate"},
	{leave.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{leave.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{leave.ErrPolicyViolation, http.StatusUnprocessableEntity, "policy_violation"},
}

func classify(err error) (int, string) {
	var ce *leave.ConflictError
	if errors.As(err, &ce) && ce.Retryable() {
		return http.StatusServiceUnavailable, "retryable"
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError maps an engine error to its status. Internal errors are
// logged and their text is not returned to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var pv *leave.PolicyViolationError
	if errors.As(err, &pv) {
		resp.Details = map[string]string{"kind": string(pv.Kind)}
	}
	if leave.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	details := validationDetails(err)
	if details == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "invalid_input", Details: details})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
