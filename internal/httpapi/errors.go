package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorInvalidPayload         = "invalid_payload"
	errorInvalidArgument        = "invalid_argument"
	errorInsufficientBalance    = "insufficient_balance"
	errorForbidden              = "forbidden"
	errorNotFound               = "not_found"
	errorAlreadyPendingRequest  = "already_pending_request"
	errorInvalidStateTransition = "invalid_state_transition"
	errorStorageConflict        = "storage_conflict"
	errorInternal               = "internal"
)

var validationErrors = []error{
	ledger.ErrInvalidUserID,
	ledger.ErrInvalidApplicationID,
	ledger.ErrInvalidAmount,
	ledger.ErrInvalidTransactionKind,
	ledger.ErrInvalidDescription,
	ledger.ErrInvalidMetadataJSON,
	ledger.ErrInvalidOverride,
	ledger.ErrInvalidListLimit,
	lifecycle.ErrInvalidNotes,
	lifecycle.ErrInvalidRequestStatus,
	lifecycle.ErrInvalidRequestID,
}

// statusForError maps a domain error to an HTTP status and a stable error code.
func statusForError(err error) (int, string) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, errorInvalidArgument
		}
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusPaymentRequired, errorInsufficientBalance
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, errorForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, errorNotFound
	case errors.Is(err, lifecycle.ErrAlreadyPendingRequest):
		return http.StatusConflict, errorAlreadyPendingRequest
	case errors.Is(err, lifecycle.ErrInvalidStateTransition):
		return http.StatusConflict, errorInvalidStateTransition
	case errors.Is(err, ledger.ErrStorageConflict):
		return http.StatusConflict, errorStorageConflict
	default:
		return http.StatusInternalServerError, errorInternal
	}
}

func (handler *Handler) respondError(ctx *gin.Context, err error) {
	statusCode, code := statusForError(err)
	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		handler.logger.Error("http request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		message = "internal error"
	}
	abortWithError(ctx, statusCode, code, message)
}

func abortWithError(ctx *gin.Context, statusCode int, code string, message string) {
	ctx.AbortWithStatusJSON(statusCode, errorResponse(code, message))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
