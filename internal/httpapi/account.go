package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"github.com/gin-gonic/gin"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type statusPayload struct {
	UserID                  string               `json:"user_id"`
	State                   string               `json:"state"`
	IsDeactivated           bool                 `json:"is_deactivated"`
	DeactivationRequestedAt *time.Time           `json:"deactivation_requested_at"`
	DeactivationScheduledAt *time.Time           `json:"deactivation_scheduled_at"`
	PendingRequest          *reactivationPayload `json:"pending_request,omitempty"`
}

type reactivationPayload struct {
	RequestID  string     `json:"request_id"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	AdminNotes string     `json:"admin_notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// handleSession records the session user in the lifecycle store and returns its status.
func (handler *Handler) handleSession(ctx *gin.Context) {
	actor := currentActor(ctx)
	claims := getClaims(ctx)
	if err := handler.lifecycleService.RegisterUser(ctx.Request.Context(), actor.UserID, claims.GetUserEmail()); err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.respondWithStatus(ctx, actor.UserID, http.StatusOK)
}

func (handler *Handler) handleAccountStatus(ctx *gin.Context) {
	handler.respondWithStatus(ctx, currentActor(ctx).UserID, http.StatusOK)
}

func (handler *Handler) handleRequestDeactivation(ctx *gin.Context) {
	updated, err := handler.lifecycleService.RequestDeactivation(ctx.Request.Context(), currentActor(ctx))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{"status": toStatusPayload(updated)})
}

func (handler *Handler) handleRequestReactivation(ctx *gin.Context) {
	var request reasonRequest
	if err := bindOptionalJSON(ctx, &request); err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidPayload, "expected JSON body")
		return
	}
	created, err := handler.lifecycleService.RequestReactivation(ctx.Request.Context(), currentActor(ctx), request.Reason)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"request": toReactivationPayload(created)})
}

func (handler *Handler) handleCancelDeactivation(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("userID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	updated, err := handler.lifecycleService.CancelDeactivation(ctx.Request.Context(), currentActor(ctx), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": toStatusPayload(updated)})
}

func (handler *Handler) handleSweep(ctx *gin.Context) {
	result, err := handler.lifecycleService.SweepDeactivations(ctx.Request.Context())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	deactivated := make([]string, 0, len(result.Deactivated))
	for _, userID := range result.Deactivated {
		deactivated = append(deactivated, userID.String())
	}
	ctx.JSON(http.StatusOK, gin.H{"deactivated": deactivated})
}

func (handler *Handler) handleListReactivationRequests(ctx *gin.Context) {
	limit, err := optionalInt64(ctx.Query("limit"))
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidArgument, "limit must be an integer")
		return
	}
	offset, err := optionalInt64(ctx.Query("offset"))
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidArgument, "offset must be an integer")
		return
	}
	filter := lifecycle.RequestFilter{Limit: int(limit), Offset: int(offset)}
	if rawStatus := ctx.Query("status"); rawStatus != "" {
		requestStatus, err := lifecycle.ParseRequestStatus(rawStatus)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
		filter.Status = &requestStatus
	}
	requests, err := handler.lifecycleService.ListReactivationRequests(ctx.Request.Context(), currentActor(ctx), filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]reactivationPayload, 0, len(requests))
	for _, listed := range requests {
		payload = append(payload, toReactivationPayload(listed))
	}
	ctx.JSON(http.StatusOK, gin.H{"requests": payload})
}

func (handler *Handler) handleApproveReactivation(ctx *gin.Context) {
	handler.review(ctx, handler.lifecycleService.ApproveReactivation)
}

func (handler *Handler) handleRejectReactivation(ctx *gin.Context) {
	handler.review(ctx, handler.lifecycleService.RejectReactivation)
}

type reviewFunc func(ctx context.Context, admin ledger.Actor, requestID string, notes string) (lifecycle.ReactivationRequest, error)

func (handler *Handler) review(ctx *gin.Context, decide reviewFunc) {
	var request notesRequest
	if err := bindOptionalJSON(ctx, &request); err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidPayload, "expected JSON body")
		return
	}
	resolved, err := decide(ctx.Request.Context(), currentActor(ctx), ctx.Param("requestID"), request.Notes)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"request": toReactivationPayload(resolved)})
}

func (handler *Handler) respondWithStatus(ctx *gin.Context, userID ledger.UserID, statusCode int) {
	view, err := handler.lifecycleService.Status(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := toStatusPayload(view.Status)
	if view.PendingRequest != nil {
		pending := toReactivationPayload(*view.PendingRequest)
		payload.PendingRequest = &pending
	}
	ctx.JSON(statusCode, gin.H{"status": payload})
}

func bindOptionalJSON(ctx *gin.Context, target any) error {
	if err := ctx.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func toStatusPayload(accountStatus lifecycle.AccountStatus) statusPayload {
	return statusPayload{
		UserID:                  accountStatus.UserID.String(),
		State:                   string(accountStatus.State()),
		IsDeactivated:           accountStatus.IsDeactivated,
		DeactivationRequestedAt: accountStatus.DeactivationRequestedAt,
		DeactivationScheduledAt: accountStatus.DeactivationScheduledAt,
	}
}

func toReactivationPayload(request lifecycle.ReactivationRequest) reactivationPayload {
	return reactivationPayload{
		RequestID:  request.RequestID,
		UserID:     request.UserID.String(),
		Email:      request.Email,
		Reason:     request.Reason,
		Status:     request.Status.String(),
		ReviewedBy: request.ReviewedBy,
		ReviewedAt: request.ReviewedAt,
		AdminNotes: request.AdminNotes,
		CreatedAt:  request.CreatedAt,
	}
}
