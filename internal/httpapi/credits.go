package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/gin-gonic/gin"
)

type adjustmentRequest struct {
	Amount      int64           `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata"`
	Force       bool            `json:"force"`
}

type transactionPayload struct {
	TransactionID  string          `json:"transaction_id"`
	Amount         int64           `json:"amount"`
	Kind           string          `json:"kind"`
	Description    string          `json:"description"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

type grantPayload struct {
	GrantID        string `json:"grant_id"`
	SubjectID      string `json:"subject_id"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

func (handler *Handler) handleBalance(ctx *gin.Context) {
	actor := currentActor(ctx)
	balance, err := handler.ledgerService.Balance(ctx.Request.Context(), actor.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance.Int64()})
}

func (handler *Handler) handleTransactions(ctx *gin.Context) {
	before, err := optionalInt64(ctx.Query("before"))
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidArgument, "before must be a unix timestamp")
		return
	}
	limit, err := optionalInt64(ctx.Query("limit"))
	if err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidArgument, "limit must be an integer")
		return
	}
	transactions, err := handler.ledgerService.ListTransactions(ctx.Request.Context(), currentActor(ctx).UserID, before, int(limit))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payload = append(payload, transactionPayload{
			TransactionID:  transaction.TransactionID,
			Amount:         transaction.Amount.Int64(),
			Kind:           transaction.Kind.String(),
			Description:    transaction.Description,
			Metadata:       json.RawMessage(transaction.Metadata.String()),
			CreatedUnixUTC: transaction.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payload})
}

func (handler *Handler) handleUnlock(ctx *gin.Context) {
	subjectID, err := ledger.NewApplicationID(ctx.Param("applicationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.ledgerService.CheckOrGrantAccess(ctx.Request.Context(), currentActor(ctx).UserID, subjectID, handler.unlockCost)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"already_granted": result.AlreadyGranted,
		"charged":         result.Charged,
		"balance":         result.Balance.Int64(),
		"grant":           toGrantPayload(result.Grant),
	})
}

func (handler *Handler) handleAccess(ctx *gin.Context) {
	subjectID, err := ledger.NewApplicationID(ctx.Param("applicationID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	granted, err := handler.ledgerService.HasAccess(ctx.Request.Context(), currentActor(ctx).UserID, subjectID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"granted": granted, "cost": handler.unlockCost.Int64()})
}

func (handler *Handler) handleGrants(ctx *gin.Context) {
	grants, err := handler.ledgerService.ListGrants(ctx.Request.Context(), currentActor(ctx).UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]grantPayload, 0, len(grants))
	for _, grant := range grants {
		payload = append(payload, toGrantPayload(grant))
	}
	ctx.JSON(http.StatusOK, gin.H{"grants": payload})
}

func (handler *Handler) handleAdminAdjustment(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("userID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		abortWithError(ctx, http.StatusBadRequest, errorInvalidPayload, "expected JSON body")
		return
	}
	amount, err := ledger.NewCredits(request.Amount)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	kind := ledger.KindAdminAdjustment
	if request.Kind != "" {
		if kind, err = ledger.ParseTransactionKind(request.Kind); err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	description, err := ledger.NewDescription(request.Description)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	metadata, err := ledger.NewMetadataJSON(string(request.Metadata))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	options := []ledger.ApplyOption{ledger.WithMetadata(metadata)}
	if request.Force {
		options = append(options, ledger.WithForce(currentActor(ctx)))
	}
	balance, err := handler.ledgerService.ApplyTransaction(ctx.Request.Context(), userID, amount, kind, description, options...)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user_id": userID.String(), "balance": balance.Int64()})
}

func (handler *Handler) handleReconcile(ctx *gin.Context) {
	userID, err := ledger.NewUserID(ctx.Param("userID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	reconciliation, err := handler.ledgerService.Reconcile(ctx.Request.Context(), userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"user_id":    reconciliation.UserID.String(),
		"cached":     reconciliation.Cached.Int64(),
		"derived":    reconciliation.Derived.Int64(),
		"consistent": reconciliation.Consistent,
	})
}

func toGrantPayload(grant ledger.ProfileViewGrant) grantPayload {
	return grantPayload{
		GrantID:        grant.GrantID,
		SubjectID:      grant.SubjectID.String(),
		CreatedUnixUTC: grant.CreatedUnixUTC,
	}
}

func optionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
