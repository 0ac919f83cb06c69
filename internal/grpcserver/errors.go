package grpcserver

import (
	"errors"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorInsufficientBalance    = "insufficient_balance"
	errorInvalidAmount          = "invalid_amount"
	errorInvalidUserID          = "invalid_user_id"
	errorInvalidApplicationID   = "invalid_application_id"
	errorInvalidTransactionKind = "invalid_transaction_kind"
	errorInvalidDescription     = "invalid_description"
	errorInvalidMetadata        = "invalid_metadata_json"
	errorInvalidOverride        = "invalid_override"
	errorInvalidListLimit       = "invalid_list_limit"
	errorInvalidNotes           = "invalid_notes"
	errorInvalidRequestStatus   = "invalid_request_status"
	errorInvalidRequestID       = "invalid_request_id"
	errorForbidden              = "forbidden"
	errorNotFound               = "not_found"
	errorAlreadyPendingRequest  = "already_pending_request"
	errorInvalidStateTransition = "invalid_state_transition"
	errorStorageConflict        = "storage_conflict"
	errorInternal               = "internal"
)

type errorMapping struct {
	target  error
	code    codes.Code
	message string
}

var errorMappings = []errorMapping{
	{target: ledger.ErrInvalidUserID, code: codes.InvalidArgument, message: errorInvalidUserID},
	{target: ledger.ErrInvalidApplicationID, code: codes.InvalidArgument, message: errorInvalidApplicationID},
	{target: ledger.ErrInvalidAmount, code: codes.InvalidArgument, message: errorInvalidAmount},
	{target: ledger.ErrInvalidTransactionKind, code: codes.InvalidArgument, message: errorInvalidTransactionKind},
	{target: ledger.ErrInvalidDescription, code: codes.InvalidArgument, message: errorInvalidDescription},
	{target: ledger.ErrInvalidMetadataJSON, code: codes.InvalidArgument, message: errorInvalidMetadata},
	{target: ledger.ErrInvalidOverride, code: codes.InvalidArgument, message: errorInvalidOverride},
	{target: ledger.ErrInvalidListLimit, code: codes.InvalidArgument, message: errorInvalidListLimit},
	{target: lifecycle.ErrInvalidNotes, code: codes.InvalidArgument, message: errorInvalidNotes},
	{target: lifecycle.ErrInvalidRequestStatus, code: codes.InvalidArgument, message: errorInvalidRequestStatus},
	{target: lifecycle.ErrInvalidRequestID, code: codes.InvalidArgument, message: errorInvalidRequestID},
	{target: ledger.ErrInsufficientBalance, code: codes.FailedPrecondition, message: errorInsufficientBalance},
	{target: lifecycle.ErrInvalidStateTransition, code: codes.FailedPrecondition, message: errorInvalidStateTransition},
	{target: lifecycle.ErrAlreadyPendingRequest, code: codes.AlreadyExists, message: errorAlreadyPendingRequest},
	{target: ledger.ErrForbidden, code: codes.PermissionDenied, message: errorForbidden},
	{target: ledger.ErrNotFound, code: codes.NotFound, message: errorNotFound},
	{target: ledger.ErrStorageConflict, code: codes.Aborted, message: errorStorageConflict},
}

func mapToGRPCError(source error) error {
	for _, mapping := range errorMappings {
		if errors.Is(source, mapping.target) {
			return status.Error(mapping.code, mapping.message)
		}
	}
	return status.Error(codes.Internal, errorInternal)
}
