package grpcserver

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/api/credit/v1"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (server *CreditServiceServer) RegisterUser(ctx context.Context, request *creditv1.RegisterUserRequest) (*creditv1.Empty, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	if err := server.lifecycleService.RegisterUser(ctx, userID, request.Email); err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.Empty{}, nil
}

func (server *CreditServiceServer) GetAccountStatus(ctx context.Context, request *creditv1.AccountStatusRequest) (*creditv1.AccountStatus, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	view, err := server.lifecycleService.Status(ctx, userID)
	if err != nil {
		return nil, server.fail(err)
	}
	message := toStatusMessage(view.Status)
	if view.PendingRequest != nil {
		message.PendingRequest = toRequestMessage(*view.PendingRequest)
	}
	return message, nil
}

func (server *CreditServiceServer) RequestDeactivation(ctx context.Context, request *creditv1.RequestDeactivationRequest) (*creditv1.AccountStatus, error) {
	actor, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	updated, err := server.lifecycleService.RequestDeactivation(ctx, actor)
	if err != nil {
		return nil, server.fail(err)
	}
	return toStatusMessage(updated), nil
}

func (server *CreditServiceServer) CancelDeactivation(ctx context.Context, request *creditv1.CancelDeactivationRequest) (*creditv1.AccountStatus, error) {
	admin, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	updated, err := server.lifecycleService.CancelDeactivation(ctx, admin, userID)
	if err != nil {
		return nil, server.fail(err)
	}
	return toStatusMessage(updated), nil
}

func (server *CreditServiceServer) SweepDeactivations(ctx context.Context, _ *creditv1.SweepDeactivationsRequest) (*creditv1.SweepDeactivationsResponse, error) {
	result, err := server.lifecycleService.SweepDeactivations(ctx)
	if err != nil {
		return nil, server.fail(err)
	}
	response := &creditv1.SweepDeactivationsResponse{DeactivatedUserIds: make([]string, 0, len(result.Deactivated))}
	for _, userID := range result.Deactivated {
		response.DeactivatedUserIds = append(response.DeactivatedUserIds, userID.String())
	}
	return response, nil
}

func (server *CreditServiceServer) RequestReactivation(ctx context.Context, request *creditv1.RequestReactivationRequest) (*creditv1.ReactivationRequest, error) {
	actor, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	created, err := server.lifecycleService.RequestReactivation(ctx, actor, request.Reason)
	if err != nil {
		return nil, server.fail(err)
	}
	return toRequestMessage(created), nil
}

func (server *CreditServiceServer) ApproveReactivation(ctx context.Context, request *creditv1.ReviewReactivationRequest) (*creditv1.ReactivationRequest, error) {
	admin, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	resolved, err := server.lifecycleService.ApproveReactivation(ctx, admin, request.RequestId, request.Notes)
	if err != nil {
		return nil, server.fail(err)
	}
	return toRequestMessage(resolved), nil
}

func (server *CreditServiceServer) RejectReactivation(ctx context.Context, request *creditv1.ReviewReactivationRequest) (*creditv1.ReactivationRequest, error) {
	admin, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	resolved, err := server.lifecycleService.RejectReactivation(ctx, admin, request.RequestId, request.Notes)
	if err != nil {
		return nil, server.fail(err)
	}
	return toRequestMessage(resolved), nil
}

func (server *CreditServiceServer) ListReactivationRequests(ctx context.Context, request *creditv1.ListReactivationRequestsRequest) (*creditv1.ListReactivationRequestsResponse, error) {
	admin, err := parseActor(request.Actor)
	if err != nil {
		return nil, server.fail(err)
	}
	filter := lifecycle.RequestFilter{Limit: int(request.Limit), Offset: int(request.Offset)}
	if request.Status != "" {
		requestStatus, err := lifecycle.ParseRequestStatus(request.Status)
		if err != nil {
			return nil, server.fail(err)
		}
		filter.Status = &requestStatus
	}
	requests, err := server.lifecycleService.ListReactivationRequests(ctx, admin, filter)
	if err != nil {
		return nil, server.fail(err)
	}
	response := &creditv1.ListReactivationRequestsResponse{Requests: make([]*creditv1.ReactivationRequest, 0, len(requests))}
	for _, listed := range requests {
		response.Requests = append(response.Requests, toRequestMessage(listed))
	}
	return response, nil
}

func toStatusMessage(accountStatus lifecycle.AccountStatus) *creditv1.AccountStatus {
	return &creditv1.AccountStatus{
		UserId:                       accountStatus.UserID.String(),
		State:                        string(accountStatus.State()),
		IsDeactivated:                accountStatus.IsDeactivated,
		DeactivationRequestedUnixUtc: unixOrZero(accountStatus.DeactivationRequestedAt),
		DeactivationScheduledUnixUtc: unixOrZero(accountStatus.DeactivationScheduledAt),
	}
}

func toRequestMessage(request lifecycle.ReactivationRequest) *creditv1.ReactivationRequest {
	return &creditv1.ReactivationRequest{
		RequestId:       request.RequestID,
		UserId:          request.UserID.String(),
		Email:           request.Email,
		Reason:          request.Reason,
		Status:          request.Status.String(),
		ReviewedBy:      request.ReviewedBy,
		ReviewedUnixUtc: unixOrZero(request.ReviewedAt),
		AdminNotes:      request.AdminNotes,
		CreatedUnixUtc:  request.CreatedAt.Unix(),
	}
}

func unixOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func isInternal(err error) bool {
	return status.Code(err) == codes.Internal
}
