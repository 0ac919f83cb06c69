package grpcserver

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/franchise-credits/api/credit/v1"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"go.uber.org/zap"
)

// CreditServiceServer exposes the ledger and the account lifecycle to trusted services.
type CreditServiceServer struct {
	creditv1.UnimplementedCreditServiceServer
	ledgerService    *ledger.Service
	lifecycleService *lifecycle.Service
	logger           *zap.Logger
}

// NewCreditServiceServer constructs the gRPC server.
func NewCreditServiceServer(ledgerService *ledger.Service, lifecycleService *lifecycle.Service, logger *zap.Logger) *CreditServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditServiceServer{
		ledgerService:    ledgerService,
		lifecycleService: lifecycleService,
		logger:           logger,
	}
}

func (server *CreditServiceServer) GetBalance(ctx context.Context, request *creditv1.BalanceRequest) (*creditv1.BalanceResponse, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	balance, err := server.ledgerService.Balance(ctx, userID)
	if err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.BalanceResponse{Balance: balance.Int64()}, nil
}

func (server *CreditServiceServer) ApplyTransaction(ctx context.Context, request *creditv1.ApplyTransactionRequest) (*creditv1.ApplyTransactionResponse, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	amount, err := ledger.NewCredits(request.Amount)
	if err != nil {
		return nil, server.fail(err)
	}
	kind, err := ledger.ParseTransactionKind(request.Kind)
	if err != nil {
		return nil, server.fail(err)
	}
	description, err := ledger.NewDescription(request.Description)
	if err != nil {
		return nil, server.fail(err)
	}
	metadata, err := ledger.NewMetadataJSON(request.MetadataJson)
	if err != nil {
		return nil, server.fail(err)
	}
	options := []ledger.ApplyOption{ledger.WithMetadata(metadata)}
	if request.Force {
		actor, err := parseActor(request.Actor)
		if err != nil {
			return nil, server.fail(err)
		}
		options = append(options, ledger.WithForce(actor))
	}
	balance, err := server.ledgerService.ApplyTransaction(ctx, userID, amount, kind, description, options...)
	if err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.ApplyTransactionResponse{Balance: balance.Int64()}, nil
}

func (server *CreditServiceServer) ListTransactions(ctx context.Context, request *creditv1.ListTransactionsRequest) (*creditv1.ListTransactionsResponse, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	transactions, err := server.ledgerService.ListTransactions(ctx, userID, request.BeforeUnixUtc, int(request.Limit))
	if err != nil {
		return nil, server.fail(err)
	}
	response := &creditv1.ListTransactionsResponse{Transactions: make([]*creditv1.Transaction, 0, len(transactions))}
	for _, transaction := range transactions {
		response.Transactions = append(response.Transactions, &creditv1.Transaction{
			TransactionId:  transaction.TransactionID,
			UserId:         transaction.UserID.String(),
			Amount:         transaction.Amount.Int64(),
			Kind:           transaction.Kind.String(),
			Description:    transaction.Description,
			MetadataJson:   transaction.Metadata.String(),
			CreatedUnixUtc: transaction.CreatedUnixUTC,
		})
	}
	return response, nil
}

func (server *CreditServiceServer) Reconcile(ctx context.Context, request *creditv1.ReconcileRequest) (*creditv1.ReconcileResponse, error) {
	userID, err := ledger.NewUserID(request.UserId)
	if err != nil {
		return nil, server.fail(err)
	}
	reconciliation, err := server.ledgerService.Reconcile(ctx, userID)
	if err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.ReconcileResponse{
		UserId:     reconciliation.UserID.String(),
		Cached:     reconciliation.Cached.Int64(),
		Derived:    reconciliation.Derived.Int64(),
		Consistent: reconciliation.Consistent,
	}, nil
}

func (server *CreditServiceServer) CheckOrGrantAccess(ctx context.Context, request *creditv1.CheckOrGrantAccessRequest) (*creditv1.CheckOrGrantAccessResponse, error) {
	viewerID, subjectID, err := parseGrantKey(request.ViewerId, request.SubjectId)
	if err != nil {
		return nil, server.fail(err)
	}
	cost, err := ledger.NewCost(request.Cost)
	if err != nil {
		return nil, server.fail(err)
	}
	result, err := server.ledgerService.CheckOrGrantAccess(ctx, viewerID, subjectID, cost)
	if err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.CheckOrGrantAccessResponse{
		AlreadyGranted: result.AlreadyGranted,
		Charged:        result.Charged,
		Balance:        result.Balance.Int64(),
		Grant:          toGrantMessage(result.Grant),
	}, nil
}

func (server *CreditServiceServer) HasAccess(ctx context.Context, request *creditv1.HasAccessRequest) (*creditv1.HasAccessResponse, error) {
	viewerID, subjectID, err := parseGrantKey(request.ViewerId, request.SubjectId)
	if err != nil {
		return nil, server.fail(err)
	}
	granted, err := server.ledgerService.HasAccess(ctx, viewerID, subjectID)
	if err != nil {
		return nil, server.fail(err)
	}
	return &creditv1.HasAccessResponse{Granted: granted}, nil
}

func (server *CreditServiceServer) ListGrants(ctx context.Context, request *creditv1.ListGrantsRequest) (*creditv1.ListGrantsResponse, error) {
	viewerID, err := ledger.NewUserID(request.ViewerId)
	if err != nil {
		return nil, server.fail(err)
	}
	grants, err := server.ledgerService.ListGrants(ctx, viewerID)
	if err != nil {
		return nil, server.fail(err)
	}
	response := &creditv1.ListGrantsResponse{Grants: make([]*creditv1.Grant, 0, len(grants))}
	for _, grant := range grants {
		response.Grants = append(response.Grants, toGrantMessage(grant))
	}
	return response, nil
}

// fail maps a domain error to a status and logs the ones callers cannot act on.
func (server *CreditServiceServer) fail(err error) error {
	mapped := mapToGRPCError(err)
	if isInternal(mapped) {
		server.logger.Error("grpc request failed", zap.Error(err))
	}
	return mapped
}

func parseActor(actor *creditv1.Actor) (ledger.Actor, error) {
	if actor == nil {
		return ledger.Actor{}, fmt.Errorf("%w: missing actor", ledger.ErrForbidden)
	}
	userID, err := ledger.NewUserID(actor.UserId)
	if err != nil {
		return ledger.Actor{}, err
	}
	role, err := ledger.ParseRole(actor.Role)
	if err != nil {
		return ledger.Actor{}, err
	}
	return ledger.Actor{UserID: userID, Role: role}, nil
}

func parseGrantKey(rawViewerID string, rawSubjectID string) (ledger.UserID, ledger.ApplicationID, error) {
	viewerID, err := ledger.NewUserID(rawViewerID)
	if err != nil {
		return ledger.UserID{}, ledger.ApplicationID{}, err
	}
	subjectID, err := ledger.NewApplicationID(rawSubjectID)
	if err != nil {
		return ledger.UserID{}, ledger.ApplicationID{}, err
	}
	return viewerID, subjectID, nil
}

func toGrantMessage(grant ledger.ProfileViewGrant) *creditv1.Grant {
	if grant.GrantID == "" {
		return nil
	}
	return &creditv1.Grant{
		GrantId:        grant.GrantID,
		ViewerId:       grant.ViewerID.String(),
		SubjectId:      grant.SubjectID.String(),
		CreatedUnixUtc: grant.CreatedUnixUTC,
	}
}
