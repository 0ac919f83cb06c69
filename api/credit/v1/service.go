package creditv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "credit.v1.CreditService"

const (
	methodGetBalance               = "GetBalance"
	methodApplyTransaction         = "ApplyTransaction"
	methodListTransactions         = "ListTransactions"
	methodReconcile                = "Reconcile"
	methodCheckOrGrantAccess       = "CheckOrGrantAccess"
	methodHasAccess                = "HasAccess"
	methodListGrants               = "ListGrants"
	methodRegisterUser             = "RegisterUser"
	methodGetAccountStatus         = "GetAccountStatus"
	methodRequestDeactivation      = "RequestDeactivation"
	methodCancelDeactivation       = "CancelDeactivation"
	methodSweepDeactivations       = "SweepDeactivations"
	methodRequestReactivation      = "RequestReactivation"
	methodApproveReactivation      = "ApproveReactivation"
	methodRejectReactivation       = "RejectReactivation"
	methodListReactivationRequests = "ListReactivationRequests"
)

// CreditServiceServer is the server API for CreditService.
type CreditServiceServer interface {
	GetBalance(context.Context, *BalanceRequest) (*BalanceResponse, error)
	ApplyTransaction(context.Context, *ApplyTransactionRequest) (*ApplyTransactionResponse, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error)
	Reconcile(context.Context, *ReconcileRequest) (*ReconcileResponse, error)
	CheckOrGrantAccess(context.Context, *CheckOrGrantAccessRequest) (*CheckOrGrantAccessResponse, error)
	HasAccess(context.Context, *HasAccessRequest) (*HasAccessResponse, error)
	ListGrants(context.Context, *ListGrantsRequest) (*ListGrantsResponse, error)
	RegisterUser(context.Context, *RegisterUserRequest) (*Empty, error)
	GetAccountStatus(context.Context, *AccountStatusRequest) (*AccountStatus, error)
	RequestDeactivation(context.Context, *RequestDeactivationRequest) (*AccountStatus, error)
	CancelDeactivation(context.Context, *CancelDeactivationRequest) (*AccountStatus, error)
	SweepDeactivations(context.Context, *SweepDeactivationsRequest) (*SweepDeactivationsResponse, error)
	RequestReactivation(context.Context, *RequestReactivationRequest) (*ReactivationRequest, error)
	ApproveReactivation(context.Context, *ReviewReactivationRequest) (*ReactivationRequest, error)
	RejectReactivation(context.Context, *ReviewReactivationRequest) (*ReactivationRequest, error)
	ListReactivationRequests(context.Context, *ListReactivationRequestsRequest) (*ListReactivationRequestsResponse, error)
}

// UnimplementedCreditServiceServer answers every method with codes.Unimplemented.
type UnimplementedCreditServiceServer struct{}

func (UnimplementedCreditServiceServer) GetBalance(context.Context, *BalanceRequest) (*BalanceResponse, error) {
	return nil, unimplemented(methodGetBalance)
}

func (UnimplementedCreditServiceServer) ApplyTransaction(context.Context, *ApplyTransactionRequest) (*ApplyTransactionResponse, error) {
	return nil, unimplemented(methodApplyTransaction)
}

func (UnimplementedCreditServiceServer) ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsResponse, error) {
	return nil, unimplemented(methodListTransactions)
}

func (UnimplementedCreditServiceServer) Reconcile(context.Context, *ReconcileRequest) (*ReconcileResponse, error) {
	return nil, unimplemented(methodReconcile)
}

func (UnimplementedCreditServiceServer) CheckOrGrantAccess(context.Context, *CheckOrGrantAccessRequest) (*CheckOrGrantAccessResponse, error) {
	return nil, unimplemented(methodCheckOrGrantAccess)
}

func (UnimplementedCreditServiceServer) HasAccess(context.Context, *HasAccessRequest) (*HasAccessResponse, error) {
	return nil, unimplemented(methodHasAccess)
}

func (UnimplementedCreditServiceServer) ListGrants(context.Context, *ListGrantsRequest) (*ListGrantsResponse, error) {
	return nil, unimplemented(methodListGrants)
}

func (UnimplementedCreditServiceServer) RegisterUser(context.Context, *RegisterUserRequest) (*Empty, error) {
	return nil, unimplemented(methodRegisterUser)
}

func (UnimplementedCreditServiceServer) GetAccountStatus(context.Context, *AccountStatusRequest) (*AccountStatus, error) {
	return nil, unimplemented(methodGetAccountStatus)
}

func (UnimplementedCreditServiceServer) RequestDeactivation(context.Context, *RequestDeactivationRequest) (*AccountStatus, error) {
	return nil, unimplemented(methodRequestDeactivation)
}

func (UnimplementedCreditServiceServer) CancelDeactivation(context.Context, *CancelDeactivationRequest) (*AccountStatus, error) {
	return nil, unimplemented(methodCancelDeactivation)
}

func (UnimplementedCreditServiceServer) SweepDeactivations(context.Context, *SweepDeactivationsRequest) (*SweepDeactivationsResponse, error) {
	return nil, unimplemented(methodSweepDeactivations)
}

func (UnimplementedCreditServiceServer) RequestReactivation(context.Context, *RequestReactivationRequest) (*ReactivationRequest, error) {
	return nil, unimplemented(methodRequestReactivation)
}

func (UnimplementedCreditServiceServer) ApproveReactivation(context.Context, *ReviewReactivationRequest) (*ReactivationRequest, error) {
	return nil, unimplemented(methodApproveReactivation)
}

func (UnimplementedCreditServiceServer) RejectReactivation(context.Context, *ReviewReactivationRequest) (*ReactivationRequest, error) {
	return nil, unimplemented(methodRejectReactivation)
}

func (UnimplementedCreditServiceServer) ListReactivationRequests(context.Context, *ListReactivationRequestsRequest) (*ListReactivationRequestsResponse, error) {
	return nil, unimplemented(methodListReactivationRequests)
}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// RegisterCreditServiceServer registers srv on registrar.
func RegisterCreditServiceServer(registrar grpc.ServiceRegistrar, srv CreditServiceServer) {
	registrar.RegisterService(&CreditService_ServiceDesc, srv)
}

// CreditService_ServiceDesc describes CreditService for grpc.ServiceRegistrar.
var CreditService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CreditServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodGetBalance, CreditServiceServer.GetBalance),
		unaryMethod(methodApplyTransaction, CreditServiceServer.ApplyTransaction),
		unaryMethod(methodListTransactions, CreditServiceServer.ListTransactions),
		unaryMethod(methodReconcile, CreditServiceServer.Reconcile),
		unaryMethod(methodCheckOrGrantAccess, CreditServiceServer.CheckOrGrantAccess),
		unaryMethod(methodHasAccess, CreditServiceServer.HasAccess),
		unaryMethod(methodListGrants, CreditServiceServer.ListGrants),
		unaryMethod(methodRegisterUser, CreditServiceServer.RegisterUser),
		unaryMethod(methodGetAccountStatus, CreditServiceServer.GetAccountStatus),
		unaryMethod(methodRequestDeactivation, CreditServiceServer.RequestDeactivation),
		unaryMethod(methodCancelDeactivation, CreditServiceServer.CancelDeactivation),
		unaryMethod(methodSweepDeactivations, CreditServiceServer.SweepDeactivations),
		unaryMethod(methodRequestReactivation, CreditServiceServer.RequestReactivation),
		unaryMethod(methodApproveReactivation, CreditServiceServer.ApproveReactivation),
		unaryMethod(methodRejectReactivation, CreditServiceServer.RejectReactivation),
		unaryMethod(methodListReactivationRequests, CreditServiceServer.ListReactivationRequests),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "credit/v1/credit.json",
}

func unaryMethod[Request any, Response any](method string, call func(CreditServiceServer, context.Context, *Request) (*Response, error)) grpc.MethodDesc {
	fullMethod := fullMethodName(method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(Request)
			if err := decode(request); err != nil {
				return nil, err
			}
			server := srv.(CreditServiceServer)
			if interceptor == nil {
				return call(server, ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, request any) (any, error) {
				return call(server, ctx, request.(*Request))
			}
			return interceptor(ctx, request, info, handler)
		},
	}
}

func fullMethodName(method string) string {
	return "/" + ServiceName + "/" + method
}

// CreditServiceClient is the client API for CreditService.
type CreditServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewCreditServiceClient returns a client that always requests the JSON codec.
func NewCreditServiceClient(conn grpc.ClientConnInterface) *CreditServiceClient {
	return &CreditServiceClient{conn: conn}
}

func invoke[Response any](ctx context.Context, client *CreditServiceClient, method string, request any, options []grpc.CallOption) (*Response, error) {
	response := new(Response)
	callOptions := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
	if err := client.conn.Invoke(ctx, fullMethodName(method), request, response, callOptions...); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *CreditServiceClient) GetBalance(ctx context.Context, request *BalanceRequest, options ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, client, methodGetBalance, request, options)
}

func (client *CreditServiceClient) ApplyTransaction(ctx context.Context, request *ApplyTransactionRequest, options ...grpc.CallOption) (*ApplyTransactionResponse, error) {
	return invoke[ApplyTransactionResponse](ctx, client, methodApplyTransaction, request, options)
}

func (client *CreditServiceClient) ListTransactions(ctx context.Context, request *ListTransactionsRequest, options ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, client, methodListTransactions, request, options)
}

func (client *CreditServiceClient) Reconcile(ctx context.Context, request *ReconcileRequest, options ...grpc.CallOption) (*ReconcileResponse, error) {
	return invoke[ReconcileResponse](ctx, client, methodReconcile, request, options)
}

func (client *CreditServiceClient) CheckOrGrantAccess(ctx context.Context, request *CheckOrGrantAccessRequest, options ...grpc.CallOption) (*CheckOrGrantAccessResponse, error) {
	return invoke[CheckOrGrantAccessResponse](ctx, client, methodCheckOrGrantAccess, request, options)
}

func (client *CreditServiceClient) HasAccess(ctx context.Context, request *HasAccessRequest, options ...grpc.CallOption) (*HasAccessResponse, error) {
	return invoke[HasAccessResponse](ctx, client, methodHasAccess, request, options)
}

func (client *CreditServiceClient) ListGrants(ctx context.Context, request *ListGrantsRequest, options ...grpc.CallOption) (*ListGrantsResponse, error) {
	return invoke[ListGrantsResponse](ctx, client, methodListGrants, request, options)
}

func (client *CreditServiceClient) RegisterUser(ctx context.Context, request *RegisterUserRequest, options ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, client, methodRegisterUser, request, options)
}

func (client *CreditServiceClient) GetAccountStatus(ctx context.Context, request *AccountStatusRequest, options ...grpc.CallOption) (*AccountStatus, error) {
	return invoke[AccountStatus](ctx, client, methodGetAccountStatus, request, options)
}

func (client *CreditServiceClient) RequestDeactivation(ctx context.Context, request *RequestDeactivationRequest, options ...grpc.CallOption) (*AccountStatus, error) {
	return invoke[AccountStatus](ctx, client, methodRequestDeactivation, request, options)
}

func (client *CreditServiceClient) CancelDeactivation(ctx context.Context, request *CancelDeactivationRequest, options ...grpc.CallOption) (*AccountStatus, error) {
	return invoke[AccountStatus](ctx, client, methodCancelDeactivation, request, options)
}

func (client *CreditServiceClient) SweepDeactivations(ctx context.Context, request *SweepDeactivationsRequest, options ...grpc.CallOption) (*SweepDeactivationsResponse, error) {
	return invoke[SweepDeactivationsResponse](ctx, client, methodSweepDeactivations, request, options)
}

func (client *CreditServiceClient) RequestReactivation(ctx context.Context, request *RequestReactivationRequest, options ...grpc.CallOption) (*ReactivationRequest, error) {
	return invoke[ReactivationRequest](ctx, client, methodRequestReactivation, request, options)
}

func (client *CreditServiceClient) ApproveReactivation(ctx context.Context, request *ReviewReactivationRequest, options ...grpc.CallOption) (*ReactivationRequest, error) {
	return invoke[ReactivationRequest](ctx, client, methodApproveReactivation, request, options)
}

func (client *CreditServiceClient) RejectReactivation(ctx context.Context, request *ReviewReactivationRequest, options ...grpc.CallOption) (*ReactivationRequest, error) {
	return invoke[ReactivationRequest](ctx, client, methodRejectReactivation, request, options)
}

func (client *CreditServiceClient) ListReactivationRequests(ctx context.Context, request *ListReactivationRequestsRequest, options ...grpc.CallOption) (*ListReactivationRequestsResponse, error) {
	return invoke[ListReactivationRequestsResponse](ctx, client, methodListReactivationRequests, request, options)
}
