package creditv1

// Actor identifies the caller on whose behalf a privileged operation runs.
type Actor struct {
	UserId string `json:"user_id"`
	Role   string `json:"role"`
}

type Empty struct{}

type BalanceRequest struct {
	UserId string `json:"user_id"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type ApplyTransactionRequest struct {
	Actor        *Actor `json:"actor,omitempty"`
	UserId       string `json:"user_id"`
	Amount       int64  `json:"amount"`
	Kind         string `json:"kind"`
	Description  string `json:"description"`
	MetadataJson string `json:"metadata_json,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

type ApplyTransactionResponse struct {
	Balance int64 `json:"balance"`
}

type Transaction struct {
	TransactionId  string `json:"transaction_id"`
	UserId         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	Kind           string `json:"kind"`
	Description    string `json:"description"`
	MetadataJson   string `json:"metadata_json"`
	CreatedUnixUtc int64  `json:"created_unix_utc"`
}

type ListTransactionsRequest struct {
	UserId        string `json:"user_id"`
	BeforeUnixUtc int64  `json:"before_unix_utc,omitempty"`
	Limit         int32  `json:"limit,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

type Grant struct {
	GrantId        string `json:"grant_id"`
	ViewerId       string `json:"viewer_id"`
	SubjectId      string `json:"subject_id"`
	CreatedUnixUtc int64  `json:"created_unix_utc"`
}

type CheckOrGrantAccessRequest struct {
	ViewerId  string `json:"viewer_id"`
	SubjectId string `json:"subject_id"`
	Cost      int64  `json:"cost"`
}

type CheckOrGrantAccessResponse struct {
	AlreadyGranted bool   `json:"already_granted"`
	Charged        bool   `json:"charged"`
	Balance        int64  `json:"balance"`
	Grant          *Grant `json:"grant,omitempty"`
}

type HasAccessRequest struct {
	ViewerId  string `json:"viewer_id"`
	SubjectId string `json:"subject_id"`
}

type HasAccessResponse struct {
	Granted bool `json:"granted"`
}

type ListGrantsRequest struct {
	ViewerId string `json:"viewer_id"`
}

type ListGrantsResponse struct {
	Grants []*Grant `json:"grants"`
}

type ReconcileRequest struct {
	UserId string `json:"user_id"`
}

type ReconcileResponse struct {
	UserId     string `json:"user_id"`
	Cached     int64  `json:"cached"`
	Derived    int64  `json:"derived"`
	Consistent bool   `json:"consistent"`
}

type RegisterUserRequest struct {
	UserId string `json:"user_id"`
	Email  string `json:"email"`
}

type AccountStatusRequest struct {
	UserId string `json:"user_id"`
}

type AccountStatus struct {
	UserId                       string               `json:"user_id"`
	State                        string               `json:"state"`
	IsDeactivated                bool                 `json:"is_deactivated"`
	DeactivationRequestedUnixUtc int64                `json:"deactivation_requested_unix_utc,omitempty"`
	DeactivationScheduledUnixUtc int64                `json:"deactivation_scheduled_unix_utc,omitempty"`
	PendingRequest               *ReactivationRequest `json:"pending_request,omitempty"`
}

type RequestDeactivationRequest struct {
	Actor *Actor `json:"actor"`
}

type CancelDeactivationRequest struct {
	Actor  *Actor `json:"actor"`
	UserId string `json:"user_id"`
}

type SweepDeactivationsRequest struct{}

type SweepDeactivationsResponse struct {
	DeactivatedUserIds []string `json:"deactivated_user_ids"`
}

type ReactivationRequest struct {
	RequestId       string `json:"request_id"`
	UserId          string `json:"user_id"`
	Email           string `json:"email"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedUnixUtc int64  `json:"reviewed_unix_utc,omitempty"`
	AdminNotes      string `json:"admin_notes,omitempty"`
	CreatedUnixUtc  int64  `json:"created_unix_utc"`
}

type RequestReactivationRequest struct {
	Actor  *Actor `json:"actor"`
	Reason string `json:"reason"`
}

type ReviewReactivationRequest struct {
	Actor     *Actor `json:"actor"`
	RequestId string `json:"request_id"`
	Notes     string `json:"notes"`
}

type ListReactivationRequestsRequest struct {
	Actor  *Actor `json:"actor"`
	Status string `json:"status,omitempty"`
	Limit  int32  `json:"limit,omitempty"`
	Offset int32  `json:"offset,omitempty"`
}

type ListReactivationRequestsResponse struct {
	Requests []*ReactivationRequest `json:"requests"`
}
