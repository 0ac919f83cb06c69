package ledger

import (
	"context"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	SubjectID ApplicationID
	Kind      TransactionKind
	Amount    Credits
	Balance   Credits
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithEventPublisher wires the dispatcher notified after successful commits.
func WithEventPublisher(publisher events.Publisher) ServiceOption {
	return func(service *Service) {
		if publisher != nil {
			service.publisher = publisher
		}
	}
}

// WithConflictAttempts overrides how many times a StorageConflict is retried.
func WithConflictAttempts(attempts int) ServiceOption {
	return func(service *Service) {
		service.conflictAttempts = attempts
	}
}
