package lifecycle

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// TransitionLogger records every attempted lifecycle transition.
type TransitionLogger interface {
	LogTransition(ctx context.Context, entry TransitionLog)
}

// TransitionLog describes one lifecycle transition attempt.
type TransitionLog struct {
	Transition string
	UserID     ledger.UserID
	ActorID    ledger.UserID
	RequestID  string
	From       State
	To         State
	Status     string
	Error      error
}

// SessionInvalidator revokes a user's sessions. Implementations must not block the caller.
type SessionInvalidator interface {
	InvalidateSessions(ctx context.Context, userID ledger.UserID) error
}

// WithTransitionLogger wires a logger that receives callbacks for every transition.
func WithTransitionLogger(logger TransitionLogger) ServiceOption {
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

// WithSessionInvalidator wires the session revocation side effect of RequestDeactivation.
func WithSessionInvalidator(invalidator SessionInvalidator) ServiceOption {
	return func(service *Service) {
		service.sessions = invalidator
	}
}

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(gracePeriod time.Duration) ServiceOption {
	return func(service *Service) {
		service.gracePeriod = gracePeriod
	}
}

// WithSweepBatchSize overrides how many due users one sweep batch loads.
func WithSweepBatchSize(size int) ServiceOption {
	return func(service *Service) {
		service.sweepBatchSize = size
	}
}

// WithConflictAttempts overrides how many times a StorageConflict is retried.
func WithConflictAttempts(attempts int) ServiceOption {
	return func(service *Service) {
		service.conflictAttempts = attempts
	}
}
