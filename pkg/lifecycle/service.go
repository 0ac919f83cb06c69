package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/events"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
)

const (
	transitionRequestDeactivation = "request_deactivation"
	transitionCancelDeactivation  = "cancel_deactivation"
	transitionSweepDeactivation   = "sweep_deactivation"
	transitionRequestReactivation = "request_reactivation"
	transitionApproveReactivation = "approve_reactivation"
	transitionRejectReactivation  = "reject_reactivation"
	transitionInvalidateSessions  = "invalidate_sessions"

	transitionStatusOK    = "ok"
	transitionStatusError = "error"

	defaultSweepBatchSize = 100

	EventDeactivationRequested = "deactivation_requested"
	EventDeactivationCancelled = "deactivation_cancelled"
	EventAccountDeactivated    = "account_deactivated"
	EventReactivationRequested = "reactivation_requested"
	EventReactivationApproved  = "reactivation_approved"
	EventReactivationRejected  = "reactivation_rejected"
)

// Service drives the account lifecycle state machine over a Store.
type Service struct {
	store            Store
	nowFn            func() time.Time
	gracePeriod      time.Duration
	sweepBatchSize   int
	conflictAttempts int
	logger           TransitionLogger
	publisher        events.Publisher
	sessions         SessionInvalidator
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ledger.ErrInvalidServiceConfig)
	}
	service := &Service{
		store:            store,
		nowFn:            now,
		gracePeriod:      DefaultGracePeriod,
		sweepBatchSize:   defaultSweepBatchSize,
		conflictAttempts: ledger.DefaultConflictAttempts,
		publisher:        events.Discard,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.gracePeriod <= 0 {
		return nil, fmt.Errorf("%w: grace period must be positive", ledger.ErrInvalidServiceConfig)
	}
	if service.sweepBatchSize <= 0 {
		return nil, fmt.Errorf("%w: sweep batch size must be positive", ledger.ErrInvalidServiceConfig)
	}
	if service.conflictAttempts < 1 {
		return nil, fmt.Errorf("%w: conflict attempts must be positive", ledger.ErrInvalidServiceConfig)
	}
	return service, nil
}

// RegisterUser creates or refreshes the lifecycle record and email snapshot source.
func (service *Service) RegisterUser(ctx context.Context, userID ledger.UserID, email string) error {
	return service.store.UpsertUser(ctx, userID, strings.TrimSpace(email))
}

// Status returns the lifecycle view of a user, including a pending request if any.
func (service *Service) Status(ctx context.Context, userID ledger.UserID) (StatusView, error) {
	status, err := service.store.GetStatus(ctx, userID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Status: status, State: status.State()}
	pending, err := service.store.GetPendingReactivationRequest(ctx, userID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return StatusView{}, err
	}
	if err == nil {
		view.PendingRequest = &pending
	}
	return view, nil
}

// RequestDeactivation schedules the actor's own account for deactivation after the
// grace period. Session invalidation follows the commit and never undoes it.
func (service *Service) RequestDeactivation(ctx context.Context, actor ledger.Actor) (AccountStatus, error) {
	userID := actor.UserID
	var updated AccountStatus
	err := service.inTx(ctx, func(ctx context.Context, transactionStore Store) error {
		status, err := transactionStore.GetStatus(ctx, userID)
		if err != nil {
			return err
		}
		if status.State() != StateActive {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, status.State(), StatePendingDeactivation)
		}
		requestedAt := service.now()
		scheduledAt := requestedAt.Add(service.gracePeriod)
		if err := transactionStore.ScheduleDeactivation(ctx, userID, requestedAt, scheduledAt); err != nil {
			return err
		}
		status.DeactivationRequestedAt = &requestedAt
		status.DeactivationScheduledAt = &scheduledAt
		updated = status
		return nil
	})
	service.logTransition(ctx, TransitionLog{
		Transition: transitionRequestDeactivation,
		UserID:     userID,
		ActorID:    userID,
		From:       StateActive,
		To:         StatePendingDeactivation,
		Error:      err,
	})
	if err != nil {
		return AccountStatus{}, err
	}
	service.invalidateSessions(ctx, userID)
	service.publish(ctx, EventDeactivationRequested, userID, map[string]string{
		"scheduled_at": updated.DeactivationScheduledAt.Format(time.RFC3339),
	})
	return updated, nil
}

// CancelDeactivation lets an admin clear a pending deactivation.
func (service *Service) CancelDeactivation(ctx context.Context, admin ledger.Actor, userID ledger.UserID) (AccountStatus, error) {
	var updated AccountStatus
	err := requireAdmin(admin)
	if err == nil {
		err = service.inTx(ctx, func(ctx context.Context, transactionStore Store) error {
			status, err := transactionStore.GetStatus(ctx, userID)
			if err != nil {
				return err
			}
			if status.State() != StatePendingDeactivation {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, status.State(), StateActive)
			}
			if err := transactionStore.ClearScheduledDeactivation(ctx, userID); err != nil {
				return err
			}
			status.DeactivationRequestedAt = nil
			status.DeactivationScheduledAt = nil
			updated = status
			return nil
		})
	}
	service.logTransition(ctx, TransitionLog{
		Transition: transitionCancelDeactivation,
		UserID:     userID,
		ActorID:    admin.UserID,
		From:       StatePendingDeactivation,
		To:         StateActive,
		Error:      err,
	})
	if err != nil {
		return AccountStatus{}, err
	}
	service.publish(ctx, EventDeactivationCancelled, userID, map[string]string{"admin_id": admin.UserID.String()})
	return updated, nil
}

// SweepDeactivations deactivates every user whose grace period has elapsed. Running it
// again, or after a cancellation cleared the schedule, changes nothing.
func (service *Service) SweepDeactivations(ctx context.Context) (SweepResult, error) {
	now := service.now()
	result := SweepResult{Deactivated: make([]ledger.UserID, 0)}
	for {
		due, err := service.store.ListDueDeactivations(ctx, now, service.sweepBatchSize)
		if err != nil {
			return result, err
		}
		progressed := false
		for _, userID := range due {
			var finalized bool
			err := ledger.RetryOnConflict(ctx, service.conflictAttempts, func(ctx context.Context) error {
				var finalizeErr error
				finalized, finalizeErr = service.store.FinalizeDeactivation(ctx, userID, now)
				return finalizeErr
			})
			service.logTransition(ctx, TransitionLog{
				Transition: transitionSweepDeactivation,
				UserID:     userID,
				From:       StatePendingDeactivation,
				To:         StateDeactivated,
				Error:      err,
			})
			if err != nil {
				return result, err
			}
			if !finalized {
				continue
			}
			progressed = true
			result.Deactivated = append(result.Deactivated, userID)
			service.publish(ctx, EventAccountDeactivated, userID, nil)
		}
		if len(due) < service.sweepBatchSize || !progressed {
			return result, nil
		}
	}
}

// RequestReactivation files a pending reactivation request for a deactivated actor.
func (service *Service) RequestReactivation(ctx context.Context, actor ledger.Actor, reason string) (ReactivationRequest, error) {
	userID := actor.UserID
	var created ReactivationRequest
	normalizedReason, err := NormalizeFreeText(reason)
	if err == nil {
		err = service.inTx(ctx, func(ctx context.Context, transactionStore Store) error {
			status, err := transactionStore.GetStatus(ctx, userID)
			if err != nil {
				return err
			}
			if !status.IsDeactivated {
				return fmt.Errorf("%w: account is %s", ErrInvalidStateTransition, status.State())
			}
			_, err = transactionStore.GetPendingReactivationRequest(ctx, userID)
			if err == nil {
				return ErrAlreadyPendingRequest
			}
			if !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			created, err = transactionStore.CreateReactivationRequest(ctx, ReactivationRequest{
				UserID:    userID,
				Email:     status.Email,
				Reason:    normalizedReason,
				Status:    RequestPending,
				CreatedAt: service.now(),
			})
			return err
		})
	}
	service.logTransition(ctx, TransitionLog{
		Transition: transitionRequestReactivation,
		UserID:     userID,
		ActorID:    userID,
		RequestID:  created.RequestID,
		From:       StateDeactivated,
		To:         StateDeactivated,
		Error:      err,
	})
	if err != nil {
		return ReactivationRequest{}, err
	}
	service.publish(ctx, EventReactivationRequested, userID, map[string]string{"request_id": created.RequestID})
	return created, nil
}

// ApproveReactivation resolves a pending request and restores the account to active.
func (service *Service) ApproveReactivation(ctx context.Context, admin ledger.Actor, requestID string, notes string) (ReactivationRequest, error) {
	resolved, err := service.review(ctx, admin, requestID, RequestApproved, notes)
	service.logTransition(ctx, TransitionLog{
		Transition: transitionApproveReactivation,
		UserID:     resolved.UserID,
		ActorID:    admin.UserID,
		RequestID:  requestID,
		From:       StateDeactivated,
		To:         StateActive,
		Error:      err,
	})
	if err != nil {
		return ReactivationRequest{}, err
	}
	service.publish(ctx, EventReactivationApproved, resolved.UserID, map[string]string{"request_id": resolved.RequestID})
	return resolved, nil
}

// RejectReactivation resolves a pending request as rejected; notes are mandatory.
func (service *Service) RejectReactivation(ctx context.Context, admin ledger.Actor, requestID string, notes string) (ReactivationRequest, error) {
	resolved, err := service.review(ctx, admin, requestID, RequestRejected, notes)
	service.logTransition(ctx, TransitionLog{
		Transition: transitionRejectReactivation,
		UserID:     resolved.UserID,
		ActorID:    admin.UserID,
		RequestID:  requestID,
		From:       StateDeactivated,
		To:         StateDeactivated,
		Error:      err,
	})
	if err != nil {
		return ReactivationRequest{}, err
	}
	service.publish(ctx, EventReactivationRejected, resolved.UserID, map[string]string{"request_id": resolved.RequestID})
	return resolved, nil
}

// ListReactivationRequests is the admin listing of pending and processed requests.
func (service *Service) ListReactivationRequests(ctx context.Context, admin ledger.Actor, filter RequestFilter) ([]ReactivationRequest, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	limit, err := ledger.NormalizeListLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return service.store.ListReactivationRequests(ctx, filter)
}

func (service *Service) review(ctx context.Context, admin ledger.Actor, requestID string, decision RequestStatus, notes string) (ReactivationRequest, error) {
	if err := requireAdmin(admin); err != nil {
		return ReactivationRequest{}, err
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ReactivationRequest{}, fmt.Errorf("%w: empty value", ErrInvalidRequestID)
	}
	normalizedNotes, err := NormalizeFreeText(notes)
	if err != nil {
		return ReactivationRequest{}, err
	}
	if decision == RequestRejected && normalizedNotes == "" {
		return ReactivationRequest{}, fmt.Errorf("%w: rejection requires notes", ErrInvalidNotes)
	}
	var resolved ReactivationRequest
	err = service.inTx(ctx, func(ctx context.Context, transactionStore Store) error {
		request, err := transactionStore.GetReactivationRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != RequestPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidStateTransition, request.Status)
		}
		resolved, err = transactionStore.ResolveReactivationRequest(ctx, requestID, Review{
			Status:     decision,
			ReviewedBy: admin.UserID,
			ReviewedAt: service.now(),
			AdminNotes: normalizedNotes,
		})
		if err != nil {
			return err
		}
		if decision == RequestApproved {
			return transactionStore.Reactivate(ctx, request.UserID)
		}
		return nil
	})
	return resolved, err
}

func (service *Service) inTx(ctx context.Context, fn func(ctx context.Context, transactionStore Store) error) error {
	return ledger.RetryOnConflict(ctx, service.conflictAttempts, func(ctx context.Context) error {
		return service.store.WithTx(ctx, fn)
	})
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC().Truncate(time.Second)
}

func (service *Service) invalidateSessions(ctx context.Context, userID ledger.UserID) {
	if service.sessions == nil {
		return
	}
	if err := service.sessions.InvalidateSessions(ctx, userID); err != nil {
		service.logTransition(ctx, TransitionLog{
			Transition: transitionInvalidateSessions,
			UserID:     userID,
			Error:      err,
		})
	}
}

func (service *Service) logTransition(ctx context.Context, entry TransitionLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = transitionStatusError
		} else {
			entry.Status = transitionStatusOK
		}
	}
	service.logger.LogTransition(ctx, entry)
}

func (service *Service) publish(ctx context.Context, eventType string, userID ledger.UserID, attributes map[string]string) {
	service.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		UserID:     userID.String(),
		Attributes: attributes,
		OccurredAt: service.now(),
	})
}

func requireAdmin(actor ledger.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ledger.ErrForbidden)
	}
	return nil
}
