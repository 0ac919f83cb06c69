// Package oplog writes ledger operations and lifecycle transitions to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/ledger"
	"github.com/MarkoPoloResearchLab/franchise-credits/pkg/lifecycle"
	"go.uber.org/zap"
)

const (
	messageOperation  = "ledger operation"
	messageTransition = "lifecycle transition"
)

// Logger implements ledger.OperationLogger and lifecycle.TransitionLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps a zap logger; a nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation implements ledger.OperationLogger.
func (logger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if entry.SubjectID.String() != "" {
		fields = append(fields, zap.String("subject_id", entry.SubjectID.String()))
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", entry.Kind.String()))
	}
	fields = append(fields, zap.Int64("amount", entry.Amount.Int64()), zap.Int64("balance", entry.Balance.Int64()))
	if entry.Error != nil {
		logger.logger.Warn(messageOperation, append(fields, zap.Error(entry.Error))...)
		return
	}
	logger.logger.Info(messageOperation, fields...)
}

// LogTransition implements lifecycle.TransitionLogger.
func (logger *Logger) LogTransition(_ context.Context, entry lifecycle.TransitionLog) {
	fields := []zap.Field{
		zap.String("transition", entry.Transition),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if !entry.ActorID.IsZero() {
		fields = append(fields, zap.String("actor_id", entry.ActorID.String()))
	}
	if entry.RequestID != "" {
		fields = append(fields, zap.String("request_id", entry.RequestID))
	}
	if entry.From != "" {
		fields = append(fields, zap.String("from", string(entry.From)))
	}
	if entry.To != "" {
		fields = append(fields, zap.String("to", string(entry.To)))
	}
	if entry.Error != nil {
		logger.logger.Warn(messageTransition, append(fields, zap.Error(entry.Error))...)
		return
	}
	logger.logger.Info(messageTransition, fields...)
}
