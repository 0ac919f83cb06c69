package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	indexGrantViewerSubject  = "uniq_profile_view_grants_viewer_subject"
	indexReactivationPending = "uniq_reactivation_requests_pending_user"
)

// CreditAccount mirrors the credit_accounts table. Balance caches the sum of the user's
// credit_transactions; Version guards concurrent balance writes.
type CreditAccount struct {
	UserID    string    `gorm:"primaryKey;size:191"`
	Balance   int64     `gorm:"not null;default:0"`
	Version   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (CreditAccount) TableName() string { return "credit_accounts" }

// CreditTransaction mirrors the append-only credit_transactions table.
type CreditTransaction struct {
	TransactionID string         `gorm:"type:uuid;primaryKey"`
	UserID        string         `gorm:"size:191;not null;index:idx_credit_transactions_user_created,priority:1"`
	Amount        int64          `gorm:"not null"`
	Kind          string         `gorm:"size:32;not null"`
	Description   string         `gorm:"size:255;not null;default:''"`
	Metadata      datatypes.JSON `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_credit_transactions_user_created,priority:2"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

func (transaction *CreditTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// ProfileViewGrant mirrors profile_view_grants; the unique index is what makes the
// exactly-once charge hold across processes.
type ProfileViewGrant struct {
	GrantID   string    `gorm:"type:uuid;primaryKey"`
	ViewerID  string    `gorm:"size:191;not null;index:uniq_profile_view_grants_viewer_subject,unique,priority:1"`
	SubjectID string    `gorm:"size:191;not null;index:uniq_profile_view_grants_viewer_subject,unique,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ProfileViewGrant) TableName() string { return "profile_view_grants" }

func (grant *ProfileViewGrant) BeforeCreate(tx *gorm.DB) error {
	if grant.GrantID == "" {
		grant.GrantID = uuid.NewString()
	}
	return nil
}

// User holds the lifecycle fields of the user record.
type User struct {
	UserID                  string     `gorm:"primaryKey;size:191"`
	Email                   string     `gorm:"size:320;not null;default:''"`
	IsDeactivated           bool       `gorm:"not null;default:false;index:idx_users_due_deactivation,priority:1"`
	DeactivationRequestedAt *time.Time `gorm:""`
	DeactivationScheduledAt *time.Time `gorm:"index:idx_users_due_deactivation,priority:2"`
	CreatedAt               time.Time  `gorm:"not null"`
	UpdatedAt               time.Time  `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// ReactivationRequest mirrors reactivation_requests. The partial unique index allows at
// most one pending row per user.
type ReactivationRequest struct {
	RequestID  string     `gorm:"type:uuid;primaryKey"`
	UserID     string     `gorm:"size:191;not null;index;index:uniq_reactivation_requests_pending_user,unique,where:status = 'pending'"`
	Email      string     `gorm:"size:320;not null;default:''"`
	Reason     string     `gorm:"type:text;not null;default:''"`
	Status     string     `gorm:"size:16;not null;index"`
	ReviewedBy *string    `gorm:"size:191"`
	ReviewedAt *time.Time `gorm:""`
	AdminNotes string     `gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time  `gorm:"not null;index"`
	UpdatedAt  time.Time  `gorm:"not null"`
}

func (ReactivationRequest) TableName() string { return "reactivation_requests" }

func (request *ReactivationRequest) BeforeCreate(tx *gorm.DB) error {
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	return nil
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&CreditAccount{},
		&CreditTransaction{},
		&ProfileViewGrant{},
		&User{},
		&ReactivationRequest{},
	}
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
