package ledger

const (
	operationApplyTransaction = "apply_transaction"
	operationUnlockProfile    = "unlock_profile"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// DefaultConflictAttempts bounds automatic retries of StorageConflict failures.
	DefaultConflictAttempts = 5

	// DefaultListLimit and MaxListLimit bound history and listing pages.
	DefaultListLimit = 50
	MaxListLimit     = 200

	reconcilePageSize = 100

	metadataKeySubjectApplicationID = "subject_application_id"
	unlockDescriptionPrefix         = "profile unlock: "

	EventProfileUnlocked = "profile_unlocked"
	EventCreditsAdjusted = "credits_adjusted"
)
