package ledger

import "errors"

var (
	// ErrDuplicate is returned when an audit record id is already stored.
	ErrDuplicate = errors.New("ledger: audit record already exists")
	ErrNotFound  = errors.New("ledger: audit record not found")
)

type Store interface {
	WithTx(fn func(Tx) error) error

	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)

	PutConfigVersion(cfg ConfigVersionRecord) error
	GetConfigVersion(configDigest string) (ConfigVersionRecord, bool)

	PutAuditEntry(entry AuditEntry) error
	GetAuditEntry(decisionID string) (AuditEntry, bool)
	ListByApplication(applicationID string) ([]AuditEntry, error)
	ListCorrections(decisionID string) ([]AuditEntry, error)

	PutReviewOutbox(rec ReviewOutboxRecord) error
	GetReviewOutbox(notificationID string) (ReviewOutboxRecord, bool)
	ListReviewOutboxDue(now string, limit int) ([]ReviewOutboxRecord, error)
}

type Tx interface {
	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)

	PutConfigVersion(cfg ConfigVersionRecord) error
	GetConfigVersion(configDigest string) (ConfigVersionRecord, bool)

	PutAuditEntry(entry AuditEntry) error
	GetAuditEntry(decisionID string) (AuditEntry, bool)

	PutReviewOutbox(rec ReviewOutboxRecord) error
	GetReviewOutbox(notificationID string) (ReviewOutboxRecord, bool)
}

type KeyRecord struct {
	KeyID     string
	PublicKey []byte
	CreatedAt string
	RotatedAt *string
}

// ConfigVersionRecord snapshots the templates, policy and decision settings
// a record was made under, keyed by the config digest stamped on the audit
// record. SettingsJSON is the canonical document the digest hashes.
type ConfigVersionRecord struct {
	ConfigDigest  string
	TemplatesHash string
	TemplatesYAML string
	PolicyHash    string
	PolicyYAML    string
	Model         string
	SettingsJSON  string
	CreatedAt     string
}

// AuditEntry is a sealed audit record: canonical body plus signature and the
// columns the stores index on.
type AuditEntry struct {
	DecisionID    string
	ApplicationID string
	CreatedAt     string
	Disposition   string
	Supersedes    *string
	ConfigDigest  string
	BodyJSON      []byte
	BodyDigest    string
	KeyID         string
	Sig           []byte
}

type ReviewOutboxRecord struct {
	NotificationID string
	DecisionID     string
	Disposition    string
	MessageJSON    []byte
	Status         string // pending | sent
	AttemptCount   int
	NextAttemptAt  string
	LastError      *string
	SentAt         *string
	CreatedAt      string
	UpdatedAt      string
}
