package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/davidahmann/licensetriage/internal/ledger"
)

var errInvalidJSON = errors.New("pgstore: invalid json payload")

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutKey(key ledger.KeyRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutKey(key) })
}

func (s *Store) GetKey(keyID string) (ledger.KeyRecord, bool) {
	return getKey(s.db, keyID)
}

func (s *Store) PutConfigVersion(cfg ledger.ConfigVersionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutConfigVersion(cfg) })
}

func (s *Store) GetConfigVersion(configDigest string) (ledger.ConfigVersionRecord, bool) {
	return getConfigVersion(s.db, configDigest)
}

func (s *Store) PutAuditEntry(entry ledger.AuditEntry) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutAuditEntry(entry) })
}

func (s *Store) GetAuditEntry(decisionID string) (ledger.AuditEntry, bool) {
	return getAuditEntry(s.db, decisionID)
}

func (s *Store) ListByApplication(applicationID string) ([]ledger.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT `+auditColumns+`
FROM triage_audit_records WHERE application_id = $1 ORDER BY created_at ASC, decision_id ASC`, applicationID)
	if err != nil {
		return nil, err
	}
	return scanAuditEntries(rows)
}

func (s *Store) ListCorrections(decisionID string) ([]ledger.AuditEntry, error) {
	rows, err := s.db.Query(`SELECT `+auditColumns+`
FROM triage_audit_records WHERE supersedes = $1 ORDER BY created_at ASC, decision_id ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	return scanAuditEntries(rows)
}

func (s *Store) PutReviewOutbox(rec ledger.ReviewOutboxRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutReviewOutbox(rec) })
}

func (s *Store) GetReviewOutbox(notificationID string) (ledger.ReviewOutboxRecord, bool) {
	return getReviewOutbox(s.db, notificationID)
}

func (s *Store) ListReviewOutboxDue(now string, limit int) ([]ledger.ReviewOutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`SELECT `+outboxColumns+`
FROM triage_review_outbox
WHERE status = 'pending' AND next_attempt_at <= $1::timestamptz
ORDER BY created_at ASC, notification_id ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ledger.ReviewOutboxRecord{}
	for rows.Next() {
		rec, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutKey(key ledger.KeyRecord) error {
	_, err := t.tx.Exec(`INSERT INTO triage_keys(key_id, public_key, created_at, rotated_at)
VALUES($1,$2,$3::timestamptz,$4::timestamptz)
ON CONFLICT(key_id) DO NOTHING`,
		key.KeyID, key.PublicKey, key.CreatedAt, key.RotatedAt,
	)
	return err
}

func (t *Tx) GetKey(keyID string) (ledger.KeyRecord, bool) {
	return getKey(t.tx, keyID)
}

func (t *Tx) PutConfigVersion(cfg ledger.ConfigVersionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO triage_config_versions(config_digest, templates_hash, templates_yaml, policy_hash, policy_yaml, model, settings_json, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::timestamptz)
ON CONFLICT(config_digest) DO NOTHING`,
		cfg.ConfigDigest, cfg.TemplatesHash, cfg.TemplatesYAML, cfg.PolicyHash, cfg.PolicyYAML, cfg.Model, cfg.SettingsJSON, cfg.CreatedAt,
	)
	return err
}

func (t *Tx) GetConfigVersion(configDigest string) (ledger.ConfigVersionRecord, bool) {
	return getConfigVersion(t.tx, configDigest)
}

func (t *Tx) PutAuditEntry(entry ledger.AuditEntry) error {
	if entry.DecisionID == "" {
		return fmt.Errorf("missing decision_id")
	}
	if !json.Valid(entry.BodyJSON) {
		return fmt.Errorf("%w: audit body %s", errInvalidJSON, entry.DecisionID)
	}
	res, err := t.tx.Exec(`INSERT INTO triage_audit_records(decision_id, application_id, created_at, disposition, supersedes, config_digest, body_json, body_digest, key_id, sig)
VALUES($1,$2,$3::timestamptz,$4,$5,$6,$7::jsonb,$8,$9,$10)
ON CONFLICT(decision_id) DO NOTHING`,
		entry.DecisionID,
		entry.ApplicationID,
		entry.CreatedAt,
		entry.Disposition,
		entry.Supersedes,
		entry.ConfigDigest,
		string(entry.BodyJSON),
		entry.BodyDigest,
		entry.KeyID,
		entry.Sig,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicate, entry.DecisionID)
	}
	return nil
}

func (t *Tx) GetAuditEntry(decisionID string) (ledger.AuditEntry, bool) {
	return getAuditEntry(t.tx, decisionID)
}

func (t *Tx) PutReviewOutbox(rec ledger.ReviewOutboxRecord) error {
	if !json.Valid(rec.MessageJSON) {
		return fmt.Errorf("%w: review message %s", errInvalidJSON, rec.NotificationID)
	}
	_, err := t.tx.Exec(`INSERT INTO triage_review_outbox(notification_id, decision_id, disposition, message_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES($1,$2,$3,$4::jsonb,$5,$6,$7::timestamptz,$8,$9::timestamptz,$10::timestamptz,$11::timestamptz)
ON CONFLICT(notification_id) DO UPDATE SET
  status=EXCLUDED.status,
  attempt_count=EXCLUDED.attempt_count,
  next_attempt_at=EXCLUDED.next_attempt_at,
  last_error=EXCLUDED.last_error,
  sent_at=EXCLUDED.sent_at,
  updated_at=EXCLUDED.updated_at`,
		rec.NotificationID,
		rec.DecisionID,
		rec.Disposition,
		string(rec.MessageJSON),
		rec.Status,
		rec.AttemptCount,
		rec.NextAttemptAt,
		rec.LastError,
		rec.SentAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (t *Tx) GetReviewOutbox(notificationID string) (ledger.ReviewOutboxRecord, bool) {
	return getReviewOutbox(t.tx, notificationID)
}

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const auditColumns = `decision_id, application_id, created_at::text, disposition, supersedes, config_digest, body_json::text, body_digest, key_id, sig`

const outboxColumns = `notification_id, decision_id, disposition, message_json::text, status, attempt_count, next_attempt_at::text, last_error, sent_at::text, created_at::text, updated_at::text`

func getKey(q queryer, keyID string) (ledger.KeyRecord, bool) {
	var rec ledger.KeyRecord
	row := q.QueryRow(`SELECT key_id, public_key, created_at::text, rotated_at::text FROM triage_keys WHERE key_id = $1`, keyID)
	if err := row.Scan(&rec.KeyID, &rec.PublicKey, &rec.CreatedAt, &rec.RotatedAt); err != nil {
		return ledger.KeyRecord{}, false
	}
	return rec, true
}

func getConfigVersion(q queryer, configDigest string) (ledger.ConfigVersionRecord, bool) {
	var rec ledger.ConfigVersionRecord
	row := q.QueryRow(`SELECT config_digest, templates_hash, templates_yaml, policy_hash, policy_yaml, model, settings_json, created_at::text
FROM triage_config_versions WHERE config_digest = $1`, configDigest)
	if err := row.Scan(&rec.ConfigDigest, &rec.TemplatesHash, &rec.TemplatesYAML, &rec.PolicyHash, &rec.PolicyYAML, &rec.Model, &rec.SettingsJSON, &rec.CreatedAt); err != nil {
		return ledger.ConfigVersionRecord{}, false
	}
	return rec, true
}

func getAuditEntry(q queryer, decisionID string) (ledger.AuditEntry, bool) {
	row := q.QueryRow(`SELECT `+auditColumns+` FROM triage_audit_records WHERE decision_id = $1`, decisionID)
	entry, err := scanAuditEntry(row)
	if err != nil {
		return ledger.AuditEntry{}, false
	}
	return entry, true
}

func scanAuditEntry(s scanner) (ledger.AuditEntry, error) {
	var rec ledger.AuditEntry
	var body string
	if err := s.Scan(&rec.DecisionID, &rec.ApplicationID, &rec.CreatedAt, &rec.Disposition, &rec.Supersedes, &rec.ConfigDigest, &body, &rec.BodyDigest, &rec.KeyID, &rec.Sig); err != nil {
		return ledger.AuditEntry{}, err
	}
	rec.BodyJSON = []byte(body)
	return rec, nil
}

func scanAuditEntries(rows *sql.Rows) ([]ledger.AuditEntry, error) {
	defer rows.Close()
	out := []ledger.AuditEntry{}
	for rows.Next() {
		rec, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func getReviewOutbox(q queryer, notificationID string) (ledger.ReviewOutboxRecord, bool) {
	row := q.QueryRow(`SELECT `+outboxColumns+` FROM triage_review_outbox WHERE notification_id = $1`, notificationID)
	rec, err := scanOutbox(row)
	if err != nil {
		return ledger.ReviewOutboxRecord{}, false
	}
	return rec, true
}

func scanOutbox(s scanner) (ledger.ReviewOutboxRecord, error) {
	var rec ledger.ReviewOutboxRecord
	var msg string
	if err := s.Scan(&rec.NotificationID, &rec.DecisionID, &rec.Disposition, &msg, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.ReviewOutboxRecord{}, err
	}
	rec.MessageJSON = []byte(msg)
	return rec, nil
}
