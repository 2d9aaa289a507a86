package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/internal/ledger"
	"github.com/davidahmann/licensetriage/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := ledger.Migrate(s.DB(), ledger.DBSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func testSigner(t *testing.T) crypto.Signer {
	t.Helper()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv, _, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	return crypto.Signer{ID: "kid", Priv: priv}
}

func sealed(t *testing.T, signer crypto.Signer, id, app, ts string, supersedes *string) ledger.AuditEntry {
	t.Helper()
	entry, err := ledger.SealAuditRecord(types.AuditRecord{
		DecisionID:      id,
		Timestamp:       ts,
		ApplicationID:   app,
		Model:           "scripted",
		TemplateName:    "final_recommendation",
		PromptVersion:   "v2.1",
		DecisionFactors: []string{"policy:moderate_band"},
		Disposition:     types.DispositionStaffReview,
		ComplianceCheck: "passed",
		Supersedes:      supersedes,
	}, signer)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	return entry
}

func TestStoreAuditEntries(t *testing.T) {
	s := openTestStore(t)
	signer := testSigner(t)

	if err := s.PutKey(ledger.KeyRecord{KeyID: "kid", PublicKey: signer.PublicKey(), CreatedAt: "2024-06-01T00:00:00Z"}); err != nil {
		t.Fatalf("put key: %v", err)
	}

	first := sealed(t, signer, "d1", "APP-1", "2024-06-01T00:00:01Z", nil)
	if err := s.PutAuditEntry(first); err != nil {
		t.Fatalf("put entry: %v", err)
	}
	if err := s.PutAuditEntry(first); !errors.Is(err, ledger.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	orig := "d1"
	correction := sealed(t, signer, "d2", "APP-1", "2024-06-01T00:00:02Z", &orig)
	if err := s.PutAuditEntry(correction); err != nil {
		t.Fatalf("put correction: %v", err)
	}

	got, ok := s.GetAuditEntry("d1")
	if !ok || string(got.BodyJSON) != string(first.BodyJSON) || got.Supersedes != nil {
		t.Fatalf("get entry mismatch: ok=%v got=%+v", ok, got)
	}
	if _, _, err := ledger.VerifyStored(s, "d2"); err != nil {
		t.Fatalf("verify stored: %v", err)
	}

	list, err := s.ListByApplication("APP-1")
	if err != nil || len(list) != 2 || list[0].DecisionID != "d1" || list[1].DecisionID != "d2" {
		t.Fatalf("list by application mismatch: err=%v list=%+v", err, list)
	}
	corrections, err := s.ListCorrections("d1")
	if err != nil || len(corrections) != 1 || corrections[0].DecisionID != "d2" {
		t.Fatalf("list corrections mismatch: err=%v list=%+v", err, corrections)
	}
}

func TestStoreRejectsMutation(t *testing.T) {
	s := openTestStore(t)
	signer := testSigner(t)
	if err := s.PutKey(ledger.KeyRecord{KeyID: "kid", PublicKey: signer.PublicKey(), CreatedAt: "2024-06-01T00:00:00Z"}); err != nil {
		t.Fatalf("put key: %v", err)
	}
	if err := s.PutAuditEntry(sealed(t, signer, "d1", "APP-1", "2024-06-01T00:00:01Z", nil)); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	if _, err := s.DB().Exec(`UPDATE audit_records SET disposition = 'automated_approve' WHERE decision_id = 'd1'`); err == nil {
		t.Fatalf("expected update to be rejected")
	}
	if _, err := s.DB().Exec(`DELETE FROM audit_records WHERE decision_id = 'd1'`); err == nil {
		t.Fatalf("expected delete to be rejected")
	}
}

func TestStoreConfigAndOutbox(t *testing.T) {
	s := openTestStore(t)
	signer := testSigner(t)

	cfg := ledger.ConfigVersionRecord{
		ConfigDigest:  "sha256:cfg",
		TemplatesHash: "sha256:t",
		TemplatesYAML: "templates: []\n",
		PolicyHash:    "sha256:p",
		PolicyYAML:    "policy_id: x\n",
		Model:         "scripted",
		SettingsJSON:  `{"budget":{"max_tokens":6000}}`,
		CreatedAt:     "2024-06-01T00:00:00Z",
	}
	if err := s.PutConfigVersion(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	if err := s.PutConfigVersion(cfg); err != nil {
		t.Fatalf("repeat config should be ignored: %v", err)
	}
	if got, ok := s.GetConfigVersion("sha256:cfg"); !ok || got.PolicyYAML != cfg.PolicyYAML || got.SettingsJSON != cfg.SettingsJSON {
		t.Fatalf("get config mismatch: ok=%v got=%+v", ok, got)
	}

	if err := s.PutKey(ledger.KeyRecord{KeyID: "kid", PublicKey: signer.PublicKey(), CreatedAt: "2024-06-01T00:00:00Z"}); err != nil {
		t.Fatalf("put key: %v", err)
	}
	if err := s.PutAuditEntry(sealed(t, signer, "d1", "APP-1", "2024-06-01T00:00:01Z", nil)); err != nil {
		t.Fatalf("put entry: %v", err)
	}

	rec := ledger.ReviewOutboxRecord{
		NotificationID: "n1",
		DecisionID:     "d1",
		Disposition:    "staff_review",
		MessageJSON:    []byte(`{"decision_id":"d1"}`),
		Status:         ledger.OutboxPending,
		NextAttemptAt:  "2024-06-01T00:00:00Z",
		CreatedAt:      "2024-06-01T00:00:00Z",
		UpdatedAt:      "2024-06-01T00:00:00Z",
	}
	if err := s.PutReviewOutbox(rec); err != nil {
		t.Fatalf("put outbox: %v", err)
	}
	due, err := s.ListReviewOutboxDue("2024-06-01T00:00:01Z", 10)
	if err != nil || len(due) != 1 {
		t.Fatalf("list due mismatch: err=%v due=%+v", err, due)
	}

	sentAt := "2024-06-01T00:00:02Z"
	rec.Status = ledger.OutboxSent
	rec.SentAt = &sentAt
	rec.AttemptCount = 1
	if err := s.PutReviewOutbox(rec); err != nil {
		t.Fatalf("update outbox: %v", err)
	}
	got, ok := s.GetReviewOutbox("n1")
	if !ok || got.Status != ledger.OutboxSent || got.SentAt == nil || got.AttemptCount != 1 {
		t.Fatalf("get outbox mismatch: ok=%v got=%+v", ok, got)
	}
	due, err = s.ListReviewOutboxDue("2024-06-02T00:00:00Z", 10)
	if err != nil || len(due) != 0 {
		t.Fatalf("sent record should not be due: err=%v due=%+v", err, due)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := openTestStore(t)
	err := s.WithTx(func(tx ledger.Tx) error {
		if err := tx.PutKey(ledger.KeyRecord{KeyID: "kid", PublicKey: []byte("pub"), CreatedAt: "2024-06-01T00:00:00Z"}); err != nil {
			return err
		}
		if _, ok := tx.GetKey("kid"); !ok {
			t.Fatalf("key not visible inside tx")
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, ok := s.GetKey("kid"); ok {
		t.Fatalf("rolled back key still visible")
	}
}
