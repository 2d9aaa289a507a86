package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/pkg/types"
)

var ErrInvalidRecord = errors.New("ledger: invalid audit record")

type Signer interface {
	KeyID() string
	SignEd25519(message []byte) ([]byte, error)
}

// SealAuditRecord canonicalizes + hashes + signs an audit record.
func SealAuditRecord(rec types.AuditRecord, signer Signer) (AuditEntry, error) {
	if err := checkRecord(rec); err != nil {
		return AuditEntry{}, err
	}

	body, err := recordBody(rec)
	if err != nil {
		return AuditEntry{}, err
	}
	canonical, err := crypto.Canonicalize(body)
	if err != nil {
		return AuditEntry{}, err
	}

	sig, err := signer.SignEd25519(crypto.DigestBytes(canonical))
	if err != nil {
		return AuditEntry{}, err
	}

	return AuditEntry{
		DecisionID:    rec.DecisionID,
		ApplicationID: rec.ApplicationID,
		CreatedAt:     rec.Timestamp,
		Disposition:   string(rec.Disposition),
		Supersedes:    rec.Supersedes,
		ConfigDigest:  rec.ConfigDigest,
		BodyJSON:      canonical,
		BodyDigest:    crypto.DigestWithPrefix(canonical),
		KeyID:         signer.KeyID(),
		Sig:           sig,
	}, nil
}

// DecodeAuditRecord reads the record back out of a sealed entry.
func DecodeAuditRecord(entry AuditEntry) (types.AuditRecord, error) {
	var rec types.AuditRecord
	if err := json.Unmarshal(entry.BodyJSON, &rec); err != nil {
		return types.AuditRecord{}, fmt.Errorf("decode audit body %s: %w", entry.DecisionID, err)
	}
	if rec.DecisionFactors == nil {
		rec.DecisionFactors = []string{}
	}
	return rec, nil
}

func checkRecord(rec types.AuditRecord) error {
	switch {
	case rec.DecisionID == "":
		return fmt.Errorf("%w: missing decision_id", ErrInvalidRecord)
	case rec.ApplicationID == "":
		return fmt.Errorf("%w: missing application_id", ErrInvalidRecord)
	case rec.Timestamp == "":
		return fmt.Errorf("%w: missing timestamp", ErrInvalidRecord)
	case !rec.Disposition.Valid():
		return fmt.Errorf("%w: invalid disposition %q", ErrInvalidRecord, rec.Disposition)
	case rec.Supersedes != nil && *rec.Supersedes == rec.DecisionID:
		return fmt.Errorf("%w: record supersedes itself", ErrInvalidRecord)
	}
	return nil
}

// recordBody is the JSON wire shape of rec as a generic map, numbers kept
// as json.Number so canonicalization sees integers.
func recordBody(rec types.AuditRecord) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}
