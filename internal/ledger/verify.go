package ledger

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/pkg/types"
)

var (
	ErrDigestMismatch = errors.New("ledger: audit body digest mismatch")
	ErrSignature      = errors.New("ledger: audit signature invalid")
	ErrUnknownKey     = errors.New("ledger: signing key not found")
)

// VerifyEntry validates digest consistency and signature.
func VerifyEntry(entry AuditEntry, publicKey ed25519.PublicKey) error {
	digestBytes := crypto.DigestBytes(entry.BodyJSON)
	if entry.BodyDigest != crypto.DigestWithPrefix(entry.BodyJSON) {
		return ErrDigestMismatch
	}

	ok, err := crypto.VerifyEd25519(publicKey, digestBytes, entry.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignature
	}

	rec, err := DecodeAuditRecord(entry)
	if err != nil {
		return err
	}
	if rec.DecisionID != entry.DecisionID || rec.ApplicationID != entry.ApplicationID {
		return ErrDigestMismatch
	}
	return nil
}

// VerifyStored loads an entry and its signing key from store and verifies
// it.
func VerifyStored(store Store, decisionID string) (AuditEntry, types.AuditRecord, error) {
	entry, ok := store.GetAuditEntry(decisionID)
	if !ok {
		return AuditEntry{}, types.AuditRecord{}, fmt.Errorf("%w: %s", ErrNotFound, decisionID)
	}
	key, ok := store.GetKey(entry.KeyID)
	if !ok {
		return entry, types.AuditRecord{}, fmt.Errorf("%w: %s", ErrUnknownKey, entry.KeyID)
	}
	if err := VerifyEntry(entry, ed25519.PublicKey(key.PublicKey)); err != nil {
		return entry, types.AuditRecord{}, err
	}
	rec, err := DecodeAuditRecord(entry)
	return entry, rec, err
}
