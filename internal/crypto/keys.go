package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
)

// KeyPairFromSeed derives an Ed25519 keypair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// EphemeralKeyPair returns a random keypair for dev runs without a key file.
func EphemeralKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}
	return KeyPairFromSeed(seed)
}

// Signer signs audit digests with a fixed key.
type Signer struct {
	ID   string
	Priv ed25519.PrivateKey
}

func (s Signer) KeyID() string {
	return s.ID
}

func (s Signer) SignEd25519(digest []byte) ([]byte, error) {
	return SignEd25519(s.Priv, digest)
}

func (s Signer) PublicKey() ed25519.PublicKey {
	return s.Priv.Public().(ed25519.PublicKey)
}
