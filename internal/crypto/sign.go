package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const digestPrefix = "sha256:"

// DigestBytes returns the raw SHA-256 digest of data.
func DigestBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DigestWithPrefix returns "sha256:<hex>" for data.
func DigestWithPrefix(data []byte) string {
	return digestPrefix + hex.EncodeToString(DigestBytes(data))
}

// DigestString is DigestWithPrefix over a string.
func DigestString(s string) string {
	return DigestWithPrefix([]byte(s))
}

// ParseDigest strips the prefix and decodes the hex digest.
func ParseDigest(digest string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(digest, digestPrefix))
	if err != nil {
		return nil, err
	}
	if len(raw) != sha256.Size {
		return nil, ErrInvalidDigestLen
	}
	return raw, nil
}

func SignEd25519(privateKey ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, ErrInvalidDigestLen
	}
	return ed25519.Sign(privateKey, digest), nil
}

func VerifyEd25519(publicKey ed25519.PublicKey, digest, sig []byte) (bool, error) {
	if len(digest) != sha256.Size {
		return false, ErrInvalidDigestLen
	}
	return ed25519.Verify(publicKey, digest, sig), nil
}
