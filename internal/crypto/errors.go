package crypto

import "errors"

var (
	ErrFloatNotAllowed  = errors.New("crypto: float values are not allowed in canonical json")
	ErrNonStringMapKey  = errors.New("crypto: map keys must be strings")
	ErrUnsupportedType  = errors.New("crypto: unsupported type for canonicalization")
	ErrKeyCollision     = errors.New("crypto: map keys collide after normalization")
	ErrInvalidSeedSize  = errors.New("crypto: invalid ed25519 seed size")
	ErrInvalidDigestLen = errors.New("crypto: invalid digest length")
	ErrEmptyKeyFile     = errors.New("crypto: empty key file")
)
