package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadEd25519PrivateKey reads an audit signing key. The file may hold a raw
// 32-byte seed or 64-byte key, or either one encoded as hex or base64, with
// an optional "hex:" / "base64:" prefix.
func LoadEd25519PrivateKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := decodeKeyBytes(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}

	switch len(data) {
	case ed25519.SeedSize:
		return KeyPairFromSeed(data)
	case ed25519.PrivateKeySize:
		priv := ed25519.PrivateKey(data)
		return priv, priv.Public().(ed25519.PublicKey), nil
	default:
		return nil, nil, fmt.Errorf("unsupported private key length: %d", len(data))
	}
}

func decodeKeyBytes(raw []byte) ([]byte, error) {
	if len(raw) == ed25519.SeedSize || len(raw) == ed25519.PrivateKeySize {
		return raw, nil
	}
	text := strings.TrimSpace(string(raw))
	switch {
	case text == "":
		return nil, ErrEmptyKeyFile
	case strings.HasPrefix(text, "hex:"):
		return hex.DecodeString(strings.TrimPrefix(text, "hex:"))
	case strings.HasPrefix(text, "base64:"):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(text, "base64:"))
	}

	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, decode := range decoders {
		if out, err := decode(text); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}
