package crypto

import (
	"bytes"
	"testing"
)

func TestDigestAndSignVerify(t *testing.T) {
	digest := DigestBytes([]byte("audit body"))

	priv, pub, err := KeyPairFromSeed(bytes.Repeat([]byte{0x01}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	sig, err := SignEd25519(priv, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := VerifyEd25519(pub, digest, sig)
	if err != nil || !ok {
		t.Fatalf("expected signature to verify: ok=%v err=%v", ok, err)
	}

	ok, err = VerifyEd25519(pub, DigestBytes([]byte("other")), sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected signature to fail for different digest")
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	digest := DigestString("context text")
	raw, err := ParseDigest(digest)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !bytes.Equal(raw, DigestBytes([]byte("context text"))) {
		t.Fatalf("digest bytes mismatch")
	}
	if _, err := ParseDigest("sha256:abcd"); err != ErrInvalidDigestLen {
		t.Fatalf("expected ErrInvalidDigestLen, got %v", err)
	}
}

func TestSignerUsesKey(t *testing.T) {
	priv, pub, err := KeyPairFromSeed(bytes.Repeat([]byte{0x02}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	signer := Signer{ID: "audit-1", Priv: priv}
	if signer.KeyID() != "audit-1" {
		t.Fatalf("unexpected key id %s", signer.KeyID())
	}
	if !bytes.Equal(signer.PublicKey(), pub) {
		t.Fatalf("public key mismatch")
	}

	if _, err := signer.SignEd25519([]byte{0x01}); err != ErrInvalidDigestLen {
		t.Fatalf("expected ErrInvalidDigestLen, got %v", err)
	}
}

func TestKeyPairFromSeedInvalidSize(t *testing.T) {
	if _, _, err := KeyPairFromSeed([]byte{0x01}); err != ErrInvalidSeedSize {
		t.Fatalf("expected ErrInvalidSeedSize, got %v", err)
	}
}
