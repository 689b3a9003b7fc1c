package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

func TestVerifySignatureAcceptsMatchingKey(t *testing.T) {
	w := newTestWallet(t)
	msg := "Sign in to ideaboard\nNonce: abc"
	if !VerifySignature(w.Address, w.Sign(msg), msg) {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifySignatureAcceptsBase64Signature(t *testing.T) {
	w := newTestWallet(t)
	msg := "hello"
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(w.priv, []byte(msg)))
	if !VerifySignature(w.Address, sig, msg) {
		t.Fatal("expected base64 signature to verify")
	}
}

func TestVerifySignatureRejectsBitFlips(t *testing.T) {
	w := newTestWallet(t)
	msg := "login at 2026-01-01T00:00:00Z"
	rawSig := ed25519.Sign(w.priv, []byte(msg))
	rawPub, _ := base58.Decode(w.Address)

	for i := 0; i < len(rawSig)*8; i += 37 {
		flipped := append([]byte(nil), rawSig...)
		flipped[i/8] ^= 1 << (i % 8)
		if VerifySignature(w.Address, base58.Encode(flipped), msg) {
			t.Fatalf("signature with bit %d flipped verified", i)
		}
	}
	for i := 0; i < len(msg)*8; i += 11 {
		flipped := []byte(msg)
		flipped[i/8] ^= 1 << (i % 8)
		if VerifySignature(w.Address, base58.Encode(rawSig), string(flipped)) {
			t.Fatalf("message with bit %d flipped verified", i)
		}
	}
	for i := 0; i < len(rawPub)*8; i += 13 {
		flipped := append([]byte(nil), rawPub...)
		flipped[i/8] ^= 1 << (i % 8)
		if VerifySignature(base58.Encode(flipped), base58.Encode(rawSig), msg) {
			t.Fatalf("key with bit %d flipped verified", i)
		}
	}
}

func TestVerifySignatureFailsClosedOnMalformedInput(t *testing.T) {
	w := newTestWallet(t)
	sig := w.Sign("m")
	cases := []struct{ name, key, sig string }{
		{"empty key", "", sig},
		{"empty signature", w.Address, ""},
		{"non-base58 key", "0OIl+/", sig},
		{"short key", base58.Encode([]byte{1, 2, 3}), sig},
		{"short signature", w.Address, base58.Encode([]byte{1, 2, 3})},
		{"garbage signature", w.Address, "!!!not-a-signature!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(tc.key, tc.sig, "m") {
				t.Fatal("expected malformed input to fail")
			}
		})
	}
}

func TestHashSecretAndCompare(t *testing.T) {
	a := HashSecret("ib_pat_x")
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", a)
	}
	if a != HashSecret("ib_pat_x") {
		t.Fatal("hash must be deterministic")
	}
	if a == HashSecret("ib_pat_y") {
		t.Fatal("different secrets must hash differently")
	}
	if !CompareConstantTime(a, HashSecret("ib_pat_x")) {
		t.Fatal("equal digests should compare equal")
	}
	if CompareConstantTime(a, a[:63]) {
		t.Fatal("length mismatch must be rejected")
	}
	if CompareConstantTime(a, HashSecret("other")) {
		t.Fatal("different digests compared equal")
	}
}
