package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/mr-tron/base58"
)

// VerifySignature checks an Ed25519 signature produced by a wallet over message.
// publicKey is the base58 wallet address (32 bytes); signature is base58, or
// standard base64 as emitted by some wallet adapters (64 bytes). Malformed input
// fails closed. The verifier has no replay defense: the message itself must carry a
// freshness marker when replay matters.
func VerifySignature(publicKey, signature, message string) bool {
	pub, ok := DecodePublicKey(publicKey)
	if !ok {
		return false
	}
	sig, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	return ed25519.Verify(pub, []byte(message), sig)
}

// DecodePublicKey decodes a base58 wallet address into an Ed25519 public key.
func DecodePublicKey(address string) (ed25519.PublicKey, bool) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false
	}
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, false
	}
	return ed25519.PublicKey(raw), true
}

// ValidWallet reports whether address decodes to a 32-byte key.
func ValidWallet(address string) bool {
	_, ok := DecodePublicKey(address)
	return ok
}

func decodeSignature(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if raw, err := base58.Decode(s); err == nil && len(raw) == ed25519.SignatureSize {
		return raw, true
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == ed25519.SignatureSize {
		return raw, true
	}
	return nil, false
}
