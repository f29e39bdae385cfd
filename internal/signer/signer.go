package signer

import (
	"fmt"
	"strings"

	"chaintix/internal/status"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// SignatureLength is the expected compact signature size: 32-byte R,
// 32-byte S and a one-byte recovery id.
const SignatureLength = 65

// personalPrefix is the standard signed-message envelope wallets apply
// before hashing, so a purchase intent can never double as a raw
// transaction.
const personalPrefix = "\x19Ethereum Signed Message:\n"

// Keccak256 hashes data with legacy Keccak-256.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// HashMessage returns the digest a wallet signs for message: the
// personal-message prefix, the decimal byte length, then the message.
func HashMessage(message []byte) []byte {
	return Keccak256([]byte(fmt.Sprintf("%s%d%s", personalPrefix, len(message), message)))
}

// AddressOf derives the 0x-prefixed hex address of a public key.
func AddressOf(pub *secp256k1.PublicKey) string {
	digest := Keccak256(pub.SerializeUncompressed()[1:])
	return "0x" + fmt.Sprintf("%x", digest[12:])
}

// RecoverSigner recovers the signing identity from a personal-message
// signature in the [R || S || V] wire layout. V may be 0/1 or 27/28.
func RecoverSigner(message, sig []byte) (string, error) {
	if len(sig) != SignatureLength {
		return "", fmt.Errorf("%w: signature must be %d bytes, got %d",
			status.ErrInvalidSignature, SignatureLength, len(sig))
	}

	v := sig[SignatureLength-1]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return "", fmt.Errorf("%w: recovery id out of range", status.ErrInvalidSignature)
	}

	// RecoverCompact wants the recovery byte first.
	compact := make([]byte, SignatureLength)
	compact[0] = v
	copy(compact[1:], sig[:SignatureLength-1])

	pub, _, err := secpecdsa.RecoverCompact(compact, HashMessage(message))
	if err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrInvalidSignature, err)
	}

	return AddressOf(pub), nil
}

// Authorize reports whether signature over message was produced by
// expected. Mismatch is a normal outcome, not an error: callers turn a
// false into their own domain failure.
func Authorize(expected string, message, sig []byte) bool {
	recovered, err := RecoverSigner(message, sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, expected)
}
