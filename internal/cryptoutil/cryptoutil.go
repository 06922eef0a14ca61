// Package cryptoutil wraps the primitives spec.md §1 lists as externally
// supplied: secp256k1 signature verification and the argon2 block hash.
// Both are given concrete implementations here (decred's secp256k1 and
// x/crypto's argon2, respectively) since this repository has no actual
// external boundary to place them behind.
package cryptoutil

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	sha256simd "github.com/minio/sha256-simd"
	"golang.org/x/crypto/argon2"
)

// Sum256 hashes data with SHA-256 using the accelerated minio
// implementation, matching the preimage construction in spec.md §3/§6.
func Sum256(data []byte) [32]byte {
	return sha256simd.Sum256(data)
}

// VerifyDER verifies a DER-encoded secp256k1 signature, hex-decoding
// pubkeyHex and sigHex first. It returns false (never an error) on any
// malformed input, since spec.md treats a bad signature as a validation
// rejection, not a distinct error path.
func VerifyDER(pubkeyHex, sigHex string, digest [32]byte) bool {
	pubBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(digest[:], pub)
}

// SignDER signs digest with the given secp256k1 private key scalar and
// returns the lowercase hex DER encoding used on the wire. Used by tests
// that need to fabricate signed transactions/blocks.
func SignDER(privHex string, digest [32]byte) (string, error) {
	privBytes, err := hex.DecodeString(privHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(privBytes)
	sig := ecdsa.Sign(priv, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// PubKeyHex derives the hex-encoded compressed public key for a secp256k1
// private key scalar, i.e. the wire form of a transaction's "sender".
func PubKeyHex(privHex string) (string, error) {
	privBytes, err := hex.DecodeString(privHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(privBytes)
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// argon2 tuning mirrors conservative interactive-login parameters; block
// hashing is infrequent (once per block) so the extra cost is immaterial
// next to network latency.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// BlockHash returns the lowercase hex argon2 digest of data, used as the
// block's proof-of-work hash (spec.md §3).
func BlockHash(data []byte) string {
	sum := argon2.IDKey(data, nil, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(sum)
}

// BlockHashBytes is BlockHash without the hex round-trip, for callers
// that need the raw bytes (e.g. target comparison).
func BlockHashBytes(data []byte) []byte {
	return argon2.IDKey(data, nil, argonTime, argonMemory, argonThreads, argonKeyLen)
}
