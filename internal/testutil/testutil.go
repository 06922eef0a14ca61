// Package testutil builds signed transactions and mined blocks for tests
// across core/state, core/validator, core/txpool and core/chain, so each
// package's tests don't re-derive the same secp256k1/argon2 fixture
// plumbing.
package testutil

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/internal/cryptoutil"
	"github.com/feelesschain/fullnode/params"
)

// KeyPair is a deterministic secp256k1 keypair for test fixtures.
type KeyPair struct {
	PrivHex string
	PubHex  string
}

// NewKeyPair derives a deterministic keypair from seed, so tests are
// reproducible without needing crypto/rand.
func NewKeyPair(seed byte) KeyPair {
	priv := make([]byte, 32)
	for i := range priv {
		priv[i] = seed + byte(i) + 1
	}
	privHex := hex.EncodeToString(priv)
	pubHex, err := cryptoutil.PubKeyHex(privHex)
	if err != nil {
		panic(err)
	}
	return KeyPair{PrivHex: privHex, PubHex: pubHex}
}

// SignTx fills tx.Sender with kp's public key (unless already set to a
// reserved sender) and sets tx.Signature over tx's signing digest.
func SignTx(tx *types.Transaction, kp KeyPair) {
	tx.Sender = kp.PubHex
	digest, err := tx.SigningDigest()
	if err != nil {
		panic(err)
	}
	sig, err := cryptoutil.SignDER(kp.PrivHex, digest)
	if err != nil {
		panic(err)
	}
	tx.Signature = sig
}

// SignBlock sets block.Proposer to kp's public key and block.Signature
// over the block's signing digest. Call after every other field
// (including Hash) is final.
func SignBlock(block *types.Block, kp KeyPair) {
	block.Proposer = kp.PubHex
	digest, err := block.SigningDigest()
	if err != nil {
		panic(err)
	}
	sig, err := cryptoutil.SignDER(kp.PrivHex, digest)
	if err != nil {
		panic(err)
	}
	block.Signature = sig
}

// Mine searches nonces starting at 0 until block's argon2 hash meets
// target, recomputing Hash on every attempt. Call before SignBlock, since
// the proposer signs over the final Hash. maxAttempts bounds the search;
// with params.StartingDiff's loose genesis target a handful of attempts
// suffice.
func Mine(block *types.Block, target *uint256.Int, maxAttempts uint64) error {
	for n := uint64(0); n < maxAttempts; n++ {
		block.Nonce = n
		hash, err := block.ComputeHash()
		if err != nil {
			return err
		}
		block.Hash = hash
		if params.HashMeetsTarget(block.HashBytes(), target) {
			return nil
		}
	}
	return fmt.Errorf("no nonce under %d attempts met target", maxAttempts)
}

// StartingTarget returns the parsed params.StartingDiff target, the value
// the first real block after genesis is always checked against.
func StartingTarget() *uint256.Int {
	t, err := uint256.FromHex("0x" + params.StartingDiff)
	if err != nil {
		panic(err)
	}
	return t
}
