package types

import (
	"encoding/hex"

	"github.com/feelesschain/fullnode/internal/canonjson"
	"github.com/feelesschain/fullnode/internal/cryptoutil"
)

// Block is the wire block, field order matching spec.md §3 exactly.
type Block struct {
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PrevHash     string        `json:"prev_hash"`
	Nonce        uint64        `json:"nonce"`
	Signature    string        `json:"signature"`
	Proposer     string        `json:"proposer"`
	Hash         string        `json:"hash"`
	Diff         string        `json:"diff"`
}

// blankedCopy returns b with Hash and Signature cleared, the shape both
// the proof-of-work hash and the proposer signature are computed over
// (spec.md §3).
func (b Block) blankedCopy() Block {
	b.Hash = ""
	b.Signature = ""
	return b
}

// HashingBytes returns the canonical JSON preimage of the block's
// proof-of-work hash.
func (b *Block) HashingBytes() ([]byte, error) {
	return canonjson.Marshal(b.blankedCopy())
}

// ComputeHash recomputes the block's argon2 hash from its fields,
// independent of the Hash field currently set on b (spec.md §4.4 rule 6).
func (b *Block) ComputeHash() (string, error) {
	data, err := b.HashingBytes()
	if err != nil {
		return "", err
	}
	return cryptoutil.BlockHash(data), nil
}

// SigningDigest returns SHA-256 of the blanked canonical JSON, the value
// the proposer's signature must verify against (spec.md §4.4 rule 8).
func (b *Block) SigningDigest() ([32]byte, error) {
	data, err := b.HashingBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return cryptoutil.Sum256(data), nil
}

// HashBytes decodes Hash into raw bytes for big-endian-integer target
// comparison (spec.md §3 invariants). Returns nil on malformed hex.
func (b *Block) HashBytes() []byte {
	raw, err := hex.DecodeString(b.Hash)
	if err != nil {
		return nil
	}
	return raw
}
