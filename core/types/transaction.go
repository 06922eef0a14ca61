// Package types defines the wire data model of spec.md §3: Transaction,
// Block and the mint registry entry, plus the canonical hash/signature
// preimages spec.md §6 requires.
package types

import (
	"github.com/feelesschain/fullnode/internal/canonjson"
	"github.com/feelesschain/fullnode/internal/cryptoutil"
)

// Reserved sender/receiver sentinel strings (spec.md §3).
const (
	SenderNetworkString = "network"
	SenderMintString    = "mint"
)

// SenderKind discriminates the Sender variant spec.md §9 design note 5
// calls for: bare strings on the wire, an explicit variant internally.
type SenderKind uint8

const (
	SenderAddress SenderKind = iota
	SenderNetwork
	SenderMint
)

// ClassifySender maps a wire sender/receiver string onto its SenderKind.
func ClassifySender(s string) SenderKind {
	switch s {
	case SenderNetworkString:
		return SenderNetwork
	case SenderMintString:
		return SenderMint
	default:
		return SenderAddress
	}
}

// Mint describes a new token being registered by a transaction (spec.md
// §3). MiningReward is optional; nil means the token is not minable.
type Mint struct {
	Token        string  `json:"token"`
	Airdrop      uint64  `json:"airdrop"`
	MiningReward *uint64 `json:"miningReward,omitempty"`
}

// Minable reports whether the mint carries a positive mining reward
// (spec.md §3 "Mint registry").
func (m *Mint) Minable() bool {
	return m != nil && m.MiningReward != nil && *m.MiningReward > 0
}

// Transaction is the wire transaction, field order matching spec.md §3
// exactly — this order is load-bearing for the canonical JSON hash and
// signature preimages.
type Transaction struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Amount    uint64 `json:"amount"`
	Signature string `json:"signature"`
	Nonce     uint64 `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Token     string `json:"token,omitempty"`
	Unlock    *int64 `json:"unlock,omitempty"`
	Mint      *Mint  `json:"mint,omitempty"`
}

// SenderKind classifies tx.Sender.
func (tx *Transaction) SenderKind() SenderKind { return ClassifySender(tx.Sender) }

// ReceiverKind classifies tx.Receiver.
func (tx *Transaction) ReceiverKind() SenderKind { return ClassifySender(tx.Receiver) }

// signingCopy returns tx with Signature blanked, the shape hashed/signed
// over per spec.md §3.
func (tx Transaction) signingCopy() Transaction {
	tx.Signature = ""
	return tx
}

// SigningBytes returns the canonical JSON preimage transactions are
// signed/verified over.
func (tx *Transaction) SigningBytes() ([]byte, error) {
	return canonjson.Marshal(tx.signingCopy())
}

// SigningDigest returns SHA-256 of SigningBytes, the value a non-reserved
// sender's signature must verify against (spec.md §4.4 rule 3).
func (tx *Transaction) SigningDigest() ([32]byte, error) {
	b, err := tx.SigningBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return cryptoutil.Sum256(b), nil
}

// IdentityKey identifies a transaction's position in the mempool by the
// tuple spec.md §4.5 step 4 and §4.4 rule 10 use for matching:
// {signature, amount, nonce, sender, receiver, token}.
type IdentityKey struct {
	Signature string
	Amount    uint64
	Nonce     uint64
	Sender    string
	Receiver  string
	Token     string
}

func (tx *Transaction) Identity() IdentityKey {
	return IdentityKey{
		Signature: tx.Signature,
		Amount:    tx.Amount,
		Nonce:     tx.Nonce,
		Sender:    tx.Sender,
		Receiver:  tx.Receiver,
		Token:     tx.Token,
	}
}
