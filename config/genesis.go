package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/feelesschain/fullnode/core/types"
)

// GenesisAlloc is one initial balance grant.
type GenesisAlloc struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
	Token   string `yaml:"token,omitempty"`
}

// Genesis describes the trusted first block an operator ships with a
// network (SPEC_FULL.md §6 GENESIS_FILE). It is turned into the
// unconditionally-accepted height-0 block the chain manager loads at
// Init.
type Genesis struct {
	Timestamp int64          `yaml:"timestamp"`
	Diff      string         `yaml:"diff"`
	Alloc     []GenesisAlloc `yaml:"alloc"`
}

// LoadGenesisFile reads and parses a genesis YAML file.
func LoadGenesisFile(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file %s: %w", path, err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse genesis file %s: %w", path, err)
	}
	return &g, nil
}

// Block turns the genesis allocation list into the height-0 block:
// one network-sender transaction per allocation, crediting the address
// directly with no signature required (spec.md §4.5 "genesis... applies
// directly to the index").
func (g *Genesis) Block() *types.Block {
	txs := make([]types.Transaction, 0, len(g.Alloc))
	for _, a := range g.Alloc {
		txs = append(txs, types.Transaction{
			Sender:    types.SenderNetworkString,
			Receiver:  a.Address,
			Amount:    a.Amount,
			Signature: types.SenderNetworkString,
			Timestamp: g.Timestamp,
			Token:     a.Token,
		})
	}
	return &types.Block{
		Timestamp:    g.Timestamp,
		Transactions: txs,
		PrevHash:     "",
		Proposer:     types.SenderNetworkString,
		Signature:    types.SenderNetworkString,
		Hash:         genesisHash,
		Diff:         g.Diff,
	}
}

// genesisHash is a fixed sentinel rather than a computed proof-of-work
// hash: the genesis block is trusted unconditionally and never checked
// against a target (spec.md §4.5).
const genesisHash = "genesis"
