package chain

import "github.com/feelesschain/fullnode/core/types"

// BlockCommitted is published after a block is durably applied.
type BlockCommitted struct {
	Height uint64
	Block  *types.Block
}

// MintCreated is published once per mint transaction in a committed
// block (spec.md §4.4 "Block application" step 5).
type MintCreated struct {
	Token string
	Mint  types.Mint
}

// EventBus is the post-commit notification mechanism spec.md §9 design
// note "Callback-style post-commit notifications" calls for: the chain
// manager publishes, subscribers (the webhook fan-out, the HTTP API's
// long-poll handlers) each get their own channel and retry policy.
type EventBus struct {
	blockSubs []chan BlockCommitted
	mintSubs  []chan MintCreated
}

func NewEventBus() *EventBus { return &EventBus{} }

// SubscribeBlocks returns a channel fed every BlockCommitted event. The
// channel is buffered; a slow subscriber drops events rather than
// blocking block commit.
func (b *EventBus) SubscribeBlocks(buffer int) <-chan BlockCommitted {
	ch := make(chan BlockCommitted, buffer)
	b.blockSubs = append(b.blockSubs, ch)
	return ch
}

func (b *EventBus) SubscribeMints(buffer int) <-chan MintCreated {
	ch := make(chan MintCreated, buffer)
	b.mintSubs = append(b.mintSubs, ch)
	return ch
}

func (b *EventBus) publishBlock(e BlockCommitted) {
	for _, ch := range b.blockSubs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *EventBus) publishMint(e MintCreated) {
	for _, ch := range b.mintSubs {
		select {
		case ch <- e:
		default:
		}
	}
}
