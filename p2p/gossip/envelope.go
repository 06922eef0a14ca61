// Package gossip implements C6: peer connections, broadcast fan-out,
// keep-alive, duplicate suppression and the push/pull reorg protocols
// (spec.md §4.6). Every mutation of chain state flows through
// *chain.Manager's exported methods; this package never touches
// core/state or core/txpool directly (spec.md §5).
package gossip

import "encoding/json"

// Event names carried on the wire (spec.md §4.6).
const (
	EventTx    = "tx"
	EventBlock = "block"
	EventPush  = "push"
)

// Envelope is the JSON message both peer directions send (spec.md §4.6
// "Messages are JSON envelopes {event, data}").
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}
