package gossip

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/feelesschain/fullnode/core/chain"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/internal/logging"
)

// subChainDigest identifies a push by its blocks' hashes, mirroring
// core/chain's own push-dedup key so lastSeenPush matches what the chain
// manager itself would consider a repeat (I9).
func subChainDigest(blocks []types.Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(b.Hash)
		sb.WriteByte('|')
	}
	return sb.String()
}

const dedupCacheSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub is C6's connection manager: one outbound client per configured peer
// URL plus every server-accepted inbound socket, broadcast fan-out, and
// the duplicate-suppression/ingest-gating rules of spec.md §4.6.
type Hub struct {
	mgr *chain.Manager

	mu       sync.RWMutex
	outbound map[string]*peerConn // keyed by URL
	inbound  map[uuid.UUID]*peerConn

	lastSeenBlock *dedupCache
	lastSeenPush  *dedupCache

	stopIncoming atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(mgr *chain.Manager) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		mgr:           mgr,
		outbound:      make(map[string]*peerConn),
		inbound:       make(map[uuid.UUID]*peerConn),
		lastSeenBlock: newDedupCache(dedupCacheSize),
		lastSeenPush:  newDedupCache(dedupCacheSize),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetStopIncoming toggles the diagnostic ingest gate (spec.md §4.6
// "Ingest gating... does not affect outbound broadcast").
func (h *Hub) SetStopIncoming(stop bool) { h.stopIncoming.Store(stop) }

// Shutdown closes every socket with code 1000 and stops reconnect timers
// (spec.md §5 "Cancellation").
func (h *Hub) Shutdown() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.outbound {
		p.close()
	}
	for _, p := range h.inbound {
		p.close()
	}
}

// ConnectPeer dials url and maintains the connection for the process
// lifetime, reconnecting per spec.md §4.6.
func (h *Hub) ConnectPeer(url string) {
	go h.maintainOutbound(url)
}

func (h *Hub) maintainOutbound(url string) {
	failures := 0
	silenced := false
	for {
		select {
		case <-h.ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(h.ctx, url, nil)
		if err != nil {
			failures++
			if failures >= maxSilenceTries {
				silenced = true
			}
			if !silenced {
				logging.Warn("outbound peer dial failed", "peer", url, "err", err)
			}
			select {
			case <-h.ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		failures = 0
		silenced = false
		logging.Info("connected to peer", "peer", url)

		p := newPeerConn(uuid.New(), url, conn)
		h.mu.Lock()
		h.outbound[url] = p
		h.mu.Unlock()

		peerCtx, peerCancel := context.WithCancel(h.ctx)
		go p.keepalive(peerCtx, peerCancel)

		err = p.readLoop(func(env Envelope) { h.dispatch(p, env) })
		peerCancel()
		p.close()

		h.mu.Lock()
		delete(h.outbound, url)
		h.mu.Unlock()

		if err != nil && h.ctx.Err() == nil {
			logging.Warn("outbound peer connection closed", "peer", url, "err", err)
		}

		select {
		case <-h.ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// ServeHTTP upgrades an inbound connection and serves it until close
// (spec.md §4.6 "Each node runs a server").
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("inbound gossip upgrade failed", "err", err)
		return
	}

	id := uuid.New()
	p := newPeerConn(id, "", conn)
	h.mu.Lock()
	h.inbound[id] = p
	h.mu.Unlock()
	logging.Info("accepted inbound peer", "id", id.String())

	peerCtx, peerCancel := context.WithCancel(h.ctx)
	go p.keepalive(peerCtx, peerCancel)

	err = p.readLoop(func(env Envelope) { h.dispatch(p, env) })
	peerCancel()
	p.close()

	h.mu.Lock()
	delete(h.inbound, id)
	h.mu.Unlock()
	if err != nil {
		logging.Info("inbound peer disconnected", "id", id.String(), "err", err)
	}
}

// Broadcast sends event/data to every open outbound and inbound socket.
// A send failure on one socket never aborts the rest (spec.md §4.6).
func (h *Hub) Broadcast(event string, data any) {
	h.mu.RLock()
	peers := make([]*peerConn, 0, len(h.outbound)+len(h.inbound))
	for _, p := range h.outbound {
		peers = append(peers, p)
	}
	for _, p := range h.inbound {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		if err := p.send(event, data); err != nil {
			logging.Warn("broadcast send failed", "peer", p.id.String(), "err", err)
		}
	}
}

func (h *Hub) dispatch(p *peerConn, env Envelope) {
	if h.stopIncoming.Load() {
		return
	}
	switch env.Event {
	case EventTx:
		h.handleTx(env.Data)
	case EventBlock:
		h.handleBlock(env.Data)
	case EventPush:
		h.handlePush(env.Data)
	default:
		logging.Warn("unknown gossip event", "event", env.Event, "peer", p.id.String())
	}
}

func (h *Hub) handleTx(raw json.RawMessage) {
	var tx types.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		logging.Warn("malformed tx envelope", "err", err)
		return
	}
	if err := h.mgr.PushTx(tx, time.Now().UnixMilli()); err != nil {
		return
	}
	h.Broadcast(EventTx, tx)
}

func (h *Hub) handleBlock(raw json.RawMessage) {
	var block types.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		logging.Warn("malformed block envelope", "err", err)
		return
	}
	if h.lastSeenBlock.SeenOrAdd(block.Hash) {
		return
	}
	if block.Hash == h.mgr.LastHash() {
		return
	}
	if err := h.mgr.AddBlock(&block, time.Now().UnixMilli()); err != nil {
		logging.Info("gossip block rejected", "hash", block.Hash, "err", err)
		return
	}
	h.Broadcast(EventBlock, block)
}

func (h *Hub) handlePush(raw json.RawMessage) {
	var subChain []types.Block
	if err := json.Unmarshal(raw, &subChain); err != nil {
		logging.Warn("malformed push envelope", "err", err)
		return
	}
	digest := subChainDigest(subChain)
	if h.lastSeenPush.SeenOrAdd(digest) {
		return
	}
	if err := h.mgr.PushSubChain(subChain, time.Now().UnixMilli()); err != nil {
		logging.Info("push rejected", "err", err)
		return
	}
	h.Broadcast(EventPush, subChain)
}

// BroadcastBlock is called by the node controller after a locally-mined
// block commits.
func (h *Hub) BroadcastBlock(block *types.Block) {
	h.lastSeenBlock.SeenOrAdd(block.Hash)
	h.Broadcast(EventBlock, block)
}

// BroadcastPush sends a locally-initiated sub-chain push to every peer
// (spec.md §4.5 "push the last min(height, 15) blocks to all peers").
func (h *Hub) BroadcastPush(subChain []types.Block) {
	h.lastSeenPush.SeenOrAdd(subChainDigest(subChain))
	h.Broadcast(EventPush, subChain)
}
