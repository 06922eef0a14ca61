package gossip

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/feelesschain/fullnode/core/chain"
	"github.com/feelesschain/fullnode/internal/logging"
	"github.com/feelesschain/fullnode/params"
)

const watchdogInterval = 20 * time.Second

// Watchdog is the ~20s pull-sync/push ticker of spec.md §4.5. A
// singleflight.Group keyed by a constant gives the single isSyncing
// latch spec.md §4.5/§5 requires: a second tick arriving mid-sync joins
// the in-flight call instead of starting a concurrent one.
type Watchdog struct {
	mgr      *chain.Manager
	hub      *Hub
	peer     *PeerClient
	sf       singleflight.Group
}

// NewWatchdog builds a watchdog against peerHTTP, the configured seed
// peer's HTTP base URL (spec.md §6 PEER_HTTP).
func NewWatchdog(mgr *chain.Manager, hub *Hub, peerHTTP string) *Watchdog {
	return &Watchdog{mgr: mgr, hub: hub, peer: NewPeerClient(peerHTTP)}
}

// Run blocks, ticking until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	_, _, _ = w.sf.Do("sync", func() (any, error) {
		w.runOnce(ctx)
		return nil, nil
	})
}

func (w *Watchdog) runOnce(ctx context.Context) {
	remoteHeight, err := w.peer.Height(ctx)
	if err != nil {
		logging.Warn("watchdog: peer height fetch failed", "err", err)
		return
	}
	localHeight := w.mgr.Height()

	switch {
	case remoteHeight > localHeight:
		if err := w.pullSync(ctx, remoteHeight); err != nil {
			logging.Warn("watchdog: pull-sync aborted", "err", err)
		}
	case localHeight > remoteHeight:
		w.pushLocal()
	}
}

// pullSync implements spec.md §4.5 "Reorg via pull-sync" steps 1-4.
func (w *Watchdog) pullSync(ctx context.Context, remoteHeight uint64) error {
	fork, err := w.mgr.DivergencePoint(func(height uint64) (string, error) {
		return w.peer.BlockHash(ctx, height)
	})
	if err != nil {
		return NewSyncError("find divergence point: %s", err)
	}

	if err := w.mgr.ResyncTo(fork); err != nil {
		return NewSyncError("resync to fork %d: %s", fork, err)
	}

	for h := fork; h < remoteHeight; h++ {
		block, err := w.peer.BlockAt(ctx, h)
		if err != nil {
			return NewSyncError("fetch block %d: %s", h, err)
		}
		if err := w.mgr.ApplySyncedBlock(block, time.Now().UnixMilli()); err != nil {
			return NewSyncError("apply synced block %d: %s", h, err)
		}
	}

	peerMempool, err := w.peer.Mempool(ctx)
	if err != nil {
		return NewSyncError("fetch peer mempool: %s", err)
	}
	w.mgr.ReplaceMempool(peerMempool)
	logging.Info("pull-sync complete", "height", w.mgr.Height())
	return nil
}

func (w *Watchdog) pushLocal() {
	localHeight := w.mgr.Height()
	n := uint64(params.MaxPushLength)
	if localHeight < n {
		n = localHeight
	}
	subChain, err := w.mgr.PushCandidate(n)
	if err != nil {
		logging.Warn("watchdog: build push candidate failed", "err", err)
		return
	}
	w.hub.BroadcastPush(subChain)
}
