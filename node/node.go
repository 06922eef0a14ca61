// Package node implements C7, the Node Controller: boot sequencing from
// an empty process into a running chain, gossip hub and read API
// (spec.md §4.7).
package node

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/feelesschain/fullnode/api"
	"github.com/feelesschain/fullnode/config"
	"github.com/feelesschain/fullnode/core/chain"
	"github.com/feelesschain/fullnode/core/rawdb"
	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/txpool"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/core/validator"
	"github.com/feelesschain/fullnode/internal/logging"
	"github.com/feelesschain/fullnode/p2p/gossip"
	"github.com/feelesschain/fullnode/params"
)

const bulkFetchConcurrency = 4

// Node owns every long-lived component for one running process.
type Node struct {
	cfg        config.Node
	configPath string

	store     *rawdb.BlockStore
	mgr       *chain.Manager
	hub       *gossip.Hub
	api       *http.Server
	gossipSrv *http.Server

	watchCancel context.CancelFunc
	fsWatcher   *fsnotify.Watcher
}

// New boots a node per spec.md §4.7: load store, initialize chain,
// optionally bootstrap from a seed peer, then start gossip and the read
// API. configPath is the TOML file cfg was loaded from, watched for the
// peer-list hot reload (SPEC_FULL.md §4.6/§6); pass "" to disable it (no
// config file was given, e.g. an all-defaults/all-env-vars run).
func New(ctx context.Context, cfg config.Node, configPath string) (*Node, error) {
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
		logging.Info(fmt.Sprintf(format, a...))
	})); err != nil {
		logging.Warn("automaxprocs: failed to set GOMAXPROCS", "err", err)
	}

	engine := rawdb.EnginePebble
	if cfg.StorageEngine == string(rawdb.EngineLevelDB) {
		engine = rawdb.EngineLevelDB
	}
	store, err := rawdb.Open(cfg.DataDir, engine, params.Tail)
	if err != nil {
		return nil, fmt.Errorf("open block store: %w", err)
	}

	idx := state.New()
	val := validator.New(idx)
	pool := txpool.New(val, idx)
	bus := chain.NewEventBus()
	mgr := chain.New(store, idx, pool, val, bus)

	if store.Height() == 0 {
		if err := seedGenesis(mgr, store, cfg.GenesisFile); err != nil {
			store.Close()
			return nil, err
		}
	}
	if err := mgr.Init(); err != nil {
		store.Close()
		return nil, fmt.Errorf("chain init: %w", err)
	}

	n := &Node{cfg: cfg, configPath: configPath, store: store, mgr: mgr}

	if cfg.PeerHTTP != "" && store.Height() <= 1 {
		if err := n.bootstrap(ctx, cfg.PeerHTTP); err != nil {
			logging.Warn("bootstrap from seed peer failed, continuing from local state", "err", err)
		}
	}

	n.hub = gossip.NewHub(mgr)
	for _, peer := range cfg.Peer {
		n.hub.ConnectPeer(peer)
	}

	if cfg.PeerHTTP != "" {
		watchCtx, cancel := context.WithCancel(ctx)
		n.watchCancel = cancel
		wd := gossip.NewWatchdog(mgr, n.hub, cfg.PeerHTTP)
		go wd.Run(watchCtx)
	}

	if err := n.watchPeerList(); err != nil {
		logging.Warn("peer-list hot reload disabled", "err", err)
	}

	n.startAPI()
	return n, nil
}

// seedGenesis loads the configured genesis file and commits it as height
// 0, the one block the chain manager accepts unconditionally.
func seedGenesis(mgr *chain.Manager, store *rawdb.BlockStore, path string) error {
	gen, err := config.LoadGenesisFile(path)
	if err != nil {
		return fmt.Errorf("load genesis: %w", err)
	}
	block := gen.Block()
	if err := store.Put(0, block); err != nil {
		return fmt.Errorf("persist genesis: %w", err)
	}
	return nil
}

// bootstrap bulk-pulls from a seed HTTP peer in batches of up to 500
// blocks (spec.md §4.7), fetching batches concurrently via an errgroup
// but applying them strictly in height order since application must stay
// serialized (spec.md §5).
func (n *Node) bootstrap(ctx context.Context, peerHTTP string) error {
	client := gossip.NewPeerClient(peerHTTP)
	remoteHeight, err := client.Height(ctx)
	if err != nil {
		return err
	}
	localHeight := n.mgr.Height()
	if remoteHeight <= localHeight {
		return nil
	}

	type batch struct{ start, end uint64 }
	var batches []batch
	for start := localHeight; start < remoteHeight; start += params.MaxBulkBlocks {
		end := start + params.MaxBulkBlocks
		if end > remoteHeight {
			end = remoteHeight
		}
		batches = append(batches, batch{start, end})
	}

	results := make([][]types.Block, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkFetchConcurrency)
	for i, b := range batches {
		i, b := i, b
		g.Go(func() error {
			blocks, err := client.Blocks(gctx, b.start, b.end)
			if err != nil {
				return fmt.Errorf("fetch blocks %d..%d: %w", b.start, b.end, err)
			}
			results[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, b := range batches {
		for j := range results[i] {
			if err := n.mgr.ApplySyncedBlock(&results[i][j], time.Now().UnixMilli()); err != nil {
				return fmt.Errorf("apply bootstrap block %d: %w", b.start+uint64(j), err)
			}
		}
	}

	if mempool, err := client.Mempool(ctx); err == nil {
		n.mgr.ReplaceMempool(mempool)
	}
	logging.Info("bootstrap complete", "height", n.mgr.Height())
	return nil
}

// watchPeerList hot-reloads the peer list from the config file
// (SPEC_FULL.md §4.6/§6): editing the file adds newly-listed peers
// without a restart. Existing connections are never torn down. A no-op
// when the node was started without a config file to watch.
func (n *Node) watchPeerList() error {
	if n.configPath == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(n.configPath); err != nil {
		w.Close()
		return fmt.Errorf("watch config file %s: %w", n.configPath, err)
	}
	n.fsWatcher = w
	known := make(map[string]bool, len(n.cfg.Peer))
	for _, peer := range n.cfg.Peer {
		known[peer] = true
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				var reloaded config.Node
				if err := config.LoadFile(ev.Name, &reloaded); err != nil {
					logging.Warn("peer-list reload failed", "err", err)
					continue
				}
				for _, peer := range reloaded.Peer {
					if known[peer] {
						continue
					}
					known[peer] = true
					n.hub.ConnectPeer(peer)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn("peer-list watcher error", "err", err)
			}
		}
	}()
	return nil
}

func (n *Node) startAPI() {
	srv := api.New(n.mgr, n.cfg.SyncSharedSecret)
	n.api = &http.Server{
		Addr:    fmt.Sprintf(":%d", n.cfg.HTTPPort),
		Handler: srv.Handler(),
	}
	go func() {
		if err := n.api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Crit("read API server failed", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", n.hub.ServeHTTP)
	n.gossipSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", n.cfg.Port),
		Handler: mux,
	}
	go func() {
		if err := n.gossipSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Crit("gossip server failed", "err", err)
		}
	}()
}

// Shutdown stops the watchdog, gossip sockets and HTTP servers, and
// closes the block store (spec.md §5 "Cancellation").
func (n *Node) Shutdown(ctx context.Context) error {
	if n.watchCancel != nil {
		n.watchCancel()
	}
	if n.fsWatcher != nil {
		n.fsWatcher.Close()
	}
	if n.hub != nil {
		n.hub.Shutdown()
	}
	if n.api != nil {
		_ = n.api.Shutdown(ctx)
	}
	if n.gossipSrv != nil {
		_ = n.gossipSrv.Shutdown(ctx)
	}
	return n.store.Close()
}

func (n *Node) Manager() *chain.Manager { return n.mgr }
