// Package api implements the thin HTTP read API of spec.md §6, consumed
// by miners and explorers. It never mutates chain state directly — reads
// go through *chain.Manager's accessors, and the one mutating route
// (gossip's inbound websocket) is wired separately in p2p/gossip.
package api

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"

	"github.com/feelesschain/fullnode/core/chain"
)

// Server wires the route table spec.md §6 lists onto *chain.Manager.
type Server struct {
	mgr        *chain.Manager
	bulkAuth   *bearerAuth // nil if SyncSharedSecret is unset
	mux        *http.ServeMux
}

// New builds the route table. sharedSecret, if non-empty, gates the
// bulk GET /blocks route behind a bearer JWT (SPEC_FULL.md §6).
func New(mgr *chain.Manager, sharedSecret string) *Server {
	s := &Server{mgr: mgr, mux: http.NewServeMux()}
	if sharedSecret != "" {
		s.bulkAuth = newBearerAuth(sharedSecret)
	}
	s.routes()
	return s
}

// Handler returns the fully wrapped HTTP handler: CORS, then gzip for
// bulk responses, then the route table.
func (s *Server) Handler() http.Handler {
	compressed := gzhttp.GzipHandler(s.mux, gzhttp.CompressionLevel(gzip.BestSpeed))
	return cors.AllowAll().Handler(compressed)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/height", s.handleHeight)
	s.mux.HandleFunc("/diff", s.handleDiff)
	s.mux.HandleFunc("/mint-fee", s.handleMintFee)
	s.mux.HandleFunc("/reward", s.handleReward)
	s.mux.HandleFunc("/mempool", s.handleMempool)
	s.mux.HandleFunc("/blocks", s.withBulkAuth(s.handleBlocks))
	s.mux.HandleFunc("/block/", s.handleBlockByHeight)
	s.mux.HandleFunc("/balance/", s.handleBalance)
	s.mux.HandleFunc("/locked/", s.handleLocked)
	s.mux.HandleFunc("/balance-mempool/", s.handleBalanceMempool)
	s.mux.HandleFunc("/tokens/", s.handleTokensForAddr)
	s.mux.HandleFunc("/token-info/", s.handleTokenInfo)
	s.mux.HandleFunc("/token-count", s.handleTokenCount)
	s.mux.HandleFunc("/token/", s.handleTokenByIndex)
	s.mux.HandleFunc("/history/", s.handleHistory)
	s.mux.HandleFunc("/search-blocks/", s.handleSearchBlocks)
	s.mux.HandleFunc("/search-tx/", s.handleSearchTx)
}

func (s *Server) withBulkAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.bulkAuth == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.bulkAuth.Check(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// addrToken splits the "/addr" or "/addr.token" path-parameter shape
// spec.md §6 uses for the balance, locked and balance-mempool routes.
func addrToken(pathSuffix string) (addr, token string) {
	if i := strings.LastIndex(pathSuffix, "."); i >= 0 {
		return pathSuffix[:i], pathSuffix[i+1:]
	}
	return pathSuffix, ""
}
