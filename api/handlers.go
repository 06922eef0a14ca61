package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/feelesschain/fullnode/core/state"
	"github.com/feelesschain/fullnode/core/types"
	"github.com/feelesschain/fullnode/params"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]uint64{"height": s.mgr.Height()})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	target, err := s.mgr.CurrentTarget()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"diff": target.Hex()})
}

func (s *Server) handleMintFee(w http.ResponseWriter, r *http.Request) {
	h := s.mgr.Height()
	writeJSON(w, map[string]uint64{"fee": params.MintFee(h, s.mgr.State().MintCount())})
}

func (s *Server) handleReward(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]uint64{"reward": params.Reward(s.mgr.Height())})
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.Mempool().All())
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err1 := strconv.ParseUint(q.Get("start"), 10, 64)
	end, err2 := strconv.ParseUint(q.Get("end"), 10, 64)
	if err1 != nil || err2 != nil || end < start {
		http.Error(w, "invalid start/end", http.StatusBadRequest)
		return
	}
	if end-start > params.MaxBulkBlocks {
		end = start + params.MaxBulkBlocks
	}

	height := s.mgr.Height()
	if end > height {
		end = height
	}
	out := make([]*types.Block, 0, end-start)
	for h := start; h < end; h++ {
		b, ok, err := s.mgr.BlockAt(h)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			break
		}
		out = append(out, b)
	}
	writeJSON(w, out)
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/block/")
	h, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid height", http.StatusBadRequest)
		return
	}
	b, ok, err := s.mgr.BlockAt(h)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, token := addrToken(strings.TrimPrefix(r.URL.Path, "/balance/"))
	writeJSON(w, s.mgr.State().Balance(addr, token))
}

func (s *Server) handleLocked(w http.ResponseWriter, r *http.Request) {
	addr, token := addrToken(strings.TrimPrefix(r.URL.Path, "/locked/"))
	writeJSON(w, s.mgr.State().LockedBalance(addr, token))
}

func (s *Server) handleBalanceMempool(w http.ResponseWriter, r *http.Request) {
	addr, token := addrToken(strings.TrimPrefix(r.URL.Path, "/balance-mempool/"))
	spendable := s.mgr.State().Balance(addr, token)
	pending := s.mgr.Mempool().PendingAmount(addr, token)
	if spendable < pending {
		writeJSON(w, uint64(0))
		return
	}
	writeJSON(w, spendable-pending)
}

func (s *Server) handleTokensForAddr(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimPrefix(r.URL.Path, "/tokens/")
	tokens := s.mgr.State().TokensHeldBy(addr)
	slices.Sort(tokens)
	writeJSON(w, tokens)
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.URL.Path, "/token-info/")
	info, ok := s.mgr.State().MintInfo(token)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, tokenInfoView(info))
}

func (s *Server) handleTokenCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]int{"count": s.mgr.State().MintCount()})
}

func (s *Server) handleTokenByIndex(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/token/")
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	tokens := s.mgr.State().Tokens()
	slices.Sort(tokens)
	if i >= len(tokens) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	token := tokens[i]
	info, _ := s.mgr.State().MintInfo(token)
	view := tokenInfoView(info)
	view["token"] = token
	writeJSON(w, view)
}

func tokenInfoView(info state.MintInfo) map[string]any {
	return map[string]any{
		"miningReward": info.MiningReward,
		"airdrop":      info.Airdrop,
	}
}

// handleHistory scans the full chain for transactions touching addr
// (SPEC_FULL.md §6). A reference full node has no separate tx index;
// this endpoint is a straightforward O(height) scan, acceptable for the
// thin read API spec.md directs building.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimPrefix(r.URL.Path, "/history/")
	height := s.mgr.Height()
	var entries []historyEntry
	for h := uint64(0); h < height; h++ {
		b, ok, err := s.mgr.BlockAt(h)
		if err != nil || !ok {
			continue
		}
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.Sender == addr || tx.Receiver == addr {
				entries = append(entries, historyEntry{Height: h, Transaction: *tx})
			}
		}
	}
	writeJSON(w, entries)
}

type historyEntry struct {
	Height      uint64            `json:"height"`
	Transaction types.Transaction `json:"transaction"`
}

func (s *Server) handleSearchBlocks(w http.ResponseWriter, r *http.Request) {
	hash := strings.TrimPrefix(r.URL.Path, "/search-blocks/")
	height := s.mgr.Height()
	for h := uint64(0); h < height; h++ {
		b, ok, err := s.mgr.BlockAt(h)
		if err != nil || !ok {
			continue
		}
		if b.Hash == hash {
			writeJSON(w, map[string]any{"block": b, "height": h})
			return
		}
	}
	http.Error(w, "not found", http.StatusNotFound)
}

func (s *Server) handleSearchTx(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimPrefix(r.URL.Path, "/search-tx/")
	height := s.mgr.Height()
	var results []historyEntry
	for h := uint64(0); h < height; h++ {
		b, ok, err := s.mgr.BlockAt(h)
		if err != nil || !ok {
			continue
		}
		for i := range b.Transactions {
			tx := &b.Transactions[i]
			if tx.Signature == query || tx.Sender == query || tx.Receiver == query {
				results = append(results, historyEntry{Height: h, Transaction: *tx})
			}
		}
	}
	writeJSON(w, map[string]any{"results": results})
}
