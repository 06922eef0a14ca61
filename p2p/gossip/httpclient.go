package gossip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/feelesschain/fullnode/core/types"
)

// PeerClient is a thin client over a peer's HTTP read API (spec.md §6),
// used by the pull-sync watchdog and by the node controller's bootstrap.
type PeerClient struct {
	base   string
	client *http.Client
}

func NewPeerClient(base string) *PeerClient {
	return &PeerClient{base: base, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *PeerClient) Height(ctx context.Context) (uint64, error) {
	var out struct {
		Height uint64 `json:"height"`
	}
	if err := c.getJSON(ctx, "/height", &out); err != nil {
		return 0, err
	}
	return out.Height, nil
}

// Blocks fetches [start, end) via GET /blocks?start=&end=, the same
// endpoint both bulk bootstrap (spec.md §4.7) and pull-sync use.
func (c *PeerClient) Blocks(ctx context.Context, start, end uint64) ([]types.Block, error) {
	path := fmt.Sprintf("/blocks?start=%d&end=%d", start, end)
	var out []types.Block
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerClient) BlockAt(ctx context.Context, height uint64) (*types.Block, error) {
	blocks, err := c.Blocks(ctx, height, height+1)
	if err != nil {
		return nil, err
	}
	if len(blocks) != 1 {
		return nil, fmt.Errorf("expected exactly one block at height %d, got %d", height, len(blocks))
	}
	return &blocks[0], nil
}

func (c *PeerClient) BlockHash(ctx context.Context, height uint64) (string, error) {
	b, err := c.BlockAt(ctx, height)
	if err != nil {
		return "", err
	}
	return b.Hash, nil
}

func (c *PeerClient) Mempool(ctx context.Context) ([]types.Transaction, error) {
	var out []types.Transaction
	if err := c.getJSON(ctx, "/mempool", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PeerClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return NewSyncError("fetch %s: %s", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NewSyncError("fetch %s: status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
