// Package rawdb implements C1, the Block Store: durable per-height block
// persistence with random-access reads (spec.md §4.1). A hot ordered-KV
// tier (goleveldb by default, pebble as an alternate engine) is backed by
// a fastcache read-through cache; blocks aging out of the retain window
// are migrated into a holiman/billy append-only archive, mirroring the
// hot/cold split real chain clients use between a live index and a
// frozen/ancient store.
package rawdb

import "encoding/binary"

// blockPrefix + big-endian height -> snappy(json(Block)).
var blockPrefix = []byte("b")

// blockKey builds the hot-tier key for a given height.
func blockKey(height uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], height)
	return key
}

// archiveIndexPrefix + big-endian height -> billy slot id (8 bytes, big
// endian), used to look a migrated block back up in the cold tier.
var archiveIndexPrefix = []byte("a")

func archiveIndexKey(height uint64) []byte {
	key := make([]byte, len(archiveIndexPrefix)+8)
	copy(key, archiveIndexPrefix)
	binary.BigEndian.PutUint64(key[len(archiveIndexPrefix):], height)
	return key
}

// headKey stores the current chain height (one past the last stored
// block), letting Height() avoid a linear scan at startup.
var headKey = []byte("head-height")
