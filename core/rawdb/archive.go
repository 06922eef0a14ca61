package rawdb

import (
	"path/filepath"

	"github.com/holiman/billy"
)

// archive is the cold tier blocks are migrated into once they fall
// outside the retain window (SPEC_FULL.md §4.1). billy is an append-only,
// slot-sized blob store; a handful of shelf sizes comfortably covers the
// range of compressed block sizes this chain produces.
type archive struct {
	db billy.Database
}

var archiveShelfSizes = []uint32{256, 1024, 4096, 16384, 65536, 262144, 1048576}

func openArchive(dir string) (*archive, error) {
	db, err := billy.Open(billy.Options{Path: filepath.Join(dir, "archive")}, billy.NewBasicIndex(), archiveShelfSizes)
	if err != nil {
		return nil, err
	}
	return &archive{db: db}, nil
}

func (a *archive) put(data []byte) (uint64, error) {
	return a.db.Put(data)
}

func (a *archive) get(id uint64) ([]byte, error) {
	return a.db.Get(id)
}

func (a *archive) close() error {
	return a.db.Close()
}
