package btree

import (
	"fmt"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/value"
)

// DefaultBlockSize is the target on-disk footprint of one node block,
// matching spec.md §4.F's default.
const DefaultBlockSize = 4000

// BlockIDSize is the serialized width of a block identifier (a UUID).
const BlockIDSize = 16

// ComputeOrder derives the B-Tree order m from a schema's key size and the
// target block size: spec.md §4.F, `m = max(2, floor((block_size -
// block_id_size) / (key_size + block_id_size)))`. blockSize <= 0 selects
// DefaultBlockSize.
func ComputeOrder(schema value.Schema, blockSize int) (int, error) {
	if err := schema.Validate(); err != nil {
		return 0, err
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	keySize := schema.KeySize()
	if keySize <= 0 {
		return 0, dberr.New(dberr.BadRequest, "btree.ComputeOrder", fmt.Sprintf("invalid key size %d", keySize))
	}

	m := (blockSize - BlockIDSize) / (keySize + BlockIDSize)
	if m < 2 {
		m = 2
	}
	return m, nil
}
