package btree

import "github.com/cuemby/datahost/pkg/value"

// NodeKey is one entry in a node's sorted key list: the row key plus a
// tombstone flag. Deletion is logical (spec.md §4.F "Deletion"); readers
// must skip keys with Deleted set.
type NodeKey struct {
	Value   value.Key `json:"value"`
	Deleted bool      `json:"deleted"`
}

// Node is one B-Tree block: spec.md §6's "Block payload format (nodes)" —
// `{ leaf, keys: [{value, deleted}], parent, children, rebalance }`.
// Grounded on original_source/prototype/collection/btree/file.rs's Node.
type Node struct {
	Leaf      bool      `json:"leaf"`
	Keys      []NodeKey `json:"keys"`
	Parent    string    `json:"parent,omitempty"`
	Children  []string  `json:"children,omitempty"`
	Rebalance bool      `json:"rebalance"`
}

// keysOf projects a node's keys into plain value.Key slices for the
// collator's bisection helpers, which operate on []value.Key.
func keysOf(n Node) []value.Key {
	keys := make([]value.Key, len(n.Keys))
	for i, k := range n.Keys {
		keys[i] = k.Value
	}
	return keys
}
