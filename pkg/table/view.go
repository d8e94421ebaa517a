package table

import (
	"encoding/json"
	"iter"

	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

// View is the read-only handle spec.md §9's TableView design note describes:
// a tagged variant (Base, Slice, Ordered, Limited, Selected, Grouped,
// Reversed, Merged in the original) unified here behind one small interface,
// each verb (Slice/OrderBy/Limit/Select/GroupBy/Reverse) wrapping the
// previous View rather than mutating it.
type View interface {
	Stream(txn txid.ID) (iter.Seq[value.Row], error)
	Count(txn txid.ID) (int, error)
	IsEmpty(txn txid.ID) (bool, error)
}

func countByStreaming(txn txid.ID, v View) (int, error) {
	seq, err := v.Stream(txn)
	if err != nil {
		return 0, err
	}
	n := 0
	for range seq {
		n++
	}
	return n, nil
}

func isEmptyByStreaming(txn txid.ID, v View) (bool, error) {
	seq, err := v.Stream(txn)
	if err != nil {
		return false, err
	}
	for range seq {
		return false, nil
	}
	return true, nil
}

// baseView is the trivial "whole table, primary order" view every Slice and
// OrderBy plan starts from.
type baseView struct {
	table *Table
}

func newBaseView(t *Table) *baseView { return &baseView{table: t} }

func (v *baseView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	return v.table.primary.Stream(txn, value.FullRange(), false)
}

func (v *baseView) Count(txn txid.ID) (int, error) { return v.table.Count(txn) }

func (v *baseView) IsEmpty(txn txid.ID) (bool, error) { return v.table.IsEmpty(txn) }

// indexSliceView streams a single index (primary or auxiliary) over a range,
// the leaf node a composed plan bottoms out at once the planner has matched
// a bound or order prefix against some index.
type indexSliceView struct {
	idx     *Index
	r       value.Range
	reverse bool
}

func newIndexSliceView(idx *Index, r value.Range, reverse bool) *indexSliceView {
	return &indexSliceView{idx: idx, r: r, reverse: reverse}
}

func (v *indexSliceView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	return v.idx.Stream(txn, v.r, v.reverse)
}

func (v *indexSliceView) Count(txn txid.ID) (int, error) { return v.idx.Len(txn, v.r) }

func (v *indexSliceView) IsEmpty(txn txid.ID) (bool, error) { return isEmptyByStreaming(txn, v) }

func primaryKeyHash(key value.Key) (string, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// mergedView composes a base view with an index slice: it yields a row iff
// both source and slice agree on the same primary key, in the slice's
// declared order (spec.md §4.G "Merge"). Every Slice/OrderBy match composes
// one of these on top of the running plan.
//
// When source is the trivial whole-table baseView, intersecting against it
// is a no-op (every primary key is in the table by definition), so that case
// is special-cased to stream the slice directly, converting each slice row
// into its full primary row via a Get. This avoids a full-table scan for the
// overwhelmingly common case of a single-bound query; only a genuine
// multi-stage composition (a second Slice/OrderBy layered on a first)
// materializes the seen-keys set below.
type mergedView struct {
	source View
	slice  View
	table  *Table
}

func newMergedView(source View, slice View, t *Table) *mergedView {
	return &mergedView{source: source, slice: slice, table: t}
}

func (v *mergedView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	if base, ok := v.source.(*baseView); ok && base.table == v.table {
		sliceSeq, err := v.slice.Stream(txn)
		if err != nil {
			return nil, err
		}
		table := v.table
		return func(yield func(value.Row) bool) {
			for row := range sliceSeq {
				key, err := table.primaryKeyOf(row)
				if err != nil {
					return
				}
				full, found, err := table.Get(txn, key)
				if err != nil || !found {
					continue
				}
				if !yield(full) {
					return
				}
			}
		}, nil
	}

	sourceSeq, err := v.source.Stream(txn)
	if err != nil {
		return nil, err
	}
	table := v.table
	seen := make(map[string]value.Row)
	for row := range sourceSeq {
		key, err := table.primaryKeyOf(row)
		if err != nil {
			return nil, err
		}
		hash, err := primaryKeyHash(key)
		if err != nil {
			return nil, err
		}
		seen[hash] = row
	}

	sliceSeq, err := v.slice.Stream(txn)
	if err != nil {
		return nil, err
	}
	return func(yield func(value.Row) bool) {
		for row := range sliceSeq {
			key, err := table.primaryKeyOf(row)
			if err != nil {
				return
			}
			hash, err := primaryKeyHash(key)
			if err != nil {
				return
			}
			full, ok := seen[hash]
			if !ok {
				continue
			}
			if !yield(full) {
				return
			}
		}
	}, nil
}

func (v *mergedView) Count(txn txid.ID) (int, error) { return countByStreaming(txn, v) }

func (v *mergedView) IsEmpty(txn txid.ID) (bool, error) { return isEmptyByStreaming(txn, v) }

// reversedView materializes its inner view's stream and replays it back to
// front, the final step of OrderBy(..., reverse=true).
type reversedView struct {
	inner View
}

func newReversedView(inner View) *reversedView { return &reversedView{inner: inner} }

// Reverse returns a view yielding view's rows back to front.
func Reverse(view View) View { return newReversedView(view) }

func (v *reversedView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	seq, err := v.inner.Stream(txn)
	if err != nil {
		return nil, err
	}
	var rows []value.Row
	for row := range seq {
		rows = append(rows, row)
	}
	return func(yield func(value.Row) bool) {
		for i := len(rows) - 1; i >= 0; i-- {
			if !yield(rows[i]) {
				return
			}
		}
	}, nil
}

func (v *reversedView) Count(txn txid.ID) (int, error) { return v.inner.Count(txn) }

func (v *reversedView) IsEmpty(txn txid.ID) (bool, error) { return v.inner.IsEmpty(txn) }

// limitedView stops after at most n rows.
type limitedView struct {
	inner View
	n     int
}

// Limit caps view to at most n rows.
func Limit(view View, n int) View { return &limitedView{inner: view, n: n} }

func (v *limitedView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	seq, err := v.inner.Stream(txn)
	if err != nil {
		return nil, err
	}
	n := v.n
	return func(yield func(value.Row) bool) {
		if n <= 0 {
			return
		}
		count := 0
		for row := range seq {
			if !yield(row) {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}, nil
}

func (v *limitedView) Count(txn txid.ID) (int, error) { return countByStreaming(txn, v) }

func (v *limitedView) IsEmpty(txn txid.ID) (bool, error) {
	if v.n <= 0 {
		return true, nil
	}
	return v.inner.IsEmpty(txn)
}

// selectedView projects each row down to a named subset of columns.
type selectedView struct {
	inner View
	cols  []string
}

// Select projects view's rows down to cols.
func Select(view View, cols []string) View { return &selectedView{inner: view, cols: cols} }

func (v *selectedView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	seq, err := v.inner.Stream(txn)
	if err != nil {
		return nil, err
	}
	cols := v.cols
	return func(yield func(value.Row) bool) {
		for row := range seq {
			projected := make(value.Row, len(cols))
			for _, c := range cols {
				if val, ok := row[c]; ok {
					projected[c] = val
				}
			}
			if !yield(projected) {
				return
			}
		}
	}, nil
}

func (v *selectedView) Count(txn txid.ID) (int, error) { return v.inner.Count(txn) }

func (v *selectedView) IsEmpty(txn txid.ID) (bool, error) { return v.inner.IsEmpty(txn) }

// groupedView yields the first row seen for each distinct combination of
// cols, in stream order.
type groupedView struct {
	inner View
	cols  []string
}

// GroupBy deduplicates view's rows by cols, keeping the first row seen per
// distinct combination.
func GroupBy(view View, cols []string) View { return &groupedView{inner: view, cols: cols} }

func (v *groupedView) Stream(txn txid.ID) (iter.Seq[value.Row], error) {
	seq, err := v.inner.Stream(txn)
	if err != nil {
		return nil, err
	}
	cols := v.cols
	return func(yield func(value.Row) bool) {
		seen := make(map[string]bool)
		for row := range seq {
			key := make(value.Key, len(cols))
			for i, c := range cols {
				key[i] = row[c]
			}
			hash, err := primaryKeyHash(key)
			if err != nil {
				return
			}
			if seen[hash] {
				continue
			}
			seen[hash] = true
			if !yield(row) {
				return
			}
		}
	}, nil
}

func (v *groupedView) Count(txn txid.ID) (int, error) { return countByStreaming(txn, v) }

func (v *groupedView) IsEmpty(txn txid.ID) (bool, error) { return isEmptyByStreaming(txn, v) }
