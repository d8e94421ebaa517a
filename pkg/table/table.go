package table

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/datahost/pkg/dberr"
	"github.com/cuemby/datahost/pkg/hostdir"
	"github.com/cuemby/datahost/pkg/log"
	"github.com/cuemby/datahost/pkg/metrics"
	"github.com/cuemby/datahost/pkg/txid"
	"github.com/cuemby/datahost/pkg/value"
)

// updateFanOut bounds the concurrent row rewrites Table.Update dispatches,
// matching spec.md §5's "bounded ... 2 for TSI row updates".
const updateFanOut = 2

// ColumnBound is a per-column constraint supplied to Table.Slice.
type ColumnBound struct {
	Lower value.Bound
	Upper value.Bound
}

// Equal constructs an equality bound (Lower == Upper == v).
func Equal(v value.Value) ColumnBound {
	return ColumnBound{Lower: value.IncludeBound(v), Upper: value.IncludeBound(v)}
}

func (b ColumnBound) isRange() bool {
	if b.Lower.Kind == value.Inclusive && b.Upper.Kind == value.Inclusive && b.Lower.Value.Equal(b.Upper.Value) {
		return false
	}
	return true
}

// Bounds is a named set of per-column constraints, keyed by column name.
type Bounds map[string]ColumnBound

// Table composes a primary index with zero or more named auxiliary indexes,
// kept in sync on every row mutation (spec.md §4.G).
type Table struct {
	name      string
	primary   *Index
	auxNames  []string
	auxiliary map[string]*Index
	logger    zerolog.Logger
}

// Create mounts a brand new table under dir, one sub-directory per index
// (primary plus each auxiliary), and returns the table plus every index's
// initial root block id (name -> root id) for a caller to persist durably.
func Create(txn txid.ID, name string, dir *hostdir.Dir, schema TableSchema) (*Table, map[string]string, error) {
	primaryDir, err := dir.GetOrCreateDir(PrimaryName)
	if err != nil {
		return nil, nil, err
	}
	primary, primaryRoot, err := createIndex(txn, PrimaryName, primaryDir, schema.Primary)
	if err != nil {
		return nil, nil, err
	}

	roots := map[string]string{PrimaryName: primaryRoot}
	auxNames := make([]string, 0, len(schema.Auxiliary))
	auxiliary := make(map[string]*Index, len(schema.Auxiliary))
	for _, def := range schema.Auxiliary {
		auxSchema, err := deriveAuxiliarySchema(schema.Primary, def.Name, def.Columns)
		if err != nil {
			return nil, nil, err
		}
		auxDir, err := dir.GetOrCreateDir(def.Name)
		if err != nil {
			return nil, nil, err
		}
		idx, rootID, err := createIndex(txn, def.Name, auxDir, auxSchema)
		if err != nil {
			return nil, nil, err
		}
		auxNames = append(auxNames, def.Name)
		auxiliary[def.Name] = idx
		roots[def.Name] = rootID
	}

	return &Table{
		name:      name,
		primary:   primary,
		auxNames:  auxNames,
		auxiliary: auxiliary,
		logger:    log.WithCollection(name),
	}, roots, nil
}

// Open reopens an existing table, given every index's last-persisted root
// block id (name -> root id, as returned by Create).
func Open(name string, dir *hostdir.Dir, schema TableSchema, roots map[string]string) (*Table, error) {
	primaryDir, err := dir.GetOrCreateDir(PrimaryName)
	if err != nil {
		return nil, err
	}
	primary, err := openIndex(PrimaryName, primaryDir, schema.Primary, roots[PrimaryName])
	if err != nil {
		return nil, err
	}

	auxNames := make([]string, 0, len(schema.Auxiliary))
	auxiliary := make(map[string]*Index, len(schema.Auxiliary))
	for _, def := range schema.Auxiliary {
		auxSchema, err := deriveAuxiliarySchema(schema.Primary, def.Name, def.Columns)
		if err != nil {
			return nil, err
		}
		auxDir, err := dir.GetOrCreateDir(def.Name)
		if err != nil {
			return nil, err
		}
		idx, err := openIndex(def.Name, auxDir, auxSchema, roots[def.Name])
		if err != nil {
			return nil, err
		}
		auxNames = append(auxNames, def.Name)
		auxiliary[def.Name] = idx
	}

	return &Table{
		name:      name,
		primary:   primary,
		auxNames:  auxNames,
		auxiliary: auxiliary,
		logger:    log.WithCollection(name),
	}, nil
}

// Name returns the table's collection name.
func (t *Table) Name() string { return t.name }

// Roots returns every index's current root block id (name -> root id), for
// a caller to persist durably at commit time.
func (t *Table) Roots(txn txid.ID) map[string]string {
	roots := map[string]string{PrimaryName: t.primary.RootID(txn)}
	for name, idx := range t.auxiliary {
		roots[name] = idx.RootID(txn)
	}
	return roots
}

func (t *Table) primarySchema() IndexSchema { return t.primary.schema }

func (t *Table) columnOrder() []string {
	s := t.primarySchema()
	out := make([]string, 0, len(s.Key)+len(s.Values))
	for _, c := range s.Key {
		out = append(out, c.Name)
	}
	for _, c := range s.Values {
		out = append(out, c.Name)
	}
	return out
}

func (t *Table) primaryKeyOf(row value.Row) (value.Key, error) {
	return t.primarySchema().Key.ToKey(row)
}

// Get returns the full row stored under primary key key, if any.
func (t *Table) Get(txn txid.ID, key value.Key) (value.Row, bool, error) {
	return t.primary.Get(txn, key)
}

// Insert adds a new row; fails with dberr.BadRequest if key already exists.
func (t *Table) Insert(txn txid.ID, key, values value.Key) error {
	_, found, err := t.Get(txn, key)
	if err != nil {
		return err
	}
	if found {
		return dberr.New(dberr.BadRequest, "table.Insert", fmt.Sprintf("key %v already exists", key))
	}
	return t.upsertRow(txn, key, values)
}

// Upsert replaces any row under key, then inserts the new one.
func (t *Table) Upsert(txn txid.ID, key, values value.Key) error {
	existing, found, err := t.Get(txn, key)
	if err != nil {
		return err
	}
	if found {
		if err := t.deleteRowEverywhere(txn, existing); err != nil {
			return err
		}
	}
	return t.upsertRow(txn, key, values)
}

func (t *Table) upsertRow(txn txid.ID, key, values value.Key) error {
	row, err := combineRow(t.primarySchema(), key, values)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.Go(func() error { return t.primary.insertRow(txn, row) })
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		g.Go(func() error { return idx.insertRow(txn, row) })
	}
	return g.Wait()
}

// DeleteRow removes row (a full row, as returned by Get/Stream) from every
// index.
func (t *Table) DeleteRow(txn txid.ID, row value.Row) error {
	return t.deleteRowEverywhere(txn, row)
}

func (t *Table) deleteRowEverywhere(txn txid.ID, row value.Row) error {
	g := new(errgroup.Group)
	g.Go(func() error { return t.primary.deleteRow(txn, row) })
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		g.Go(func() error { return idx.deleteRow(txn, row) })
	}
	return g.Wait()
}

// Delete truncates every index (spec.md §4.G "delete(txid)").
func (t *Table) Delete(txn txid.ID) error {
	g := new(errgroup.Group)
	g.Go(func() error { return t.primary.Truncate(txn) })
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		g.Go(func() error { return idx.Truncate(txn) })
	}
	return g.Wait()
}

// Update streams the whole table and replaces each row's non-key columns
// with the values named in partial, bounded at updateFanOut concurrent
// rewrites (spec.md §5). Fails with dberr.BadRequest if partial names any
// primary-key column.
func (t *Table) Update(txn txid.ID, partial value.Row) error {
	for _, c := range t.primarySchema().Key {
		if _, ok := partial[c.Name]; ok {
			return dberr.New(dberr.BadRequest, "table.Update", fmt.Sprintf("cannot update primary key column %q", c.Name))
		}
	}

	seq, err := t.primary.Stream(txn, value.FullRange(), false)
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(updateFanOut)
	for row := range seq {
		row := row
		g.Go(func() error { return t.updateRow(txn, row, partial) })
	}
	return g.Wait()
}

func (t *Table) updateRow(txn txid.ID, row value.Row, partial value.Row) error {
	updated := make(value.Row, len(row))
	for k, v := range row {
		updated[k] = v
	}
	for k, v := range partial {
		updated[k] = v
	}

	key, err := t.primarySchema().Key.ToKey(row)
	if err != nil {
		return err
	}
	newValues, err := t.primarySchema().Values.ToKey(updated)
	if err != nil {
		return err
	}

	if err := t.deleteRowEverywhere(txn, row); err != nil {
		return err
	}
	return t.upsertRow(txn, key, newValues)
}

// Count returns the number of live rows.
func (t *Table) Count(txn txid.ID) (int, error) {
	return t.primary.Len(txn, value.FullRange())
}

// IsEmpty reports whether the table holds no rows.
func (t *Table) IsEmpty(txn txid.ID) (bool, error) {
	return t.primary.IsEmpty(txn)
}

// Stream yields every row in primary key order.
func (t *Table) Stream(txn txid.ID) (View, error) {
	return newBaseView(t), nil
}

// Slice runs the greedy query planner over bounds (spec.md §4.G "Slice"):
// repeatedly finds the longest leading subset of the remaining bound columns
// (in primary-column order) some index can serve, composing each match into
// the running plan via a Merge node.
func (t *Table) Slice(txn txid.ID, bounds Bounds) (View, error) {
	order := t.columnOrder()
	names := make([]string, 0, len(bounds))
	for _, n := range order {
		if _, ok := bounds[n]; ok {
			names = append(names, n)
		}
	}
	if len(names) != len(bounds) {
		return nil, dberr.New(dberr.BadRequest, "table.Slice", "bounds reference columns not in this table's schema")
	}

	var plan View = newBaseView(t)
	remaining := names
	for len(remaining) > 0 {
		matched := false
		for length := len(remaining); length > 0; length-- {
			subset := remaining[:length]
			cbs := make([]ColumnBound, length)
			for i, n := range subset {
				cbs[i] = bounds[n]
			}
			idx := t.findSupportingIndex(subset, cbs)
			if idx == nil {
				continue
			}
			lower := make([]value.Bound, length)
			upper := make([]value.Bound, length)
			for i := range subset {
				lower[i] = cbs[i].Lower
				upper[i] = cbs[i].Upper
			}
			slice := newIndexSliceView(idx, value.Range{Lower: lower, Upper: upper}, false)
			plan = newMergedView(plan, slice, t)
			metrics.TableIndexSelected.WithLabelValues(t.name, idx.name).Inc()

			remaining = remaining[length:]
			matched = true
			break
		}
		if !matched {
			return nil, dberr.New(dberr.BadRequest, "table.Slice", "no index supports the given bounds")
		}
	}
	return plan, nil
}

func (t *Table) findSupportingIndex(cols []string, cbs []ColumnBound) *Index {
	if t.primary.supportsBounds(cols, cbs) {
		return t.primary
	}
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		if idx.supportsBounds(cols, cbs) {
			return idx
		}
	}
	return nil
}

// OrderBy runs the analogous greedy planner for ordering (spec.md §4.G
// "Order_by"): consumes the longest leading prefix of cols some index
// already sorts by, composing each match via Merge, then reverses the whole
// composed plan if requested.
func (t *Table) OrderBy(txn txid.ID, cols []string, reverse bool) (View, error) {
	var plan View = newBaseView(t)
	remaining := cols
	for len(remaining) > 0 {
		matched := false
		for length := len(remaining); length > 0; length-- {
			subset := remaining[:length]
			idx := t.findIndexForOrder(subset)
			if idx == nil {
				continue
			}
			slice := newIndexSliceView(idx, value.FullRange(), false)
			plan = newMergedView(plan, slice, t)
			metrics.TableIndexSelected.WithLabelValues(t.name, idx.name).Inc()

			remaining = remaining[length:]
			matched = true
			break
		}
		if !matched {
			return nil, dberr.New(dberr.Unsupported, "table.OrderBy", "no index supports this ordering")
		}
	}
	if reverse {
		plan = newReversedView(plan)
	}
	return plan, nil
}

func (t *Table) findIndexForOrder(cols []string) *Index {
	if t.primary.supportsOrderPrefix(cols) {
		return t.primary
	}
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		if idx.supportsOrderPrefix(cols) {
			return idx
		}
	}
	return nil
}

// Commit commits the primary index and every auxiliary concurrently (spec.md
// §5: "Commit serializes TSI-level atomicity by committing each sub-BTI
// concurrently but only after all of their pending writes are staged").
func (t *Table) Commit(txn txid.ID) error {
	g := new(errgroup.Group)
	g.Go(func() error { return t.primary.Commit(txn) })
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		g.Go(func() error { return idx.Commit(txn) })
	}
	return g.Wait()
}

// Rollback discards every pending mutation made under txn across every
// index.
func (t *Table) Rollback(txn txid.ID) {
	t.primary.Rollback(txn)
	for _, idx := range t.auxiliary {
		idx.Rollback(txn)
	}
}

// Finalize releases per-txn bookkeeping across every index.
func (t *Table) Finalize(txn txid.ID) error {
	g := new(errgroup.Group)
	g.Go(func() error { return t.primary.Finalize(txn) })
	for _, name := range t.auxNames {
		idx := t.auxiliary[name]
		g.Go(func() error { return idx.Finalize(txn) })
	}
	return g.Wait()
}
