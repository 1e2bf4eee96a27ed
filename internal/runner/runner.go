// Package runner executes a matched system over its active tables.
package runner

import (
	"time"

	"ecsrt/internal/ecserr"
	"ecsrt/internal/family"
	"ecsrt/internal/handle"
	"ecsrt/internal/matcher"
	"ecsrt/internal/stage"
	"ecsrt/internal/table"
)

// Options configures a single Run call.
type Options struct {
	Filter      handle.FamilyID // 0 means "no filter"
	Param       interface{}
	MeasureTime bool
	Strict      bool // NoMatch error when the system has zero active tables
	World       handle.Entity
}

// Run executes sys once, in array order over its active tables, and reports
// the entity that interrupted iteration (handle.None if none did).
func Run(reg *family.Registry, store *table.Store, index *family.EntityIndex, sys *matcher.System, dt float64, st *stage.Stage, opts Options) (handle.Entity, error) {
	if len(sys.ActiveTables) == 0 {
		if opts.Strict {
			return handle.None, ecserr.New(ecserr.NoMatch, "system %q has no active tables", sys.Name)
		}
		return handle.None, nil
	}

	effectiveDT, due := accumulatePeriod(sys, dt)
	if !due {
		return handle.None, nil
	}

	var start time.Time
	if opts.MeasureTime {
		start = time.Now()
	}

	for _, desc := range sys.ActiveTables {
		if opts.Filter != 0 && !reg.IsSubset(opts.Filter, desc.TableFamily) {
			continue
		}
		t, ok := store.Table(desc.TableFamily)
		if !ok {
			continue
		}
		interrupted, err := RunRange(reg, store, index, sys, desc, 0, t.RowCount(), effectiveDT, st, opts)
		if err != nil {
			return handle.None, err
		}
		if interrupted != handle.None {
			return interrupted, nil
		}
	}

	if opts.MeasureTime {
		sys.TimeSpent += time.Since(start).Seconds()
	}
	return handle.None, nil
}

// PeriodDue applies the periodic accumulation rule ahead of a dispatch that
// bypasses Run, such as the worker-pool job path: it reports whether sys is
// due this tick and the delta-time its action should see. Non-periodic
// systems are always due.
func PeriodDue(sys *matcher.System, dt float64) (reported float64, due bool) {
	return accumulatePeriod(sys, dt)
}

// accumulatePeriod implements the periodic-system rule: accumulate dt, only
// run once time_passed >= period, then subtract one period (clamped to zero
// on very long pauses). The delta-time reported to the action is the
// accumulated value before subtraction.
func accumulatePeriod(sys *matcher.System, dt float64) (reported float64, due bool) {
	if sys.Period <= 0 {
		return dt, true
	}
	sys.TimePassed += dt
	if sys.TimePassed < sys.Period {
		return 0, false
	}
	reported = sys.TimePassed
	if reported > 2*sys.Period {
		sys.TimePassed = 0
	} else {
		sys.TimePassed -= sys.Period
	}
	return reported, true
}

// RunRange iterates rows [start, start+count) of desc's table, building one
// Invocation per row and calling sys.Action. It is the shared core between
// a whole-table Run and a worker's partitioned row range (internal/jobs).
func RunRange(reg *family.Registry, store *table.Store, index *family.EntityIndex, sys *matcher.System, desc *matcher.Descriptor, start, count uint32, dt float64, st *stage.Stage, opts Options) (handle.Entity, error) {
	t, ok := store.Table(desc.TableFamily)
	if !ok {
		return handle.None, ecserr.New(ecserr.InvalidEntity, "table for family %d missing", desc.TableFamily)
	}

	refsEntity, refsData := resolveRefs(store, index, desc)

	for row := start; row < start+count; row++ {
		inv := &matcher.Invocation{
			World:      opts.World,
			SystemID:   sys.Self,
			Table:      t,
			Row:        row,
			Offsets:    desc.Offsets,
			Columns:    desc.Components,
			RefsEntity: refsEntity,
			RefsData:   refsData,
			DeltaTime:  dt,
			Param:      opts.Param,
			Stage:      st,
		}
		sys.Action(inv)
		if inv.InterruptedBy != handle.None {
			return inv.InterruptedBy, nil
		}
	}
	return handle.None, nil
}

// resolveRefs looks up the current data for every indirect reference in
// desc, terminated by a handle.None sentinel.
func resolveRefs(store *table.Store, index *family.EntityIndex, desc *matcher.Descriptor) ([]handle.Entity, []interface{}) {
	if len(desc.Refs) == 0 {
		return nil, nil
	}
	entities := make([]handle.Entity, 0, len(desc.Refs)+1)
	data := make([]interface{}, 0, len(desc.Refs)+1)
	for i, ref := range desc.Refs {
		var v interface{}
		if f, row, ok := index.Get(ref.Entity); ok {
			if t, ok2 := store.Table(f); ok2 {
				v, _ = t.GetComponent(row, desc.RefComponent[i])
			}
		}
		entities = append(entities, ref.Entity)
		data = append(data, v)
	}
	entities = append(entities, handle.None)
	return entities, data
}
