// Package ecsrt is an Entity-Component-System runtime: plain-data
// components attached to opaque entity handles, grouped by composition into
// dense columnar tables, with systems dispatched only over the tables whose
// composition satisfies their signature.
package ecsrt

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ecsrt/internal/ecserr"
	"ecsrt/internal/ecslog"
	"ecsrt/internal/family"
	"ecsrt/internal/handle"
	"ecsrt/internal/introspect"
	"ecsrt/internal/jobs"
	"ecsrt/internal/matcher"
	"ecsrt/internal/runner"
	"ecsrt/internal/scheduler"
	"ecsrt/internal/signature"
	"ecsrt/internal/stage"
	"ecsrt/internal/table"
)

// Entity re-exports the shared handle type so callers never need to import
// internal/handle directly.
type Entity = handle.Entity

// FamilyID re-exports the shared family identifier type.
type FamilyID = handle.FamilyID

// None is the reserved "no entity" handle.
const None = handle.None

// World owns every registry, table, and system for one ECS instance.
type World struct {
	instanceID string
	cfg        WorldConfig
	log        *ecslog.Logger
	monitor    *introspect.Monitor
	monitorSrv *http.Server

	families *family.Registry
	entities *family.EntityIndex
	store    *table.Store
	sched    *scheduler.Scheduler

	nextHandle uint64

	mu           sync.Mutex
	names        map[string]handle.Entity  // component name -> handle
	familyNames  map[string]handle.Entity  // declared family name -> handle
	familyByH    map[handle.Entity]handle.FamilyID
	wiredTables  map[handle.FamilyID]struct{}
	mainStage    *stage.Stage
	tick         uint64
	elapsed      float64
	prefabMarker handle.Entity
}

// New constructs a World. The Prefab marker component is registered
// automatically (zero-size: it carries no data, only tags an entity as a
// data source).
func New(opts ...Option) *World {
	w := &World{
		instanceID:  uuid.NewString(),
		cfg:         newConfig(opts),
		families:    family.NewRegistry(),
		entities:    family.NewEntityIndex(),
		names:       make(map[string]handle.Entity),
		familyNames: make(map[string]handle.Entity),
		familyByH:   make(map[handle.Entity]handle.FamilyID),
		wiredTables: make(map[handle.FamilyID]struct{}),
		mainStage:   stage.New(-1),
	}
	w.store = table.NewStore(w.families, w.entities)
	w.sched = scheduler.New()
	w.families.BindEntityLocator(w.entities.FamilyOf)
	if w.cfg.introspectAddr != "" {
		w.monitor = introspect.New()
		w.instanceID = w.monitor.ID()
	}
	w.log = ecslog.New(fmt.Sprintf("ecsrt[%s]", w.instanceID[:8]), os.Stderr)

	w.prefabMarker = w.allocHandle()
	w.families.RegisterComponent(w.prefabMarker, family.ComponentRecord{Name: "Prefab"})
	w.families.SetPrefabMarker(w.prefabMarker)
	w.names["Prefab"] = w.prefabMarker

	if w.monitor != nil {
		w.monitorSrv = w.monitor.ListenAndServe(w.cfg.introspectAddr)
	}
	return w
}

// Close releases the world's external resources (currently only the
// introspection listener). Entities, tables, and systems need no explicit
// teardown; they are reclaimed once the world is unreferenced.
func (w *World) Close() error {
	if w.monitorSrv != nil {
		return w.monitorSrv.Shutdown(context.Background())
	}
	return nil
}

// InstanceID returns the world's stable, process-unique identifier (useful
// for telling several worlds apart in logs or introspection frames).
func (w *World) InstanceID() string { return w.instanceID }

// Time returns the total delta-time accumulated across every Progress call.
func (w *World) Time() float64 { return w.elapsed }

// PrefabMarker returns the handle of the built-in Prefab component. Adding
// it to an entity marks that entity as a data source: its table is never
// iterated by systems, only read through references.
func (w *World) PrefabMarker() handle.Entity { return w.prefabMarker }

func (w *World) allocHandle() handle.Entity {
	return handle.Entity(atomic.AddUint64(&w.nextHandle, 1))
}

func (w *World) locator() matcher.Locator { return w.entities }

// ComponentRegister registers a new component entity with the given byte
// size and alignment, returning its handle.
func (w *World) ComponentRegister(name string, size, align uintptr) handle.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.names[name]; ok {
		return existing
	}
	h := w.allocHandle()
	w.families.RegisterComponent(h, family.ComponentRecord{Name: name, Size: size, Align: align})
	w.names[name] = h
	return h
}

// FamilyDeclare interns a named family of components and returns a handle
// naming the declaration, usable anywhere a single component identifier is
// accepted in a signature (it expands to one column per member).
func (w *World) FamilyDeclare(name string, components ...handle.Entity) handle.Entity {
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.familyNames[name]; ok {
		return existing
	}
	fid := w.families.Register(handle.None, components)
	h := w.allocHandle()
	w.familyNames[name] = h
	w.familyByH[h] = fid
	return h
}

// FamilyIDOf returns the FamilyID a declared family handle names.
func (w *World) FamilyIDOf(h handle.Entity) (handle.FamilyID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fid, ok := w.familyByH[h]
	return fid, ok
}

// --- signature.Resolver ---

// ResolveComponent implements signature.Resolver: it looks up a component
// name first, then a declared family name.
func (w *World) ResolveComponent(identifier string) (handle.Entity, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if h, ok := w.names[identifier]; ok {
		return h, true
	}
	if h, ok := w.familyNames[identifier]; ok {
		return h, true
	}
	return handle.None, false
}

// FamilyRegister implements signature.Resolver.
func (w *World) FamilyRegister(add handle.Entity, set []handle.Entity) handle.FamilyID {
	return w.families.Register(add, set)
}

// FamilyComponents implements signature.Resolver.
func (w *World) FamilyComponents(f handle.FamilyID) []handle.Entity {
	return w.families.Components(f)
}

// FamilyMembersOf implements signature.Resolver.
func (w *World) FamilyMembersOf(h handle.Entity) ([]handle.Entity, bool) {
	fid, ok := w.FamilyIDOf(h)
	if !ok {
		return nil, false
	}
	return w.families.Components(fid), true
}

// --- entities ---

// EntityNew allocates a new entity in the given family.
func (w *World) EntityNew(f handle.FamilyID) handle.Entity {
	e := w.allocHandle()
	w.moveEntity(e, f)
	return e
}

// EntityDelete removes e from the world entirely.
func (w *World) EntityDelete(e handle.Entity) {
	oldFamily, oldRow, hadOld := w.entities.Get(e)
	if !hadOld {
		return
	}
	if oldTable, ok := w.store.Table(oldFamily); ok {
		w.runTrigger(matcher.OnRemove, oldTable, oldRow, oldFamily)
	}
	w.store.Remove(e)
	if oldTable, ok := w.store.Table(oldFamily); ok && oldTable.RowCount() == 0 {
		w.activateFamily(oldFamily, false)
	}
}

// ComponentAdd adds component c to entity e, moving it to the resulting
// family. Direct (unstaged): legal only from the main thread between ticks,
// per the stage=nil resolution in the design notes — call
// Invocation.AddComponent from inside a system instead.
func (w *World) ComponentAdd(e, c handle.Entity) error {
	oldFamily, _, ok := w.entities.Get(e)
	if !ok {
		return ecserr.New(ecserr.InvalidEntity, "entity %d is not live", e)
	}
	newFamily := w.families.Add(oldFamily, c)
	if newFamily == oldFamily {
		return nil // already has c: add(E,C); add(E,C) == add(E,C)
	}
	w.moveEntity(e, newFamily)
	return nil
}

// ComponentRemove removes component c from entity e.
func (w *World) ComponentRemove(e, c handle.Entity) error {
	oldFamily, _, ok := w.entities.Get(e)
	if !ok {
		return ecserr.New(ecserr.InvalidEntity, "entity %d is not live", e)
	}
	empty := w.families.Register(handle.None, nil)
	newFamily := w.families.Merge(oldFamily, empty, w.families.Singleton(c))
	if newFamily == oldFamily {
		return nil
	}
	w.moveEntity(e, newFamily)
	return nil
}

// ComponentGet reads entity e's current value for component c.
func (w *World) ComponentGet(e, c handle.Entity) (interface{}, bool) {
	f, row, ok := w.entities.Get(e)
	if !ok {
		return nil, false
	}
	t, ok := w.store.Table(f)
	if !ok {
		return nil, false
	}
	return t.GetComponent(row, c)
}

// ComponentSet writes entity e's value for component c in place. It never
// changes e's family, so it never triggers OnAdd/OnRemove; it does run the
// OnSet systems matching e's family.
func (w *World) ComponentSet(e, c handle.Entity, v interface{}) error {
	f, row, ok := w.entities.Get(e)
	if !ok {
		return ecserr.New(ecserr.InvalidEntity, "entity %d is not live", e)
	}
	t, _ := w.store.Table(f)
	if !t.SetComponent(row, c, v) {
		return ecserr.New(ecserr.NotRegistered, "entity %d's family has no component %d", e, c)
	}
	w.runTrigger(matcher.OnSet, t, row, f)
	return nil
}

// moveEntity allocates a row in newFamily's table, copies shared
// components over, deletes the old row, and fires notifications: OnRemove
// while the old row is still intact, OnAdd once the new row is fully
// populated.
func (w *World) moveEntity(e handle.Entity, newFamily handle.FamilyID) {
	oldFamily, oldRow, hadOld := w.entities.Get(e)

	newTable := w.ensureTable(newFamily)
	wasEmptyNew := newTable.RowCount() == 0
	newRow := newTable.Insert(e)
	if w.cfg.verbose {
		if n := newTable.RowCount(); n&(n-1) == 0 {
			w.log.TableGrowth(newFamily, int(n))
		}
	}

	if hadOld {
		oldTable := w.ensureTable(oldFamily)
		for _, c := range newTable.Components() {
			if v, ok := oldTable.GetComponent(oldRow, c); ok {
				newTable.SetComponent(newRow, c, v)
			}
		}
	}

	w.entities.Set(e, newFamily, newRow)

	gained, lost := componentDiff(w.families.Components(oldOrEmpty(hadOld, oldFamily)), w.families.Components(newFamily))
	if len(gained) > 0 {
		w.runTrigger(matcher.OnAdd, newTable, newRow, newFamily)
	}

	if hadOld {
		oldTable, _ := w.store.Table(oldFamily)
		if len(lost) > 0 {
			w.runTrigger(matcher.OnRemove, oldTable, oldRow, oldFamily)
		}
		moved, didMove := oldTable.Delete(oldRow)
		if didMove {
			w.entities.Set(moved, oldFamily, oldRow)
		}
		if oldTable.RowCount() == 0 {
			w.activateFamily(oldFamily, false)
		}
	}

	if wasEmptyNew {
		w.activateFamily(newFamily, true)
	}
}

func oldOrEmpty(hadOld bool, f handle.FamilyID) handle.FamilyID {
	if hadOld {
		return f
	}
	return 0
}

func componentDiff(oldComps, newComps []handle.Entity) (gained, lost []handle.Entity) {
	oldSet := make(map[handle.Entity]struct{}, len(oldComps))
	for _, c := range oldComps {
		oldSet[c] = struct{}{}
	}
	newSet := make(map[handle.Entity]struct{}, len(newComps))
	for _, c := range newComps {
		newSet[c] = struct{}{}
	}
	for _, c := range newComps {
		if _, ok := oldSet[c]; !ok {
			gained = append(gained, c)
		}
	}
	for _, c := range oldComps {
		if _, ok := newSet[c]; !ok {
			lost = append(lost, c)
		}
	}
	return gained, lost
}

// ensureTable materializes f's table and, the first time it is created,
// installs descriptors for every system whose signature already matches it.
func (w *World) ensureTable(f handle.FamilyID) *table.Table {
	w.mu.Lock()
	_, wired := w.wiredTables[f]
	w.mu.Unlock()

	t := w.store.GetOrCreate(f)
	if wired {
		return t
	}

	for _, sys := range w.sched.AllSystems() {
		if matcher.MatchTable(w.families, w.locator(), sys, f) {
			desc := matcher.AddTable(w.families, w.locator(), w.store, sys, sys.Self, f)
			sys.InactiveTables = append(sys.InactiveTables, desc)
		}
	}

	w.mu.Lock()
	w.wiredTables[f] = struct{}{}
	w.mu.Unlock()
	return t
}

func (w *World) activateFamily(f handle.FamilyID, active bool) {
	for _, sys := range w.sched.AllSystems() {
		if desc := findDescriptor(sys, f); desc != nil {
			matcher.Activate(sys, desc, active)
		}
	}
}

func findDescriptor(sys *matcher.System, f handle.FamilyID) *matcher.Descriptor {
	for _, d := range sys.ActiveTables {
		if d.TableFamily == f {
			return d
		}
	}
	for _, d := range sys.InactiveTables {
		if d.TableFamily == f {
			return d
		}
	}
	return nil
}

// runTrigger runs every OnAdd/OnRemove/OnSet system matching family f
// against a single row, building a fresh descriptor rather than reusing a
// wired one (these fire at move time, off the hot iteration path).
func (w *World) runTrigger(kind matcher.Kind, t *table.Table, row uint32, f handle.FamilyID) {
	for _, sys := range w.sched.Systems(kind) {
		if !matcher.MatchTable(w.families, w.locator(), sys, f) {
			continue
		}
		desc := matcher.AddTable(w.families, w.locator(), w.store, sys, sys.Self, f)
		runner.RunRange(w.families, w.store, w.entities, sys, desc, row, 1, 0, w.mainStage, runner.Options{World: handle.None})
	}
}

// --- systems ---

// SystemNew declares a system. columns is the already-parsed signature
// (internal/signature.Adapter.Columns()); period <= 0 means non-periodic.
func (w *World) SystemNew(name string, kind matcher.Kind, columns []signature.Column, action func(*matcher.Invocation), period float64) handle.Entity {
	h := w.allocHandle()
	sys := matcher.BuildSystem(name, kind, columns, action, w.families)
	sys.Self = h
	sys.Period = period

	// Commit the system's own FromSystem components onto its entity before
	// registration, so FromSystem refs read real storage and the commit's
	// table wiring cannot double-install descriptors for sys itself.
	if fromSys := sys.AndFromSystem(); len(w.families.Components(fromSys)) > 0 {
		w.moveEntity(h, fromSys)
	}

	w.sched.Register(sys)

	tables := w.store.Tables()
	sort.Slice(tables, func(i, j int) bool { return tables[i].Family < tables[j].Family })
	for _, t := range tables {
		if matcher.MatchTable(w.families, w.locator(), sys, t.Family) {
			desc := matcher.AddTable(w.families, w.locator(), w.store, sys, h, t.Family)
			if t.RowCount() > 0 {
				sys.ActiveTables = append(sys.ActiveTables, desc)
			} else {
				sys.InactiveTables = append(sys.InactiveTables, desc)
			}
			w.mu.Lock()
			w.wiredTables[t.Family] = struct{}{}
			w.mu.Unlock()
		}
	}
	return h
}

// NewAdapter returns a signature.Adapter bound to this world's resolvers,
// for turning lexer callbacks into a Column sequence before calling
// SystemNew.
func (w *World) NewAdapter() *signature.Adapter { return signature.NewAdapter(w) }

// RunSystem runs sysHandle once, outside the normal phase order, with an
// optional filter family and opaque param. Returns the entity that
// interrupted iteration, if any.
func (w *World) RunSystem(sysHandle handle.Entity, dt float64, filter handle.FamilyID, param interface{}) (handle.Entity, error) {
	sys := w.systemByHandle(sysHandle)
	if sys == nil {
		return handle.None, ecserr.New(ecserr.NotRegistered, "no system with handle %d", sysHandle)
	}
	opts := runner.Options{
		Filter:      filter,
		Param:       param,
		MeasureTime: w.cfg.measureSystemTime,
		Strict:      true,
		World:       handle.None,
	}
	return runner.Run(w.families, w.store, w.entities, sys, dt, w.mainStage, opts)
}

func (w *World) systemByHandle(h handle.Entity) *matcher.System {
	for _, sys := range w.sched.AllSystems() {
		if sys.Self == h {
			return sys
		}
	}
	return nil
}

// --- scheduling ---

// Progress runs one tick across every fixed phase in order, partitioning
// parallelizable systems across the configured worker pool and merging
// staged writes at each phase barrier. It returns false once RequestQuit
// has been called.
func (w *World) Progress(dt float64) bool {
	start := time.Now()
	w.tick++
	w.elapsed += dt
	for _, phase := range scheduler.TickOrder {
		w.runPhase(phase, dt)
	}
	if w.monitor != nil {
		w.publishFrame(dt, time.Since(start))
	}
	return !w.sched.QuitRequested()
}

// RequestQuit asks the scheduler to stop ticking after the current Progress
// call returns.
func (w *World) RequestQuit() { w.sched.RequestQuit() }

func (w *World) runPhase(phase matcher.Kind, dt float64) {
	systems := w.sched.ActiveSystems(phase)
	if len(systems) == 0 {
		return
	}
	phaseStart := time.Now()

	var stages []*stage.Stage
	opts := runner.Options{MeasureTime: w.cfg.measureSystemTime, World: handle.None}

	for _, sys := range systems {
		rowTotal := activeRowCount(w.store, sys)
		if w.cfg.workerPoolSize > 1 && rowTotal > uint32(w.cfg.workerPoolSize) {
			effDT, due := runner.PeriodDue(sys, dt)
			if !due {
				continue
			}
			var sysStart time.Time
			if w.cfg.measureSystemTime {
				sysStart = time.Now()
			}
			jobList := jobs.Partition(sys, w.store, w.cfg.workerPoolSize)
			_, jobStages, err := jobs.Run(context.Background(), w.families, w.store, w.entities, jobList, effDT, opts)
			if err == nil {
				stages = append(stages, jobStages...)
			}
			if w.cfg.measureSystemTime {
				sys.TimeSpent += time.Since(sysStart).Seconds()
			}
			continue
		}
		runner.Run(w.families, w.store, w.entities, sys, dt, w.mainStage, opts)
	}

	if w.mainStage.Pending() > 0 {
		stages = append(stages, w.mainStage)
	}
	if len(stages) > 0 {
		opCount := 0
		for _, st := range stages {
			opCount += st.Pending()
		}
		stage.MergeAll(stages, w.applyOp)
		if w.cfg.verbose {
			w.log.Merge(len(stages), opCount)
		}
	}

	if w.cfg.verbose {
		w.log.Tick(phase.String(), len(systems), time.Since(phaseStart))
	}
}

func activeRowCount(store *table.Store, sys *matcher.System) uint32 {
	var total uint32
	for _, d := range sys.ActiveTables {
		if t, ok := store.Table(d.TableFamily); ok {
			total += t.RowCount()
		}
	}
	return total
}

// applyOp replays one deferred op from a worker stage against the main
// world, in the order stage.MergeAll hands them to us.
func (w *World) applyOp(op stage.Op) {
	switch op.Kind {
	case stage.OpAddComponent:
		w.ComponentAdd(op.Entity, op.Component)
	case stage.OpRemoveComponent:
		w.ComponentRemove(op.Entity, op.Component)
	case stage.OpSetComponent:
		w.ComponentSet(op.Entity, op.Component, op.Value)
	case stage.OpNewEntity:
		w.moveEntity(op.Entity, op.Family)
	case stage.OpDeleteEntity:
		w.EntityDelete(op.Entity)
	}
}

func (w *World) publishFrame(dt float64, tickTime time.Duration) {
	var stats []introspect.SystemStat
	for _, sys := range w.sched.AllSystems() {
		stats = append(stats, introspect.SystemStat{
			Name:           sys.Name,
			Enabled:        sys.Enabled,
			ActiveTables:   len(sys.ActiveTables),
			InactiveTables: len(sys.InactiveTables),
			TimeSpent:      sys.TimeSpent,
		})
	}
	w.monitor.Publish(introspect.Frame{
		Tick:       w.tick,
		DeltaTime:  dt,
		TickTime:   tickTime,
		TableCount: len(w.store.Tables()),
		Systems:    stats,
	})
}
