package runner

import (
	"testing"

	"ecsrt/internal/family"
	"ecsrt/internal/handle"
	"ecsrt/internal/matcher"
	"ecsrt/internal/signature"
	"ecsrt/internal/stage"
	"ecsrt/internal/table"
)

func setupSingleColumnSystem(t *testing.T, action func(*matcher.Invocation)) (*family.Registry, *family.EntityIndex, *table.Store, *matcher.System, handle.Entity) {
	t.Helper()
	reg := family.NewRegistry()
	index := family.NewEntityIndex()
	reg.BindEntityLocator(index.FamilyOf)
	store := table.NewStore(reg, index)

	position := handle.Entity(1)
	reg.RegisterComponent(position, family.ComponentRecord{Size: 8})

	sys := matcher.BuildSystem("Move", matcher.OnFrame, []signature.Column{
		{Source: signature.FromEntity, Op: signature.And, Component: position},
	}, action, reg)

	f := reg.Register(0, []handle.Entity{position})
	tbl := store.GetOrCreate(f)
	desc := matcher.AddTable(reg, index, store, sys, sys.Self, f)
	sys.ActiveTables = append(sys.ActiveTables, desc)

	for i, e := range []handle.Entity{10, 11, 12} {
		row := tbl.Insert(e)
		index.Set(e, f, row)
		tbl.SetComponent(row, position, i)
	}

	return reg, index, store, sys, position
}

func TestRunVisitsEveryRowInOrder(t *testing.T) {
	var seen []handle.Entity
	reg, index, store, sys, _ := setupSingleColumnSystem(t, func(inv *matcher.Invocation) {
		seen = append(seen, inv.Table.Entity(inv.Row))
	})

	if _, err := Run(reg, store, index, sys, 1.0, nil, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 3 || seen[0] != 10 || seen[1] != 11 || seen[2] != 12 {
		t.Fatalf("expected rows visited in table order, got %v", seen)
	}
}

func TestRunStrictModeErrorsWithNoActiveTables(t *testing.T) {
	reg := family.NewRegistry()
	index := family.NewEntityIndex()
	store := table.NewStore(reg, index)
	sys := matcher.BuildSystem("Idle", matcher.OnFrame, nil, func(*matcher.Invocation) {}, reg)

	if _, err := Run(reg, store, index, sys, 1.0, nil, Options{Strict: true}); err == nil {
		t.Fatalf("expected a no-match error in strict mode")
	}
	if _, err := Run(reg, store, index, sys, 1.0, nil, Options{}); err != nil {
		t.Fatalf("expected no error when strict mode is off, got %v", err)
	}
}

func TestRunInterruptStopsIteration(t *testing.T) {
	var visited int
	reg, index, store, sys, _ := setupSingleColumnSystem(t, func(inv *matcher.Invocation) {
		visited++
		if visited == 2 {
			inv.InterruptedBy = inv.Table.Entity(inv.Row)
		}
	})

	interrupted, err := Run(reg, store, index, sys, 1.0, nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if visited != 2 {
		t.Fatalf("expected iteration to stop at row 2, visited %d rows", visited)
	}
	if interrupted != 11 {
		t.Fatalf("expected the interrupting entity to be 11, got %d", interrupted)
	}
}

func TestAccumulatePeriodDelaysUntilDue(t *testing.T) {
	reg := family.NewRegistry()
	sys := matcher.BuildSystem("Periodic", matcher.OnFrame, nil, nil, reg)
	sys.Period = 1.0

	if _, due := accumulatePeriod(sys, 0.4); due {
		t.Fatalf("expected not due after 0.4s of a 1.0s period")
	}
	if _, due := accumulatePeriod(sys, 0.4); due {
		t.Fatalf("expected not due after 0.8s of a 1.0s period")
	}
	reported, due := accumulatePeriod(sys, 0.4)
	if !due {
		t.Fatalf("expected due once accumulated time reaches the period")
	}
	if reported < 1.2 {
		t.Fatalf("expected the reported dt to include the full accumulation, got %v", reported)
	}
}

func TestAccumulatePeriodClampsLongPause(t *testing.T) {
	reg := family.NewRegistry()
	sys := matcher.BuildSystem("Periodic", matcher.OnFrame, nil, nil, reg)
	sys.Period = 1.0

	_, due := accumulatePeriod(sys, 10.0)
	if !due {
		t.Fatalf("expected a long pause to be due immediately")
	}
	if sys.TimePassed != 0 {
		t.Fatalf("expected the accumulator clamped to 0 after a pause well beyond the period, got %v", sys.TimePassed)
	}
}

func TestRunPassesStageIntoInvocation(t *testing.T) {
	st := stage.New(0)
	var gotStage *stage.Stage
	var position handle.Entity
	reg, index, store, sys, position := setupSingleColumnSystem(t, func(inv *matcher.Invocation) {
		gotStage = inv.Stage
		inv.AddComponent(inv.Table.Entity(inv.Row), position)
	})

	if _, err := Run(reg, store, index, sys, 1.0, st, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotStage != st {
		t.Fatalf("expected the invocation's Stage to be the one passed into Run")
	}
	if st.Pending() != 3 {
		t.Fatalf("expected one staged op per row, got %d", st.Pending())
	}
}
