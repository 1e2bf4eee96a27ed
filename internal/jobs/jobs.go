// Package jobs partitions a system's matched row range across a fixed-size
// worker pool, using golang.org/x/sync/errgroup's bounded fan-out for a
// fixed-concurrency, wait-for-completion, first-error-wins shape.
package jobs

import (
	"context"

	"golang.org/x/sync/errgroup"

	"ecsrt/internal/family"
	"ecsrt/internal/handle"
	"ecsrt/internal/matcher"
	"ecsrt/internal/runner"
	"ecsrt/internal/stage"
	"ecsrt/internal/table"
)

// RangeJob is one worker's contiguous row range: (system, table_index,
// start_row, row_count). A worker walks forward from TableIndex, crossing
// into subsequent descriptors as RowCount demands.
type RangeJob struct {
	System     *matcher.System
	TableIndex int
	StartRow   uint32
	RowCount   uint32
}

// Partition splits sys's total active row count into up to workerCount
// contiguous RangeJobs.
func Partition(sys *matcher.System, store *table.Store, workerCount int) []RangeJob {
	if workerCount <= 0 || len(sys.ActiveTables) == 0 {
		return nil
	}

	counts := make([]uint32, len(sys.ActiveTables))
	var total uint32
	for i, desc := range sys.ActiveTables {
		t, ok := store.Table(desc.TableFamily)
		if !ok {
			continue
		}
		counts[i] = t.RowCount()
		total += counts[i]
	}
	if total == 0 {
		return nil
	}

	chunk := (total + uint32(workerCount) - 1) / uint32(workerCount)

	var jobsList []RangeJob
	tableIdx, rowInTable := 0, uint32(0)
	for remaining := total; remaining > 0; {
		want := chunk
		if want > remaining {
			want = remaining
		}
		jobsList = append(jobsList, RangeJob{
			System:     sys,
			TableIndex: tableIdx,
			StartRow:   rowInTable,
			RowCount:   want,
		})

		left := want
		for left > 0 {
			avail := counts[tableIdx] - rowInTable
			if left < avail {
				rowInTable += left
				left = 0
			} else {
				left -= avail
				tableIdx++
				rowInTable = 0
			}
		}
		remaining -= want
	}
	return jobsList
}

// Run executes every job in jobsList concurrently, each against its own
// thread-local stage (indexed by its position in jobsList), then returns
// the first entity that interrupted any worker's iteration (order among
// concurrent interruptions is not meaningful) along with the stages used,
// so the caller can merge them at the next phase barrier.
func Run(ctx context.Context, reg *family.Registry, store *table.Store, index *family.EntityIndex, jobsList []RangeJob, dt float64, opts runner.Options) (handle.Entity, []*stage.Stage, error) {
	if len(jobsList) == 0 {
		return handle.None, nil, nil
	}

	stages := make([]*stage.Stage, len(jobsList))
	interrupted := make([]handle.Entity, len(jobsList))

	g, _ := errgroup.WithContext(ctx)
	for i, j := range jobsList {
		i, j := i, j
		stages[i] = stage.New(i)
		g.Go(func() error {
			h, err := runJob(reg, store, index, j, dt, stages[i], opts)
			interrupted[i] = h
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return handle.None, stages, err
	}

	for _, h := range interrupted {
		if h != handle.None {
			return h, stages, nil
		}
	}
	return handle.None, stages, nil
}

func runJob(reg *family.Registry, store *table.Store, index *family.EntityIndex, j RangeJob, dt float64, st *stage.Stage, opts runner.Options) (handle.Entity, error) {
	remaining := j.RowCount
	tableIdx := j.TableIndex
	rowStart := j.StartRow

	for remaining > 0 {
		desc := j.System.ActiveTables[tableIdx]
		t, ok := store.Table(desc.TableFamily)
		if !ok {
			tableIdx++
			rowStart = 0
			continue
		}
		avail := t.RowCount() - rowStart
		take := remaining
		if take > avail {
			take = avail
		}
		interrupted, err := runner.RunRange(reg, store, index, j.System, desc, rowStart, take, dt, st, opts)
		if err != nil {
			return handle.None, err
		}
		if interrupted != handle.None {
			return interrupted, nil
		}
		remaining -= take
		tableIdx++
		rowStart = 0
	}
	return handle.None, nil
}
