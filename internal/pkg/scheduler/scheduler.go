package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/velvetline/velvetline/internal/pkg/auditlog"
	"github.com/velvetline/velvetline/internal/pkg/clock"
)

// ErrCycleRunning is returned when a reconciliation cycle is requested while
// the previous one is still draining. The request is rejected, not queued.
var ErrCycleRunning = errors.New("reconciliation cycle already running")

// TaskFunc is one independent cleanup task. The detail map ends up in the
// cycle report and the audit trail.
type TaskFunc func(ctx context.Context) (map[string]interface{}, error)

type task struct {
	name string
	run  TaskFunc
}

// TaskResult is the outcome of a single task within one cycle.
type TaskResult struct {
	Success  bool                   `json:"success"`
	Detail   map[string]interface{} `json:"detail,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration"`
}

// CycleReport aggregates all task outcomes of one reconciliation cycle.
type CycleReport struct {
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration"`
	Tasks     map[string]TaskResult `json:"tasks"`
}

// Succeeded counts tasks that completed without error.
func (r *CycleReport) Succeeded() int {
	n := 0
	for _, t := range r.Tasks {
		if t.Success {
			n++
		}
	}
	return n
}

// Scheduler runs a fixed set of independent cleanup tasks concurrently and
// collects per-task outcomes. One task failing never blocks the others; a
// failed task is simply attempted again on the next tick.
type Scheduler struct {
	db      *gorm.DB
	clock   clock.Clock
	tasks   []task
	running atomic.Bool
}

// New creates an empty scheduler; tasks are attached with Register.
func New(db *gorm.DB, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Scheduler{db: db, clock: clk}
}

// Register attaches a named task. Registration order carries no execution
// ordering guarantee.
func (s *Scheduler) Register(name string, fn TaskFunc) {
	s.tasks = append(s.tasks, task{name: name, run: fn})
}

// RunCycle executes all registered tasks concurrently, waits for every one
// to settle and returns the aggregated report. Overlapping cycles are
// rejected with ErrCycleRunning.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer s.running.Store(false)

	started := s.clock.Now()
	report := &CycleReport{
		StartedAt: started,
		Tasks:     make(map[string]TaskResult, len(s.tasks)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, t := range s.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			result := s.runTask(ctx, t)
			mu.Lock()
			report.Tasks[t.name] = result
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	report.Duration = time.Since(started)
	log.Infof("[Scheduler] Cycle finished in %s (%d/%d tasks succeeded)",
		report.Duration.Round(time.Millisecond), report.Succeeded(), len(report.Tasks))

	auditlog.RecordCleanupRun(s.db, "reconciliation_cycle", map[string]interface{}{
		"duration_ms": report.Duration.Milliseconds(),
		"succeeded":   report.Succeeded(),
		"total":       len(report.Tasks),
	})
	return report, nil
}

// runTask isolates one task: a panic or error is captured into the report
// and never propagates to sibling tasks.
func (s *Scheduler) runTask(ctx context.Context, t task) (result TaskResult) {
	started := time.Now()
	defer func() {
		result.Duration = time.Since(started)
		if r := recover(); r != nil {
			result = TaskResult{
				Success:  false,
				Error:    fmt.Sprintf("panic: %v", r),
				Duration: time.Since(started),
			}
			log.Errorf("[Scheduler] Task %s panicked: %v", t.name, r)
		}
	}()

	detail, err := t.run(ctx)
	if err != nil {
		log.Errorf("[Scheduler] Task %s failed: %v", t.name, err)
		return TaskResult{Success: false, Detail: detail, Error: err.Error()}
	}
	return TaskResult{Success: true, Detail: detail}
}
