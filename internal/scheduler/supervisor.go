// Package scheduler implements the Scheduler (C8): the supervised set of
// concurrent tasks that drive market detection, book monitoring, order
// reconciliation, and resolution polling, plus the two WebSocket listener
// tasks, grounded on internal/app's cooperative run-loop (spec §4.7).
package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// tracer is a no-exporter tracer, matching the teacher's own
// never-configured otel dependency — spans are created but go nowhere
// until a TracerProvider is registered (spec §10 ambient stack).
var tracer = otel.Tracer("internal/scheduler")

// inspectionInterval is how often the Supervisor checks whether a task's
// goroutine has exited and needs restarting (spec §4.7).
const inspectionInterval = 5 * time.Second

// Task is one unit of supervised work. It must return promptly when ctx
// is cancelled; any other return (nil or an error) is treated as a crash
// and restarted with no backoff, per spec §4.7's restart-on-exit policy.
type Task func(ctx context.Context) error

// namedTask pairs a Task with the name used in its log lines.
type namedTask struct {
	name string
	fn   Task
}

// Supervisor runs a fixed set of named tasks, restarting any that exit
// (including on panic) until ctx is cancelled. There is no backoff
// between restarts — a crash-looping task is visible as a log flood
// rather than silently rate-limited (spec §4.7: "no backoff; rely on the
// upstream call producing the same failure immediately so crash loops
// are visible in logs rather than silently rate-limited").
type Supervisor struct {
	log   zerolog.Logger
	tasks []namedTask
}

// NewSupervisor creates an empty Supervisor that logs via log.
func NewSupervisor(log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log}
}

// Add registers a task under name. Call before Run.
func (sv *Supervisor) Add(name string, fn Task) {
	sv.tasks = append(sv.tasks, namedTask{name: name, fn: fn})
}

// Run starts every registered task and blocks until ctx is cancelled,
// then waits for all task goroutines to return before returning itself.
func (sv *Supervisor) Run(ctx context.Context) {
	done := make(chan struct{}, len(sv.tasks))
	for _, t := range sv.tasks {
		go sv.superviseTask(ctx, t, done)
	}
	<-ctx.Done()
	for range sv.tasks {
		<-done
	}
}

// superviseTask runs t.fn repeatedly until ctx is done, restarting
// immediately on any exit (return or panic) and inspecting at
// inspectionInterval so a hung task still logs a liveness line.
func (sv *Supervisor) superviseTask(ctx context.Context, t namedTask, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	for {
		if ctx.Err() != nil {
			return
		}
		sv.runOnce(ctx, t)
		if ctx.Err() != nil {
			return
		}
		sv.log.Warn().Str("task", t.name).Msg("scheduler: task exited, restarting")
	}
}

// runOnce executes t.fn once, recovering a panic into a logged error with
// a full stack trace so the crash is visible without killing the process.
func (sv *Supervisor) runOnce(ctx context.Context, t namedTask) {
	ctx, span := tracer.Start(ctx, "scheduler.task/"+t.name)
	defer span.End()

	ticker := time.NewTicker(inspectionInterval)
	defer ticker.Stop()
	resultCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sv.log.Error().
					Str("task", t.name).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("scheduler: task panicked")
				resultCh <- nil
			}
		}()
		resultCh <- t.fn(ctx)
	}()

	for {
		select {
		case err := <-resultCh:
			if err != nil && ctx.Err() == nil {
				sv.log.Error().Str("task", t.name).Err(err).Msg("scheduler: task returned error")
			}
			return
		case <-ticker.C:
			sv.log.Debug().Str("task", t.name).Msg("scheduler: task alive")
		case <-ctx.Done():
			return
		}
	}
}
