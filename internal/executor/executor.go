package executor

import (
	"context"
	"fmt"
	"sort"

	"leadpulse/internal/task"
)

// Executor performs the work named by a task's command. Implementations
// run synchronously from the scheduler worker's perspective and must
// honor ctx cancellation for anything slow.
type Executor interface {
	Execute(ctx context.Context, cmd task.Command) error
}

// Func adapts a plain function to Executor.
type Func func(ctx context.Context, cmd task.Command) error

func (f Func) Execute(ctx context.Context, cmd task.Command) error { return f(ctx, cmd) }

// Registry maps command kinds to executors. It is built once at boot
// and read-only afterwards, so dispatch needs no locking.
type Registry struct {
	m      map[task.Kind]Executor
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[task.Kind]Executor)}
}

// Register binds an executor to a command kind. Unknown kinds and
// duplicate registrations are boot-time errors, not runtime surprises.
func (r *Registry) Register(kind task.Kind, ex Executor) error {
	if r.sealed {
		return fmt.Errorf("registry is sealed; register executors before Seal")
	}
	known := false
	for _, k := range task.Kinds() {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown command kind %q", string(kind))
	}
	if _, ok := r.m[kind]; ok {
		return fmt.Errorf("executor already registered for kind %q", string(kind))
	}
	if ex == nil {
		return fmt.Errorf("nil executor for kind %q", string(kind))
	}
	r.m[kind] = ex
	return nil
}

// Seal freezes the registry. Called after boot wiring; Register fails
// afterwards.
func (r *Registry) Seal() { r.sealed = true }

// Kinds lists registered kinds, sorted for stable logging.
func (r *Registry) Kinds() []task.Kind {
	out := make([]task.Kind, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute routes the command to its executor.
func (r *Registry) Execute(ctx context.Context, cmd task.Command) error {
	ex, ok := r.m[cmd.Kind]
	if !ok {
		return fmt.Errorf("no executor registered for kind %q", string(cmd.Kind))
	}
	return ex.Execute(ctx, cmd)
}
