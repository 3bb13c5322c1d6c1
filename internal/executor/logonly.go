package executor

import (
	"context"

	"leadpulse/internal/task"
	logx "leadpulse/pkg/logx"
)

// LogOnly logs the command and does nothing else. It backs the noop
// kind and stands in for components (messaging, scraping, analysis)
// that live outside this repo in the demo binary.
type LogOnly struct {
	log logx.Logger
}

func NewLogOnly(log logx.Logger) *LogOnly { return &LogOnly{log: log} }

func (e *LogOnly) Execute(ctx context.Context, cmd task.Command) error {
	_ = ctx
	e.log.Info("executing task payload",
		logx.String("kind", string(cmd.Kind)),
		logx.String("summary", cmd.Summary()),
	)
	return nil
}
