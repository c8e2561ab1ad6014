package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "import_trigger"

// Trigger origins recorded on a run.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// ContextWithTrigger records what started a run, for the run log.
func ContextWithTrigger(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, origin)
}

// TriggerFromContext returns the origin stored by ContextWithTrigger, or
// TriggerManual when none was set.
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok && v != "" {
		return v
	}
	return TriggerManual
}
