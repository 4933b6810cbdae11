package pipeline

import "go.uber.org/zap"

// Events is the single optional event sink for a run. It replaces ad hoc
// callback threading through round constructors; implementations must be safe
// for concurrent use.
type Events interface {
	OnRoundStart(round int, name string)
	OnRetry(round int, reason string)
	OnBudgetWarning(round int, utilization float64)
	OnModuleFailure(round int, module string, err error)
	OnRoundComplete(round int, name string, status Status)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) OnRoundStart(round int, name string) {}

func (NopEvents) OnRetry(round int, reason string) {}

func (NopEvents) OnBudgetWarning(round int, utilization float64) {}

func (NopEvents) OnModuleFailure(round int, module string, err error) {}

func (NopEvents) OnRoundComplete(round int, name string, status Status) {}

// LogEvents forwards events to a zap logger.
type LogEvents struct {
	Log *zap.Logger
}

func (e LogEvents) OnRoundStart(round int, name string) {
	e.Log.Info("round started", zap.Int("round", round), zap.String("name", name))
}

func (e LogEvents) OnRetry(round int, reason string) {
	e.Log.Warn("round retrying", zap.Int("round", round), zap.String("reason", reason))
}

func (e LogEvents) OnBudgetWarning(round int, utilization float64) {
	e.Log.Warn("token budget utilization high", zap.Int("round", round), zap.Float64("utilization", utilization))
}

func (e LogEvents) OnModuleFailure(round int, module string, err error) {
	e.Log.Warn("module analysis failed", zap.Int("round", round), zap.String("module", module), zap.Error(err))
}

func (e LogEvents) OnRoundComplete(round int, name string, status Status) {
	e.Log.Info("round complete", zap.Int("round", round), zap.String("name", name), zap.String("status", string(status)))
}
