package runner

import (
	"context"
	"fmt"

	"zone_bot/pkg/logger"
)

// warmup заливает исторические бары в окно инструмента.
// Параллельно прогревается не больше cap(sem) символов.
func (r *Runner) warmup(ctx context.Context, inst *instrument) error {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.sem }()

	bars, err := r.feed.FetchInitialData(ctx, inst.Symbol, r.cfg.Runner.InitialInterval, r.cfg.Runner.InitialBars)
	if err != nil {
		return fmt.Errorf("warmup %s: %w", inst.Symbol, err)
	}

	added := inst.Seed(bars)
	logger.Info("[WARMUP] %s: +%d/%d bars, window %d/%d",
		inst.Symbol, added, len(bars), inst.Window.Len(), inst.Window.Cap())
	if inst.NeedsWarmup() {
		return fmt.Errorf("warmup %s: window %d/%d, retry next tick", inst.Symbol, inst.Window.Len(), inst.Window.Cap())
	}
	return nil
}
