package progress

import (
	"context"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/jacvision/tunetrack/app/finetune"
)

// puller requests task status immediately and then every interval until terminal status
type puller struct {
	getter   StatusGetter
	taskID   string
	policy   FailurePolicy
	interval time.Duration
}

func (p *puller) run(ctx context.Context, emit emitFn) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap, err := p.getter.Status(ctx, p.taskID)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil && p.policy == PolicyStop:
			emit(finetune.ErrorSnapshot(err))
			return fmt.Errorf("status request failed: %w", err)
		case err != nil:
			log.Printf("[WARN] status request for task %s failed: %v", p.taskID, err)
			if !emit(finetune.ErrorSnapshot(err)) {
				return ctx.Err()
			}
		default:
			if !emit(snap) {
				return ctx.Err()
			}
			if snap.IsTerminal() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
