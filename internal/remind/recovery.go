package remind

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"remindbot/internal/runtime/lifecycle"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

const recoveryPageSize = 100

// Recovery rebuilds live timers from durable records at startup. It runs at
// most once per process: the gate's single Uninitialized to Initialized
// transition is consumed on the first call, successful or not. A pass that
// aborts on a store error leaves the unread records dormant until the next
// process start.
type Recovery struct {
	gate   *lifecycle.InitGate
	store  storage.Store
	sched  *Scheduler
	prefix string
	log    logx.Logger
	now    func() time.Time
}

func NewRecovery(gate *lifecycle.InitGate, store storage.Store, sched *Scheduler, prefix string, log logx.Logger) *Recovery {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recovery{
		gate:   gate,
		store:  store,
		sched:  sched,
		prefix: prefix,
		log:    log.With(logx.String("component", "recovery")),
		now:    time.Now,
	}
}

// Run scans every record under the key prefix: recurring records and
// future one-shots are re-armed, elapsed one-shots are purged. Calling Run
// again in the same process is a no-op.
func (r *Recovery) Run(ctx context.Context) error {
	if !r.gate.TryInit() {
		r.log.Debug("recovery already ran, skipping")
		return nil
	}

	start := r.now()
	var armed, purged, skipped int
	cursor := ""
	for {
		keys, next, err := r.store.Scan(ctx, r.prefix, cursor, recoveryPageSize)
		if err != nil {
			return fmt.Errorf("recovery scan aborted at cursor %q: %w", cursor, err)
		}
		for _, key := range keys {
			blob, ok, err := r.store.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("recovery read aborted at %q: %w", key, err)
			}
			if !ok {
				continue
			}
			var rec Record
			if err := json.Unmarshal(blob, &rec); err != nil {
				r.log.Warn("skipping unreadable record", logx.String("key", key), logx.Err(err))
				skipped++
				continue
			}
			rec.Key = key

			if rec.Recurring() || rec.Time.After(start) {
				r.sched.Register(rec)
				armed++
				continue
			}
			if err := r.store.Delete(ctx, key); err != nil {
				r.log.Warn("stale record not purged", logx.String("key", key), logx.Err(err))
				continue
			}
			purged++
		}
		if next == "" {
			break
		}
		cursor = next
	}

	r.log.Info("recovery finished",
		logx.Int("armed", armed),
		logx.Int("purged", purged),
		logx.Int("skipped", skipped),
		logx.Duration("took", r.now().Sub(start)))
	return nil
}
