package remind

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"remindbot/internal/remind/recur"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

const (
	deliverTimeout = 30 * time.Second
	cleanupTimeout = 5 * time.Second
)

// Deliverer sends a due reminder to its target. Failures are reported as
// errors and logged by the scheduler; they never block the job lifecycle.
type Deliverer interface {
	Deliver(ctx context.Context, rec Record) error
}

// Scheduler owns every live timer, at most one per record key. Timer
// callbacks carry a per-key version so a callback racing a cancel or an
// overwrite finds its version stale and does nothing.
type Scheduler struct {
	store   storage.Store
	deliver Deliverer
	log     logx.Logger
	loc     *time.Location
	now     func() time.Time

	mu       sync.Mutex
	jobs     map[string]*job
	versions map[string]uint64
	closed   bool
}

type job struct {
	rec     Record
	timer   *time.Timer
	version uint64
}

// NewScheduler builds a scheduler that resolves recurrence rules in loc.
// All recompute paths use that zone so armed fire times keep the wall clock
// the rule was written against, whatever the host zone is.
func NewScheduler(store storage.Store, deliver Deliverer, loc *time.Location, log logx.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		store:    store,
		deliver:  deliver,
		log:      log.With(logx.String("component", "scheduler")),
		loc:      loc,
		now:      time.Now,
		jobs:     make(map[string]*job),
		versions: make(map[string]uint64),
	}
}

// Register arms a timer for rec, overwriting any live timer under the same
// key. For a recurring record whose stored time already passed, the next
// occurrence is recomputed; a future stored time is kept as is so the timer
// matches what was persisted.
func (s *Scheduler) Register(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	fireAt := rec.Time
	if rec.Recurring() && !fireAt.After(s.now()) {
		next, err := recur.Next(rec.RecurrenceRule, s.now().In(s.loc))
		if err != nil {
			s.log.Error("recurrence rule unusable, job not armed",
				logx.String("key", rec.Key), logx.Err(err))
			return
		}
		fireAt = next
	}

	if old, ok := s.jobs[rec.Key]; ok {
		old.timer.Stop()
	}
	s.versions[rec.Key]++
	v := s.versions[rec.Key]

	d := fireAt.Sub(s.now())
	if d < 0 {
		d = 0
	}
	key := rec.Key
	j := &job{rec: rec, version: v}
	j.rec.Time = fireAt
	j.timer = time.AfterFunc(d, func() { s.fire(key, v) })
	s.jobs[key] = j

	s.log.Debug("timer armed",
		logx.String("key", key),
		logx.Time("fire_at", fireAt),
		logx.Bool("recurring", rec.Recurring()))
}

// Cancel disarms and forgets the timer for key. Absent keys are a no-op.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[key]; ok {
		j.timer.Stop()
		delete(s.jobs, key)
		s.log.Debug("timer cancelled", logx.String("key", key))
	}
}

// Stop disarms everything. The scheduler is not reusable afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, j := range s.jobs {
		j.timer.Stop()
	}
	s.jobs = make(map[string]*job)
}

// Live reports whether key currently has an armed timer.
func (s *Scheduler) Live(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok
}

// LiveCount returns the number of armed timers.
func (s *Scheduler) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// LiveTime returns the armed fire time for key, if any.
func (s *Scheduler) LiveTime(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return time.Time{}, false
	}
	return j.rec.Time, true
}

func (s *Scheduler) fire(key string, version uint64) {
	s.mu.Lock()
	j, ok := s.jobs[key]
	if !ok || j.version != version || s.closed {
		s.mu.Unlock()
		return
	}
	rec := j.rec
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	if err := s.deliver.Deliver(ctx, rec); err != nil {
		s.log.Error("reminder delivery failed",
			logx.String("key", key),
			logx.Int64("target", rec.TargetID),
			logx.Err(err))
	} else {
		s.log.Info("reminder delivered",
			logx.String("key", key),
			logx.Int64("target", rec.TargetID),
			logx.Bool("recurring", rec.Recurring()))
	}

	if !rec.Recurring() {
		s.mu.Lock()
		if cur, ok := s.jobs[key]; ok && cur.version == version {
			delete(s.jobs, key)
		}
		s.mu.Unlock()
		// The delivery context may already be spent; the cleanup write gets
		// its own budget.
		delCtx, delCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer delCancel()
		if err := s.store.Delete(delCtx, key); err != nil {
			s.log.Error("spent reminder not deleted", logx.String("key", key), logx.Err(err))
		}
		return
	}

	next, err := recur.Next(rec.RecurrenceRule, s.now().In(s.loc))
	if err != nil {
		s.log.Error("recurrence rule unusable after fire, job disarmed",
			logx.String("key", key), logx.Err(err))
		s.Cancel(key)
		return
	}
	rec.Time = next

	// Delivery already happened; a failed write-back means this occurrence
	// can repeat after a restart. The write gets its own budget so a slow
	// delivery cannot starve it.
	if blob, err := json.Marshal(rec); err == nil {
		setCtx, setCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		if err := s.store.Set(setCtx, key, blob, 0); err != nil {
			s.log.Error("next fire time not persisted", logx.String("key", key), logx.Err(err))
		}
		setCancel()
	}

	s.mu.Lock()
	if cur, ok := s.jobs[key]; ok && cur.version == version && !s.closed {
		cur.rec = rec
		cur.timer = time.AfterFunc(next.Sub(s.now()), func() { s.fire(key, version) })
	}
	s.mu.Unlock()
}
