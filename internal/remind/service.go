package remind

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remindbot/internal/remind/recur"
	"remindbot/internal/remind/timeparse"
	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

// ServiceConfig carries the engine knobs resolved from configuration.
type ServiceConfig struct {
	KeyPrefix    string
	Location     *time.Location
	PendingTTL   time.Duration
	OneshotSlack time.Duration // extra store TTL past a one-shot's fire time
	Owners       []int64       // global administrators
}

// Scope selects which reminder list an operation addresses: GroupID zero
// means the requesting user's private reminders.
type Scope struct {
	GroupID int64
	UserID  int64
}

// Preview is what BeginCreate resolved, shown to the user while the engine
// waits for the message content.
type Preview struct {
	At        time.Time
	Label     string // recurrence label, empty for one-shot
	Recurring bool
}

// CancelResult is the outcome for one requested index in a batch cancel.
type CancelResult struct {
	Index  int
	Record Record
	Err    error
}

// Service orchestrates the two-step creation flow, listing, and batch
// cancellation on top of the store and the scheduler.
type Service struct {
	cfg     ServiceConfig
	store   storage.Store
	sched   *Scheduler
	pending *PendingStore
	log     logx.Logger
	now     func() time.Time
	randHex func() string

	ownersMu sync.RWMutex
	owners   []int64
}

func NewService(cfg ServiceConfig, store storage.Store, sched *Scheduler, log logx.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		sched:   sched,
		pending: NewPendingStore(cfg.PendingTTL),
		log:     log.With(logx.String("component", "reminders")),
		now:     time.Now,
		randHex: randomHex,
		owners:  cfg.Owners,
	}
}

func randomHex() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// BeginCreate parses the time expression and, on success, parks a pending
// creation for the conversation until the content arrives. Nothing is
// persisted or armed yet.
func (s *Service) BeginCreate(convKey string, requester, target, groupID int64, timeText string) (Preview, error) {
	now := s.now().In(s.cfg.Location)

	res, err := timeparse.Parse(timeText, now)
	if err != nil {
		return Preview{}, err
	}

	pend := Pending{RequesterID: requester, TargetID: target, GroupID: groupID}
	var pv Preview
	if res.Kind == timeparse.Recurring {
		rule, err := recur.Compile(res.Pattern)
		if err != nil {
			return Preview{}, err
		}
		first, err := recur.Next(rule.Spec, now)
		if err != nil {
			return Preview{}, err
		}
		pend.At, pend.Rule, pend.Label = first, rule.Spec, rule.Label
		pv = Preview{At: first, Label: rule.Label, Recurring: true}
	} else {
		pend.At = res.At
		pv = Preview{At: res.At}
	}

	s.pending.Put(convKey, pend)
	return pv, nil
}

// CompleteCreate consumes the conversation's pending creation, persists the
// record, and arms its timer. Blank content leaves the pending creation in
// place so the user can answer again.
func (s *Service) CompleteCreate(ctx context.Context, convKey, content string) (Record, error) {
	content = strings.TrimSpace(content)
	if _, ok := s.pending.Peek(convKey); !ok {
		return Record{}, ErrNoPending
	}
	if content == "" {
		return Record{}, ErrEmptyContent
	}
	pend, ok := s.pending.Take(convKey)
	if !ok {
		return Record{}, ErrNoPending
	}

	rec := Record{
		Key:             fmt.Sprintf("%s%d:%d:%s", s.cfg.KeyPrefix, pend.At.Unix(), pend.RequesterID, s.randHex()),
		SetterID:        pend.RequesterID,
		TargetID:        pend.TargetID,
		GroupID:         pend.GroupID,
		Content:         content,
		Time:            pend.At,
		RecurrenceRule:  pend.Rule,
		RecurrenceLabel: pend.Label,
	}

	blob, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode reminder: %w", err)
	}
	var ttl time.Duration
	if !rec.Recurring() {
		ttl = rec.Time.Sub(s.now()) + s.cfg.OneshotSlack
	}
	if err := s.store.Set(ctx, rec.Key, blob, ttl); err != nil {
		// Put the pending creation back so the user can retry the same
		// content after a transient store failure.
		s.pending.Put(convKey, pend)
		return Record{}, fmt.Errorf("save reminder: %w", err)
	}

	s.sched.Register(rec)
	s.log.Info("reminder created",
		logx.String("key", rec.Key),
		logx.Int64("setter", rec.SetterID),
		logx.Int64("group", rec.GroupID),
		logx.Bool("recurring", rec.Recurring()),
		logx.Time("fire_at", rec.Time))
	return rec, nil
}

// AbortCreate drops the conversation's pending creation, if any.
func (s *Service) AbortCreate(convKey string) { s.pending.Drop(convKey) }

// List fetches every record matching scope, sorted by next fire time. The
// result is recomputed on every call; index-based cancellation is only
// meaningful against a list fetched in the same request.
func (s *Service) List(ctx context.Context, scope Scope) ([]Record, error) {
	recs, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if scope.GroupID != 0 {
			if rec.GroupID == scope.GroupID {
				out = append(out, rec)
			}
		} else if rec.Private() && rec.TargetID == scope.UserID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// ListAll returns every record in the store, sorted by next fire time.
// Reserved for global administrators.
func (s *Service) ListAll(ctx context.Context) ([]Record, error) {
	recs, err := s.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Time.Before(recs[j].Time) })
	return recs, nil
}

func (s *Service) scanAll(ctx context.Context) ([]Record, error) {
	var recs []Record
	cursor := ""
	for {
		keys, next, err := s.store.Scan(ctx, s.cfg.KeyPrefix, cursor, recoveryPageSize)
		if err != nil {
			return nil, fmt.Errorf("list reminders: %w", err)
		}
		for _, key := range keys {
			blob, ok, err := s.store.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("list reminders: %w", err)
			}
			if !ok {
				continue
			}
			var rec Record
			if err := json.Unmarshal(blob, &rec); err != nil {
				s.log.Warn("skipping unreadable record", logx.String("key", key), logx.Err(err))
				continue
			}
			rec.Key = key
			recs = append(recs, rec)
		}
		if next == "" {
			return recs, nil
		}
		cursor = next
	}
}

// IsOwner reports whether id is a configured global administrator.
func (s *Service) IsOwner(id int64) bool {
	s.ownersMu.RLock()
	defer s.ownersMu.RUnlock()
	for _, o := range s.owners {
		if o == id {
			return true
		}
	}
	return false
}

// SetOwners replaces the global administrator list on config reload.
func (s *Service) SetOwners(ids []int64) {
	s.ownersMu.Lock()
	s.owners = append([]int64(nil), ids...)
	s.ownersMu.Unlock()
}

// Cancel re-fetches the scope's list and cancels the 1-based indices in it.
// Each index succeeds or fails independently: out-of-range indices report
// ErrNotFound, and a requester who is not the setter, not a global
// administrator, and not a group admin (group scope only) gets
// ErrNotAuthorized while the record stays scheduled.
func (s *Service) Cancel(ctx context.Context, scope Scope, requester int64, groupAdmin bool, indices []int) ([]CancelResult, error) {
	list, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}

	results := make([]CancelResult, 0, len(indices))
	for _, idx := range indices {
		res := CancelResult{Index: idx}
		if idx < 1 || idx > len(list) {
			res.Err = ErrNotFound
			results = append(results, res)
			continue
		}
		rec := list[idx-1]
		res.Record = rec

		allowed := requester == rec.SetterID ||
			s.IsOwner(requester) ||
			(scope.GroupID != 0 && groupAdmin)
		if !allowed {
			res.Err = ErrNotAuthorized
			results = append(results, res)
			continue
		}

		s.sched.Cancel(rec.Key)
		if err := s.store.Delete(ctx, rec.Key); err != nil {
			res.Err = fmt.Errorf("delete reminder: %w", err)
		} else {
			s.log.Info("reminder cancelled",
				logx.String("key", rec.Key),
				logx.Int64("by", requester))
		}
		results = append(results, res)
	}
	return results, nil
}
