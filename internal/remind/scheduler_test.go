package remind

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"remindbot/internal/storage"
	"remindbot/pkg/logx"
)

type captureDeliverer struct {
	mu    sync.Mutex
	recs  []Record
	fail  bool
	fired chan struct{}
}

func newCaptureDeliverer() *captureDeliverer {
	return &captureDeliverer{fired: make(chan struct{}, 16)}
}

func (d *captureDeliverer) Deliver(_ context.Context, rec Record) error {
	d.mu.Lock()
	d.recs = append(d.recs, rec)
	fail := d.fail
	d.mu.Unlock()
	select {
	case d.fired <- struct{}{}:
	default:
	}
	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *captureDeliverer) delivered() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record(nil), d.recs...)
}

func waitFired(t *testing.T, d *captureDeliverer, within time.Duration) {
	t.Helper()
	select {
	case <-d.fired:
	case <-time.After(within):
		t.Fatalf("no delivery within %v", within)
	}
}

func mustPut(t *testing.T, store storage.Store, rec Record) {
	t.Helper()
	blob, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := store.Set(context.Background(), rec.Key, blob, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func TestSchedulerOneShotFiresAndCleansUp(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	d := newCaptureDeliverer()
	sched := NewScheduler(store, d, time.Local, logx.Nop())
	defer sched.Stop()

	rec := Record{
		Key:      "alarm:clock:1:10:aa",
		SetterID: 10, TargetID: 10,
		Content: "喝水",
		Time:    time.Now().Add(30 * time.Millisecond),
	}
	mustPut(t, store, rec)
	sched.Register(rec)

	waitFired(t, d, 2*time.Second)
	// the post-fire cleanup runs in the callback goroutine
	deadline := time.Now().Add(2 * time.Second)
	for sched.Live(rec.Key) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sched.Live(rec.Key) {
		t.Fatalf("one-shot timer still live after firing")
	}
	for time.Now().Before(deadline) {
		if _, ok, _ := store.Get(context.Background(), rec.Key); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok, _ := store.Get(context.Background(), rec.Key); ok {
		t.Fatalf("spent one-shot record still in store")
	}
	if got := d.delivered(); len(got) != 1 || got[0].Content != "喝水" {
		t.Fatalf("delivered = %+v", got)
	}
}

func TestSchedulerRecurringAdvancesAndPersists(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	d := newCaptureDeliverer()
	sched := NewScheduler(store, d, time.Local, logx.Nop())
	defer sched.Stop()

	rec := Record{
		Key:      "alarm:clock:2:10:bb",
		SetterID: 10, TargetID: 10,
		Content:         "站起来动一动",
		Time:            time.Now().Add(30 * time.Millisecond),
		RecurrenceRule:  "* * * * * *", // every second
		RecurrenceLabel: "每天",
	}
	mustPut(t, store, rec)
	sched.Register(rec)

	waitFired(t, d, 3*time.Second)
	// write-back happens after delivery
	deadline := time.Now().Add(2 * time.Second)
	var stored Record
	for time.Now().Before(deadline) {
		blob, ok, _ := store.Get(context.Background(), rec.Key)
		if ok && json.Unmarshal(blob, &stored) == nil && stored.Time.After(rec.Time) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !stored.Time.After(rec.Time) {
		t.Fatalf("next fire time not advanced: %v", stored.Time)
	}
	if !sched.Live(rec.Key) {
		t.Fatalf("recurring timer disarmed after firing")
	}
}

func TestSchedulerDeliveryFailureStillAdvances(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	d := newCaptureDeliverer()
	d.fail = true
	sched := NewScheduler(store, d, time.Local, logx.Nop())
	defer sched.Stop()

	rec := Record{
		Key:      "alarm:clock:3:10:cc",
		SetterID: 10, TargetID: 10,
		Content: "一次性",
		Time:    time.Now().Add(30 * time.Millisecond),
	}
	mustPut(t, store, rec)
	sched.Register(rec)

	waitFired(t, d, 2*time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.Get(context.Background(), rec.Key); !ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// delivery failed but the lifecycle step completed anyway
	if _, ok, _ := store.Get(context.Background(), rec.Key); ok {
		t.Fatalf("one-shot record kept after failed delivery")
	}
}

func TestSchedulerRecomputesInConfiguredZone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	store := storage.NewMemory()
	sched := NewScheduler(store, newCaptureDeliverer(), loc, logx.Nop())
	defer sched.Stop()
	// clock yields a UTC-located instant, 10:00 in Asia/Shanghai
	now := time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC)
	sched.now = func() time.Time { return now }

	rec := Record{
		Key:      "alarm:clock:6:10:ff",
		SetterID: 10, TargetID: 10,
		Content:         "早八",
		Time:            now.Add(-time.Hour),
		RecurrenceRule:  "0 0 8 * * *",
		RecurrenceLabel: "每天",
	}
	sched.Register(rec)

	at, ok := sched.LiveTime(rec.Key)
	if !ok {
		t.Fatalf("timer not armed")
	}
	want := time.Date(2026, 9, 2, 8, 0, 0, 0, loc)
	if !at.Equal(want) {
		t.Fatalf("armed fire time = %v, want %v", at, want)
	}
}

func TestSchedulerCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	sched := NewScheduler(store, newCaptureDeliverer(), time.Local, logx.Nop())
	defer sched.Stop()

	rec := Record{Key: "alarm:clock:4:10:dd", Time: time.Now().Add(time.Hour)}
	sched.Register(rec)
	if !sched.Live(rec.Key) {
		t.Fatalf("timer not armed")
	}
	sched.Cancel(rec.Key)
	sched.Cancel(rec.Key) // absent key is a no-op
	if sched.Live(rec.Key) {
		t.Fatalf("timer live after cancel")
	}
}

func TestSchedulerRegisterOverwritesSameKey(t *testing.T) {
	t.Parallel()

	store := storage.NewMemory()
	sched := NewScheduler(store, newCaptureDeliverer(), time.Local, logx.Nop())
	defer sched.Stop()

	rec := Record{Key: "alarm:clock:5:10:ee", Time: time.Now().Add(time.Hour)}
	sched.Register(rec)
	rec.Time = time.Now().Add(2 * time.Hour)
	sched.Register(rec)

	if got := sched.LiveCount(); got != 1 {
		t.Fatalf("LiveCount = %d, want 1", got)
	}
	if at, _ := sched.LiveTime(rec.Key); !at.Equal(rec.Time) {
		t.Fatalf("armed time = %v, want %v", at, rec.Time)
	}
}
