package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/remind"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Opt    *transport.SendOptions
}

type fakeAdapter struct {
	mu     sync.Mutex
	sent   []sentMessage
	admins map[int64]bool
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChatID: to.ChatID, Text: text, Opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) IsChatAdmin(_ context.Context, _ int64, userID int64) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakeAdapter) lastSent(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestRouter(t *testing.T) (*Router, *fakeAdapter, *remind.Scheduler) {
	t.Helper()
	ad := &fakeAdapter{admins: map[int64]bool{}}
	store := storage.NewMemory()
	sched := remind.NewScheduler(store, NewNotifier(ad, logx.Nop()), time.UTC, logx.Nop())
	t.Cleanup(sched.Stop)
	svc := remind.NewService(remind.ServiceConfig{
		KeyPrefix:    "alarm:clock:",
		Location:     time.UTC,
		PendingTTL:   2 * time.Minute,
		OneshotSlack: 5 * time.Minute,
	}, store, sched, logx.Nop())
	return NewRouter(ad, svc, logx.Nop()), ad, sched
}

func privateMsg(from int64, text string) transport.Update {
	return transport.Update{Message: &transport.Message{
		ID: 1, ChatID: from, FromID: from, Text: text,
	}}
}

func groupMsg(chat, from int64, text string) transport.Update {
	return transport.Update{Message: &transport.Message{
		ID: 1, ChatID: chat, FromID: from, Text: text, IsGroup: true,
	}}
}

func TestRouterCreateFlow(t *testing.T) {
	t.Parallel()
	r, ad, sched := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, privateMsg(10, "#定时闹钟 10分钟后"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "请发送提醒内容") {
		t.Fatalf("first turn reply = %q", got)
	}

	r.HandleUpdate(ctx, privateMsg(10, "喝水"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "设置成功") {
		t.Fatalf("second turn reply = %q", got)
	}
	if sched.LiveCount() != 1 {
		t.Fatalf("timer not armed after create flow")
	}
}

func TestRouterCreateShortAlias(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	r.HandleUpdate(context.Background(), privateMsg(10, "#定时 10分钟后"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "请发送提醒内容") {
		t.Fatalf("alias reply = %q", got)
	}
}

func TestRouterUnparsableTime(t *testing.T) {
	t.Parallel()
	r, ad, sched := newTestRouter(t)

	r.HandleUpdate(context.Background(), privateMsg(10, "#定时闹钟 呜哇呀"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "没看懂") {
		t.Fatalf("reply = %q", got)
	}
	if sched.LiveCount() != 0 {
		t.Fatalf("timer armed for unparsable time")
	}
}

func TestRouterPastTime(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	r.HandleUpdate(context.Background(), privateMsg(10, "#定时闹钟 2000-01-01 08:00"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "过去") {
		t.Fatalf("reply = %q", got)
	}
}

func TestRouterIgnoresChatterWithoutPending(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)

	r.HandleUpdate(context.Background(), privateMsg(10, "今天天气不错"))
	if n := ad.sentCount(); n != 0 {
		t.Fatalf("replied %d times to plain chatter", n)
	}
}

func TestRouterListAndCancel(t *testing.T) {
	t.Parallel()
	r, ad, sched := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, groupMsg(5, 10, "#定时闹钟 1小时后"))
	r.HandleUpdate(ctx, groupMsg(5, 10, "提醒大家开会"))

	r.HandleUpdate(ctx, groupMsg(5, 10, "#闹钟列表"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "1. ") || !strings.Contains(got, "提醒大家开会") {
		t.Fatalf("list reply = %q", got)
	}

	r.HandleUpdate(ctx, groupMsg(5, 10, "#闹钟取消 1"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "已取消") {
		t.Fatalf("cancel reply = %q", got)
	}
	if sched.LiveCount() != 0 {
		t.Fatalf("timer survived cancellation")
	}

	r.HandleUpdate(ctx, groupMsg(5, 10, "#闹钟列表"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "没有") {
		t.Fatalf("empty list reply = %q", got)
	}
}

func TestRouterCancelWithoutSpace(t *testing.T) {
	t.Parallel()
	r, ad, sched := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, privateMsg(10, "#定时闹钟 1小时后"))
	r.HandleUpdate(ctx, privateMsg(10, "紧贴序号"))

	r.HandleUpdate(ctx, privateMsg(10, "#闹钟取消1"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "已取消") {
		t.Fatalf("cancel reply = %q", got)
	}
	if sched.LiveCount() != 0 {
		t.Fatalf("timer survived cancellation")
	}
}

func TestRouterCancelAuthzInGroup(t *testing.T) {
	t.Parallel()
	r, ad, sched := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, groupMsg(5, 10, "#定时闹钟 1小时后"))
	r.HandleUpdate(ctx, groupMsg(5, 10, "只有我能取消"))

	r.HandleUpdate(ctx, groupMsg(5, 11, "#闹钟取消 1"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "管理员") {
		t.Fatalf("authz reply = %q", got)
	}
	if sched.LiveCount() != 1 {
		t.Fatalf("record cancelled without authorization")
	}

	// promote user 11 to group admin and retry
	ad.mu.Lock()
	ad.admins[11] = true
	ad.mu.Unlock()
	r.HandleUpdate(ctx, groupMsg(5, 11, "#闹钟取消 1"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "已取消") {
		t.Fatalf("admin cancel reply = %q", got)
	}
	if sched.LiveCount() != 0 {
		t.Fatalf("admin cancel left the timer live")
	}
}

func TestRouterHelp(t *testing.T) {
	t.Parallel()
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, privateMsg(10, "#闹钟帮助"))
	if got := ad.lastSent(t).Text; got != helpText {
		t.Fatalf("help reply = %q", got)
	}
	r.HandleUpdate(ctx, privateMsg(10, "#闹钟详细帮助"))
	if got := ad.lastSent(t).Text; got != helpDetailText {
		t.Fatalf("detail help reply = %q", got)
	}
}

func TestRouterListAllOwnerOnly(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{admins: map[int64]bool{}}
	store := storage.NewMemory()
	sched := remind.NewScheduler(store, NewNotifier(ad, logx.Nop()), time.UTC, logx.Nop())
	t.Cleanup(sched.Stop)
	svc := remind.NewService(remind.ServiceConfig{
		KeyPrefix:    "alarm:clock:",
		Location:     time.UTC,
		PendingTTL:   2 * time.Minute,
		OneshotSlack: 5 * time.Minute,
		Owners:       []int64{99},
	}, store, sched, logx.Nop())
	r := NewRouter(ad, svc, logx.Nop())
	ctx := context.Background()

	r.HandleUpdate(ctx, privateMsg(10, "#全部闹钟列表"))
	if got := ad.lastSent(t).Text; !strings.Contains(got, "没有权限") {
		t.Fatalf("non-owner reply = %q", got)
	}
	r.HandleUpdate(ctx, privateMsg(99, "#全部闹钟列表"))
	if got := ad.lastSent(t).Text; strings.Contains(got, "没有权限") {
		t.Fatalf("owner denied: %q", got)
	}
}

func TestParseIndices(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []int
	}{
		{"1", []int{1}},
		{"1 3", []int{1, 3}},
		{"1,3", []int{1, 3}},
		{"1，3", []int{1, 3}},
		{"2 2", []int{2, 2}},
	}
	for _, tc := range cases {
		got := parseIndices(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("parseIndices(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("parseIndices(%q) = %v, want %v", tc.in, got, tc.want)
			}
		}
	}
}

func TestFireLabel(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	oneShot := remind.Record{Time: time.Date(2030, 9, 12, 7, 30, 15, 0, loc)}
	if got := fireLabel(oneShot); got != "09-12 07:30:15" {
		t.Fatalf("one-shot label = %q", got)
	}

	daily := remind.Record{
		Time:            time.Date(2030, 9, 12, 20, 30, 15, 0, loc),
		RecurrenceRule:  "15 30 20 * * *",
		RecurrenceLabel: "每天",
	}
	if got := fireLabel(daily); got != "每天 20:30:15" {
		t.Fatalf("daily label = %q", got)
	}

	weekly := remind.Record{
		Time:            time.Date(2030, 9, 9, 15, 0, 0, 0, loc),
		RecurrenceRule:  "0 0 15 * * 1",
		RecurrenceLabel: "每周一",
	}
	if got := fireLabel(weekly); got != "每周一 15:00" {
		t.Fatalf("weekly label = %q", got)
	}
}

func TestFormatListAllGroupsFirst(t *testing.T) {
	t.Parallel()
	loc := time.UTC

	recs := []remind.Record{
		{SetterID: 1, TargetID: 1, Content: "私聊早", Time: time.Date(2030, 1, 1, 8, 0, 0, 0, loc)},
		{SetterID: 2, TargetID: 2, GroupID: 5, Content: "群晚", Time: time.Date(2030, 1, 1, 9, 0, 0, 0, loc)},
	}
	got := formatListAll(recs)
	if !strings.Contains(got, "1. ") || !strings.Contains(got, "2. ") {
		t.Fatalf("listall output = %q", got)
	}
	if strings.Index(got, "群晚") > strings.Index(got, "私聊早") {
		t.Fatalf("group entry should come before private: %q", got)
	}
}

func TestNotifierDeliver(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	n := NewNotifier(ad, logx.Nop())
	ctx := context.Background()

	group := remind.Record{GroupID: 5, TargetID: 10, Content: "开会 <now>"}
	if err := n.Deliver(ctx, group); err != nil {
		t.Fatalf("Deliver group: %v", err)
	}
	sent := ad.lastSent(t)
	if sent.ChatID != 5 {
		t.Fatalf("group delivery went to chat %d", sent.ChatID)
	}
	if !strings.Contains(sent.Text, `tg://user?id=10`) {
		t.Fatalf("group delivery does not mention target: %q", sent.Text)
	}
	if !strings.Contains(sent.Text, "&lt;now&gt;") {
		t.Fatalf("content not escaped for html mode: %q", sent.Text)
	}
	if sent.Opt == nil || sent.Opt.ParseMode != "HTML" {
		t.Fatalf("group delivery opt = %+v", sent.Opt)
	}

	private := remind.Record{TargetID: 10, Content: "喝水"}
	if err := n.Deliver(ctx, private); err != nil {
		t.Fatalf("Deliver private: %v", err)
	}
	sent = ad.lastSent(t)
	if sent.ChatID != 10 || !strings.Contains(sent.Text, "叮咚") || !strings.Contains(sent.Text, "喝水") {
		t.Fatalf("private delivery = %+v", sent)
	}
}
