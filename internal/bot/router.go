// Package bot maps chat messages onto the reminder engine and renders the
// engine's outcomes back as chat replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"remindbot/internal/remind"
	"remindbot/internal/remind/recur"
	"remindbot/internal/remind/timeparse"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

var (
	reCreate  = regexp.MustCompile(`^#定时(?:闹钟)?\s*(.*)$`)
	reHelp    = regexp.MustCompile(`^#闹钟(详细)?帮助$`)
	reList    = regexp.MustCompile(`^#闹钟(?:列表|队列)$`)
	reListAll = regexp.MustCompile(`^#全部闹钟(?:列表|队列)$`)
	reCancel  = regexp.MustCompile(`^#闹钟取消\s*([\d\s,，]+)$`)
)

// Router dispatches inbound messages: the command surface above, plus the
// free-text second turn of a creation that is pending in that conversation.
type Router struct {
	adapter transport.Adapter
	svc     *remind.Service
	log     logx.Logger
}

func NewRouter(adapter transport.Adapter, svc *remind.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		adapter: adapter,
		svc:     svc,
		log:     log.With(logx.String("component", "router")),
	}
}

// convKey identifies one user's creation flow in one chat, so two users in
// the same group (or one user in two chats) never share pending state.
func convKey(m *transport.Message) string {
	if m.IsGroup {
		return fmt.Sprintf("g%d:u%d", m.ChatID, m.FromID)
	}
	return fmt.Sprintf("p%d", m.FromID)
}

func scopeOf(m *transport.Message) remind.Scope {
	s := remind.Scope{UserID: m.FromID}
	if m.IsGroup {
		s.GroupID = m.ChatID
	}
	return s
}

// HandleUpdate processes one inbound update. Errors are rendered to the
// user where they are actionable and logged otherwise; the dispatch loop
// never sees them.
func (r *Router) HandleUpdate(ctx context.Context, upd transport.Update) {
	m := upd.Message
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return
	}
	text := strings.TrimSpace(m.Text)

	switch {
	case reCreate.MatchString(text):
		r.handleCreate(ctx, m, reCreate.FindStringSubmatch(text)[1])
	case reHelp.MatchString(text):
		if reHelp.FindStringSubmatch(text)[1] != "" {
			r.reply(ctx, m, helpDetailText)
		} else {
			r.reply(ctx, m, helpText)
		}
	case reListAll.MatchString(text):
		r.handleListAll(ctx, m)
	case reList.MatchString(text):
		r.handleList(ctx, m)
	case reCancel.MatchString(text):
		r.handleCancel(ctx, m, reCancel.FindStringSubmatch(text)[1])
	default:
		r.handleContentTurn(ctx, m, text)
	}
}

func (r *Router) handleCreate(ctx context.Context, m *transport.Message, timeText string) {
	timeText = strings.TrimSpace(timeText)
	if timeText == "" {
		r.reply(ctx, m, "请在命令后面写上时间，例如：#定时闹钟 明天早上8点\n发送 #闹钟详细帮助 查看支持的格式")
		return
	}

	target := m.FromID
	if m.IsGroup && m.MentionID != 0 {
		target = m.MentionID
	}
	groupID := int64(0)
	if m.IsGroup {
		groupID = m.ChatID
	}

	pv, err := r.svc.BeginCreate(convKey(m), m.FromID, target, groupID, timeText)
	switch {
	case errors.Is(err, timeparse.ErrPastTime):
		r.reply(ctx, m, "这个时间已经过去啦，请换一个时间")
		return
	case errors.Is(err, timeparse.ErrUnrecognized),
		errors.Is(err, timeparse.ErrInvalidTime),
		errors.Is(err, recur.ErrBadPattern),
		errors.Is(err, recur.ErrNoOccurrence):
		r.reply(ctx, m, "没看懂这个时间，发送 #闹钟详细帮助 查看支持的格式")
		return
	case err != nil:
		r.log.Error("begin create failed", logx.Err(err))
		r.reply(ctx, m, "设置失败，请稍后再试")
		return
	}

	if pv.Recurring {
		r.reply(ctx, m, fmt.Sprintf("好的，%s %s 提醒，最近一次是 %s\n请发送提醒内容",
			pv.Label, pv.At.Format("15:04:05"), pv.At.Format("2006-01-02 15:04:05")))
	} else {
		r.reply(ctx, m, fmt.Sprintf("好的，将在 %s 提醒\n请发送提醒内容", pv.At.Format("2006-01-02 15:04:05")))
	}
}

// handleContentTurn completes a pending creation with the message text. A
// message in a conversation with nothing pending is ignored so the bot
// stays quiet in normal chat.
func (r *Router) handleContentTurn(ctx context.Context, m *transport.Message, text string) {
	rec, err := r.svc.CompleteCreate(ctx, convKey(m), text)
	switch {
	case errors.Is(err, remind.ErrNoPending):
		return
	case errors.Is(err, remind.ErrEmptyContent):
		r.reply(ctx, m, "提醒内容不能为空，请重新发送")
		return
	case err != nil:
		r.log.Error("complete create failed", logx.Err(err))
		r.reply(ctx, m, "设置失败，请稍后再试")
		return
	}
	r.reply(ctx, m, fmt.Sprintf("闹钟设置成功！\n[%s] %s", fireLabel(rec), previewContent(rec.Content)))
}

func (r *Router) handleList(ctx context.Context, m *transport.Message) {
	recs, err := r.svc.List(ctx, scopeOf(m))
	if err != nil {
		r.log.Error("list failed", logx.Err(err))
		r.reply(ctx, m, "查询失败，请稍后再试")
		return
	}
	r.reply(ctx, m, formatList(recs))
}

func (r *Router) handleListAll(ctx context.Context, m *transport.Message) {
	if !r.svc.IsOwner(m.FromID) {
		r.reply(ctx, m, "没有权限")
		return
	}
	recs, err := r.svc.ListAll(ctx)
	if err != nil {
		r.log.Error("list all failed", logx.Err(err))
		r.reply(ctx, m, "查询失败，请稍后再试")
		return
	}
	r.reply(ctx, m, formatListAll(recs))
}

func (r *Router) handleCancel(ctx context.Context, m *transport.Message, rawIndices string) {
	indices := parseIndices(rawIndices)
	if len(indices) == 0 {
		r.reply(ctx, m, "请写上要取消的序号，例如：#闹钟取消 1 3")
		return
	}

	groupAdmin := false
	if m.IsGroup {
		ok, err := r.adapter.IsChatAdmin(ctx, m.ChatID, m.FromID)
		if err != nil {
			r.log.Warn("admin check failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		}
		groupAdmin = ok
	}

	results, err := r.svc.Cancel(ctx, scopeOf(m), m.FromID, groupAdmin, indices)
	if err != nil {
		r.log.Error("cancel failed", logx.Err(err))
		r.reply(ctx, m, "取消失败，请稍后再试")
		return
	}

	var b strings.Builder
	for _, res := range results {
		switch {
		case errors.Is(res.Err, remind.ErrNotFound):
			fmt.Fprintf(&b, "%d. 没有这个序号\n", res.Index)
		case errors.Is(res.Err, remind.ErrNotAuthorized):
			fmt.Fprintf(&b, "%d. 只有设置者或管理员可以取消\n", res.Index)
		case res.Err != nil:
			fmt.Fprintf(&b, "%d. 取消失败，请稍后再试\n", res.Index)
		default:
			fmt.Fprintf(&b, "%d. 已取消：%s\n", res.Index, previewContent(res.Record.Content))
		}
	}
	r.reply(ctx, m, strings.TrimRight(b.String(), "\n"))
}

func parseIndices(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '，'
	})
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (r *Router) reply(ctx context.Context, m *transport.Message, text string) {
	if _, err := r.adapter.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}
