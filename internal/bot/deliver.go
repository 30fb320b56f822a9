package bot

import (
	"context"
	"fmt"
	"html"

	"golang.org/x/time/rate"

	"remindbot/internal/remind"
	"remindbot/internal/transport"
	"remindbot/pkg/logx"
)

const fireHeader = "叮咚！闹钟时间到啦！"

// Notifier sends due reminders through the chat adapter. Sends are paced so
// a burst of simultaneously due reminders does not trip flood limits.
type Notifier struct {
	adapter transport.Adapter
	limiter *rate.Limiter
	log     logx.Logger
}

func NewNotifier(adapter transport.Adapter, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		adapter: adapter,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		log:     log.With(logx.String("component", "notifier")),
	}
}

// Deliver posts the reminder. Group reminders mention the target user so
// the notification reaches them; private reminders go straight to the
// target's chat.
func (n *Notifier) Deliver(ctx context.Context, rec remind.Record) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	if rec.GroupID != 0 {
		text := fmt.Sprintf(`<a href="tg://user?id=%d">@%d</a> %s`+"\n%s",
			rec.TargetID, rec.TargetID, fireHeader, html.EscapeString(rec.Content))
		_, err := n.adapter.SendText(ctx, transport.ChatTarget{ChatID: rec.GroupID}, text,
			&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
		return err
	}

	text := fireHeader + "\n" + rec.Content
	_, err := n.adapter.SendText(ctx, transport.ChatTarget{ChatID: rec.TargetID}, text, nil)
	return err
}
