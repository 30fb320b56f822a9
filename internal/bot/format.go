package bot

import (
	"fmt"
	"strings"

	"remindbot/internal/remind"
)

const contentPreviewRunes = 20

// fireLabel renders when a reminder goes off: recurring ones show their
// recurrence label plus the time of day, one-shots a short date and time.
func fireLabel(rec remind.Record) string {
	if rec.Recurring() {
		clock := rec.Time.Format("15:04:05")
		if strings.HasSuffix(clock, ":00") {
			clock = rec.Time.Format("15:04")
		}
		return rec.RecurrenceLabel + " " + clock
	}
	return rec.Time.Format("01-02 15:04:05")
}

func previewContent(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= contentPreviewRunes {
		return string(r)
	}
	return string(r[:contentPreviewRunes]) + "…"
}

// formatList renders a scope's reminders as the numbered list that cancel
// indices refer to.
func formatList(recs []remind.Record) string {
	if len(recs) == 0 {
		return "当前没有已设置的闹钟"
	}
	var b strings.Builder
	b.WriteString("已设置的闹钟：\n")
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, fireLabel(rec), previewContent(rec.Content))
	}
	b.WriteString("发送 #闹钟取消 <序号> 可以取消")
	return b.String()
}

// formatListAll lists every reminder, group-scoped ones first and private
// ones after, each block keeping its time order.
func formatListAll(recs []remind.Record) string {
	if len(recs) == 0 {
		return "当前没有任何闹钟"
	}
	ordered := make([]remind.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.GroupID != 0 {
			ordered = append(ordered, rec)
		}
	}
	for _, rec := range recs {
		if rec.GroupID == 0 {
			ordered = append(ordered, rec)
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "全部闹钟（%d 个）：\n", len(ordered))
	for i, rec := range ordered {
		where := "私聊"
		if rec.GroupID != 0 {
			where = fmt.Sprintf("群 %d", rec.GroupID)
		}
		fmt.Fprintf(&b, "%d. [%s] %s（%s，设置者 %d）\n",
			i+1, fireLabel(rec), previewContent(rec.Content), where, rec.SetterID)
	}
	return strings.TrimRight(b.String(), "\n")
}
