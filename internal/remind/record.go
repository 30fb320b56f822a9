package remind

import "time"

// Record is the sole persisted entity. GroupID zero means private scope;
// nonzero pins the record to that group. The pair RecurrenceRule and
// RecurrenceLabel are set together or not at all.
type Record struct {
	Key             string    `json:"key"`
	SetterID        int64     `json:"setter_id"`
	TargetID        int64     `json:"target_id"`
	GroupID         int64     `json:"group_id,omitempty"`
	Content         string    `json:"content"`
	Time            time.Time `json:"time"`
	RecurrenceRule  string    `json:"recurrenceRule,omitempty"`
	RecurrenceLabel string    `json:"recurrenceText,omitempty"`
}

func (r Record) Recurring() bool { return r.RecurrenceRule != "" }

func (r Record) Private() bool { return r.GroupID == 0 }
