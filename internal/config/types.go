package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is an optional chat id that receives warn/error log lines.
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the durable reminder store.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process map, not durable (tests/dev)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ReminderConfig controls the reminder engine.
//
// All calendar arithmetic happens in Timezone; there is exactly one
// timezone for the whole process.
type ReminderConfig struct {
	// Timezone is an IANA name, e.g. "Asia/Shanghai" (the default).
	Timezone string `json:"timezone,omitempty"`
	// KeyPrefix namespaces reminder records in the store.
	// Default: "alarm:clock:".
	KeyPrefix string `json:"key_prefix,omitempty"`
	// PendingTTL bounds how long a half-created reminder (time received,
	// content still missing) stays valid. Go duration string, default "2m".
	PendingTTL string `json:"pending_ttl,omitempty"`
	// OneshotExpirySlack is added to a one-shot record's store TTL past its
	// fire time, as a safety net against clock skew. Default "5m".
	OneshotExpirySlack string `json:"oneshot_expiry_slack,omitempty"`
}
