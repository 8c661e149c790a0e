package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1h").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Jam       JamConfig       `json:"jam"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier,omitzero"`
	HTTP      HTTPConfig      `json:"http,omitzero"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied through JAMBOT_TOKEN or API_TOKEN.
	Token string `json:"token,omitempty"`
	// GroupLog is the chat id receiving the Telegram log sink.
	GroupLog    string `json:"group_log,omitempty"`
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
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the jams database.
//
//	storage: { driver: sqlite, path: ./data/jambot.db }
//	storage: { driver: mysql, dsn: "user:pass@tcp(db:3306)/jam" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty"`
	RetryDelay  string `json:"retry_delay,omitempty"`
}

type JamConfig struct {
	Timezone string `json:"timezone,omitempty"`
	// ChatID is where scheduled jam polls are posted. 0 disables auto creation.
	ChatID   int64  `json:"chat_id,omitempty"`
	AutoDay  string `json:"auto_day,omitempty"`
	AutoTime string `json:"auto_time,omitempty"`
}

type SchedulerConfig struct {
	Enabled      bool   `json:"enabled"`
	CreateSpec   string `json:"create_spec,omitempty"`
	ReminderSpec string `json:"reminder_spec,omitempty"`
	MisfireGrace string `json:"misfire_grace,omitempty"`
}

type NotifierConfig struct {
	QueueSize  int     `json:"queue_size,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts /debug/pprof/ on the same server.
	Pprof bool `json:"pprof,omitempty"`
}
