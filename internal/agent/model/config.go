package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL           time.Duration `envconfig:"CONVERSATION_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"CONVERSATION_SWEEP_INTERVAL" default:"1m"`
	ReplyDelay    time.Duration `envconfig:"CONVERSATION_REPLY_DELAY" default:"1s"`
	SubmitDelay   time.Duration `envconfig:"CONVERSATION_SUBMIT_DELAY" default:"1500ms"`
	HistoryLimit  int           `envconfig:"CONVERSATION_HISTORY_LIMIT" default:"200"`
	ScriptFile    string        `envconfig:"CHAT_SCRIPT_FILE"`
}

type StoreConfig struct {
	Transcripts string `envconfig:"STORE_BACKEND" default:"memory"`
	Leads       string `envconfig:"LEADS_BACKEND" default:"sqlite"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type HTTPConfig struct {
	Addr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	AllowedOrigins []string      `envconfig:"HTTP_ALLOWED_ORIGINS" default:"*"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	IdleTimeout    time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}
