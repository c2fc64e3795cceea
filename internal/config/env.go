package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env holds the process-level secrets and connection strings that do not
// belong in the hot-reloadable tuning file — grounded on the teacher's
// mustEnv/envOr split between secrets (env) and tunables (file).
type Env struct {
	DatabaseURL string
	ConfigPath  string
	SessionDir  string
	LogLevel    string

	// Upstream messaging service gateway (spec.md §6).
	TelegramAPIURL string

	// Assistant service (spec.md §6).
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
	PromptPath string

	// Tool collaborators.
	LinksPath   string
	CatalogPath string // document the assistant's "file" directive sends

	// CRM form endpoint (spec.md §6). An empty CRM_ENDPOINT disables
	// submission; an empty CRMFormID does not.
	CRMEndpoint string
	CRMFormID   string
	CRMHash     string
	CRMReferer  string

	// External prospect source (spec.md §4.6). Empty disables the Ingestor.
	ProspectDBURL string

	// Heartbeat group chat id. 0 disables the monitoring service.
	HeartbeatGroup int64
}

// LoadEnv loads a .env file if present (missing is not an error — production
// deployments set real environment variables instead) and reads the
// recognized variables.
func LoadEnv() (Env, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return Env{}, fmt.Errorf("missing required env: DATABASE_URL")
	}

	e := Env{
		DatabaseURL: dbURL,
		ConfigPath:  envOr("CONFIG_PATH", "config.json"),
		SessionDir:  envOr("SESSION_DIR", "data/sessions"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		TelegramAPIURL: envOr("TELEGRAM_API_URL", "http://localhost:8081"),

		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMBaseURL: envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:   envOr("LLM_MODEL", "gpt-4o"),
		PromptPath: envOr("PROMPT_PATH", "data/prompt.txt"),

		LinksPath:   envOr("LINKS_PATH", "data/links.json"),
		CatalogPath: envOr("CATALOG_PATH", "data/catalog.pdf"),

		CRMEndpoint: envOr("CRM_ENDPOINT", "https://forms.amocrm.ru/queue/add"),
		CRMFormID:   os.Getenv("CRM_FORM_ID"),
		CRMHash:     os.Getenv("CRM_HASH"),
		CRMReferer:  os.Getenv("CRM_REFERER"),

		ProspectDBURL: os.Getenv("PROSPECT_DB_URL"),
	}
	if v := os.Getenv("HEARTBEAT_GROUP"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Env{}, fmt.Errorf("invalid HEARTBEAT_GROUP %q: %w", v, err)
		}
		e.HeartbeatGroup = id
	}
	return e, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
