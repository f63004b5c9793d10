// Package config loads the bot configuration from environment variables and
// validates it on startup.
package config

import "time"

// Run modes.
const (
	RunModeLambda  = "lambda"
	RunModeWebhook = "webhook"
	RunModePoll    = "poll"
)

// Row store backends.
const (
	RowStoreDynamoDB = "dynamodb"
	RowStorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Storage    StorageConfig
	Drive      DriveConfig
	Extraction ExtractionConfig
	Telegram   TelegramConfig
	Server     ServerConfig
	Upload     UploadConfig
	Logging    LoggingConfig
}

type AppConfig struct {
	// RunMode selects the update transport: poll, webhook or lambda.
	RunMode string `env:"RUN_MODE" default:"poll"`

	// LambdaSingleInstance confirms the function runs with reserved
	// concurrency 1. Sessions live in process memory, so lambda mode is
	// refused without it.
	LambdaSingleInstance bool `env:"LAMBDA_SINGLE_INSTANCE" default:"false"`

	// ParamPrefix is the SSM path holding telegram-token, open-ai-token and
	// drive-credentials.
	ParamPrefix string `env:"PARAM_PREFIX" required:"true"`

	CatalogFile string `env:"CATALOG_FILE" default:"catalog.yaml"`

	// Timezone is used for the date column of every row.
	Timezone string `env:"TIMEZONE" default:"Europe/Warsaw"`
}

type StorageConfig struct {
	// RowStore is dynamodb or postgres.
	RowStore string `env:"ROW_STORE" default:"dynamodb"`

	RowsTable   string `env:"ROWS_TABLE" envAlt:"STATE_TABLE"`
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SheetName is the logical sheet rows are appended to.
	SheetName string `env:"SHEET_NAME" default:"Inspections"`
}

type DriveConfig struct {
	RootFolderID string `env:"DRIVE_ROOT_FOLDER_ID" required:"true"`
}

type ExtractionConfig struct {
	Enabled bool   `env:"EXTRACTION_ENABLED" default:"true"`
	Model   string `env:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

type TelegramConfig struct {
	// AllowedChatIDs is a comma-separated allow-list. Empty allows every chat.
	AllowedChatIDs string `env:"ALLOWED_CHAT_IDS"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// WebhookURL is registered with Telegram on startup in webhook mode when set.
	WebhookURL string `env:"WEBHOOK_URL"`

	PollTimeout time.Duration `env:"POLL_TIMEOUT" default:"30s"`
}

type ServerConfig struct {
	HTTPAddr        string        `env:"HTTP_ADDR" default:":8080"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// ArchiveToken is the bearer token of GET /api/archive. Empty disables
	// the route.
	ArchiveToken string `env:"ARCHIVE_TOKEN"`
}

type UploadConfig struct {
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"4"`
	MaxWait       time.Duration `env:"UPLOAD_MAX_WAIT" default:"20s"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"json"`
}
