package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PARAM_PREFIX", "/inspection-bot/prod")
	t.Setenv("DRIVE_ROOT_FOLDER_ID", "root-folder")
	t.Setenv("ROWS_TABLE", "inspection-rows")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, RunModePoll, cfg.App.RunMode)
	require.False(t, cfg.App.LambdaSingleInstance)
	require.Empty(t, cfg.Server.ArchiveToken)
	require.Equal(t, "catalog.yaml", cfg.App.CatalogFile)
	require.Equal(t, RowStoreDynamoDB, cfg.Storage.RowStore)
	require.Equal(t, "Inspections", cfg.Storage.SheetName)
	require.True(t, cfg.Extraction.Enabled)
	require.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	require.Equal(t, 4, cfg.Upload.MaxConcurrent)
	require.Equal(t, 20*time.Second, cfg.Upload.MaxWait)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "Europe/Warsaw", cfg.Location().String())
}

func TestLoad_OverrideDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("RUN_MODE", "webhook")
	t.Setenv("EXTRACTION_ENABLED", "false")
	t.Setenv("UPLOAD_MAX_CONCURRENT", "8")
	t.Setenv("POLL_TIMEOUT", "10s")
	t.Setenv("ALLOWED_CHAT_IDS", "1, 2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RunModeWebhook, cfg.App.RunMode)
	require.False(t, cfg.Extraction.Enabled)
	require.Equal(t, 8, cfg.Upload.MaxConcurrent)
	require.Equal(t, 10*time.Second, cfg.Telegram.PollTimeout)
	require.Equal(t, "1, 2", cfg.Telegram.AllowedChatIDs)
}

func TestLoad_AltEnvName(t *testing.T) {
	t.Setenv("PARAM_PREFIX", "/p")
	t.Setenv("DRIVE_ROOT_FOLDER_ID", "root")
	t.Setenv("STATE_TABLE", "legacy-table")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "legacy-table", cfg.Storage.RowsTable)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("PARAM_PREFIX", "")
	t.Setenv("DRIVE_ROOT_FOLDER_ID", "root")

	_, err := Load()
	require.ErrorContains(t, err, "PARAM_PREFIX")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad int", "UPLOAD_MAX_CONCURRENT", "lots", "invalid integer"},
		{"bad duration", "UPLOAD_MAX_WAIT", "soon", "invalid duration"},
		{"bad bool", "EXTRACTION_ENABLED", "maybe", "invalid boolean"},
		{"bad mode", "RUN_MODE", "cron", "RUN_MODE"},
		{"bad store", "ROW_STORE", "sheets", "ROW_STORE"},
		{"bad level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus", "TIMEZONE"},
		{"poll timeout too long", "POLL_TIMEOUT", "2m", "POLL_TIMEOUT"},
		{"zero uploads", "UPLOAD_MAX_CONCURRENT", "0", "UPLOAD_MAX_CONCURRENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestValidate_LambdaNeedsSingleInstance(t *testing.T) {
	setRequired(t)
	t.Setenv("RUN_MODE", "lambda")

	_, err := Load()
	require.ErrorContains(t, err, "LAMBDA_SINGLE_INSTANCE")

	t.Setenv("LAMBDA_SINGLE_INSTANCE", "true")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RunModeLambda, cfg.App.RunMode)
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	setRequired(t)
	t.Setenv("ROW_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, err := Load()
	require.ErrorContains(t, err, "DATABASE_URL is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/inspections")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RowStorePostgres, cfg.Storage.RowStore)
}

func TestString_MasksSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "postgres://user:hunter2@db/x")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("ARCHIVE_TOKEN", "arch-t0ken")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "arch-t0ken", cfg.Server.ArchiveToken)
	s := cfg.String()
	require.False(t, strings.Contains(s, "hunter2"))
	require.False(t, strings.Contains(s, "s3cret"))
	require.False(t, strings.Contains(s, "arch-t0ken"))
	require.Contains(t, s, "[MASKED]")
}
