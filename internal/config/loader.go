package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		required := field.Tag.Get("required") == "true"

		value := strings.TrimSpace(os.Getenv(envName))
		if value == "" && envAlt != "" {
			value = strings.TrimSpace(os.Getenv(envAlt))
		}
		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(n)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.RunMode {
	case RunModeLambda, RunModeWebhook, RunModePoll:
	default:
		errs = append(errs, fmt.Sprintf("RUN_MODE (%q) must be one of: poll, webhook, lambda", c.App.RunMode))
	}
	if c.App.RunMode == RunModeLambda && !c.App.LambdaSingleInstance {
		errs = append(errs, "RUN_MODE lambda keeps sessions in memory; set LAMBDA_SINGLE_INSTANCE=true once reserved concurrency is 1")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("TIMEZONE (%q) is not a known location", c.App.Timezone))
	}

	switch c.Storage.RowStore {
	case RowStoreDynamoDB:
		if c.Storage.RowsTable == "" {
			errs = append(errs, "ROWS_TABLE is required when ROW_STORE is dynamodb")
		}
	case RowStorePostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when ROW_STORE is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("ROW_STORE (%q) must be one of: dynamodb, postgres", c.Storage.RowStore))
	}
	if strings.TrimSpace(c.Storage.SheetName) == "" {
		errs = append(errs, "SHEET_NAME must not be empty")
	}

	if c.Extraction.Enabled && c.Extraction.Model == "" {
		errs = append(errs, "OPENAI_MODEL is required when EXTRACTION_ENABLED is true")
	}

	if c.Telegram.PollTimeout < time.Second || c.Telegram.PollTimeout > 50*time.Second {
		errs = append(errs, "POLL_TIMEOUT must be between 1s and 50s")
	}
	if c.App.RunMode == RunModeWebhook && c.Server.HTTPAddr == "" {
		errs = append(errs, "HTTP_ADDR is required in webhook mode")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	if c.Upload.MaxConcurrent <= 0 {
		errs = append(errs, "UPLOAD_MAX_CONCURRENT must be positive")
	}
	if c.Upload.MaxWait <= 0 {
		errs = append(errs, "UPLOAD_MAX_WAIT must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String is safe for logging; the database URL, webhook secret and archive
// token are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "App: {RunMode: %q, LambdaSingleInstance: %v, ParamPrefix: %q, CatalogFile: %q, Timezone: %q}, ",
		c.App.RunMode, c.App.LambdaSingleInstance, c.App.ParamPrefix, c.App.CatalogFile, c.App.Timezone)
	fmt.Fprintf(&b, "Storage: {RowStore: %q, RowsTable: %q, DatabaseURL: [MASKED], SheetName: %q}, ",
		c.Storage.RowStore, c.Storage.RowsTable, c.Storage.SheetName)
	fmt.Fprintf(&b, "Extraction: {Enabled: %v, Model: %q}, ", c.Extraction.Enabled, c.Extraction.Model)
	fmt.Fprintf(&b, "Telegram: {WebhookSecret: [MASKED], PollTimeout: %s}, ", c.Telegram.PollTimeout)
	fmt.Fprintf(&b, "Server: {HTTPAddr: %q, ArchiveToken: [MASKED]}, ", c.Server.HTTPAddr)
	fmt.Fprintf(&b, "Upload: {MaxConcurrent: %d, MaxWait: %s}, ", c.Upload.MaxConcurrent, c.Upload.MaxWait)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
