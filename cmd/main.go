package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"inspection-bot/handler"
	"inspection-bot/internal/bot"
	"inspection-bot/internal/catalog"
	"inspection-bot/internal/company"
	"inspection-bot/internal/config"
	"inspection-bot/internal/domain"
	"inspection-bot/internal/external"
	"inspection-bot/internal/extract"
	"inspection-bot/internal/integrations/drive"
	"inspection-bot/internal/integrations/openai"
	"inspection-bot/internal/integrations/paramstore"
	"inspection-bot/internal/integrations/telegram"
	"inspection-bot/internal/logging"
	"inspection-bot/internal/repository"
	"inspection-bot/internal/session"
	"inspection-bot/internal/web"
)

type rowStore interface {
	AppendRow(ctx context.Context, sheet string, row domain.Row) error
	ReadAllRows(ctx context.Context, sheet string) ([]domain.Row, error)
}

func main() {
	// Local runs read .env; a missing file is fine.
	_ = godotenv.Overload()

	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	cat, err := catalog.Load(cfg.App.CatalogFile)
	if err != nil {
		fatal("failed to load catalog", err)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	prefix := cfg.App.ParamPrefix

	tgToken, err := params.Token(ctx, prefix+"/telegram-token")
	if err != nil {
		fatal("failed to read telegram token", err)
	}
	tg, err := telegram.New(tgToken, telegram.WithHTTPClient(&http.Client{Timeout: cfg.Telegram.PollTimeout + 15*time.Second}))
	if err != nil {
		fatal("failed to create telegram client", err)
	}

	var creds drive.Credentials
	if err := params.GetJSON(ctx, prefix+"/drive-credentials", &creds); err != nil {
		fatal("failed to read drive credentials", err)
	}
	driveHTTP, err := drive.OAuthHTTPClient(ctx, creds)
	if err != nil {
		fatal("failed to authorize drive", err)
	}
	driveClient, err := drive.New(driveHTTP)
	if err != nil {
		fatal("failed to create drive client", err)
	}

	rows, closeRows, err := newRowStore(ctx, awsdynamodb.NewFromConfig(awsCfg), cfg)
	if err != nil {
		fatal("failed to create row store", err)
	}
	defer closeRows()

	facade, err := external.New(rows, driveClient, cfg.Storage.SheetName, cfg.Drive.RootFolderID,
		external.WithLimiter(external.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWait)),
		external.WithLocation(cfg.Location()),
	)
	if err != nil {
		fatal("failed to create sync facade", err)
	}

	// ---- Session engine ----
	resolver, err := company.NewResolver(cat.Companies())
	if err != nil {
		fatal("failed to create company resolver", err)
	}
	var companies session.CompanyResolver = resolver
	opts := []session.Option{session.WithArchive(rows, cfg.Storage.SheetName)}

	if cfg.Extraction.Enabled {
		llm, err := openai.NewClient(params, prefix)
		if err != nil {
			fatal("failed to create OpenAI client", err)
		}
		extractor, err := extract.NewService(llm, cfg.Extraction.Model)
		if err != nil {
			fatal("failed to create extraction service", err)
		}
		hybrid, err := company.NewHybrid(extractor, resolver)
		if err != nil {
			fatal("failed to create hybrid resolver", err)
		}
		companies = hybrid
		opts = append(opts, session.WithExtractor(extractor))
	}

	engine, err := session.NewEngine(cat, companies, facade, opts...)
	if err != nil {
		fatal("failed to create session engine", err)
	}

	allowed, err := telegram.ParseChatIDs(cfg.Telegram.AllowedChatIDs)
	if err != nil {
		fatal("invalid ALLOWED_CHAT_IDS", err)
	}
	b, err := bot.New(tg, engine, allowed)
	if err != nil {
		fatal("failed to create bot", err)
	}

	// ---- Transport ----
	switch cfg.App.RunMode {
	case config.RunModeLambda:
		h, err := handler.NewHandler(b, cfg.Telegram.WebhookSecret)
		if err != nil {
			fatal("failed to create handler", err)
		}
		lambda.Start(h.Handle)

	case config.RunModeWebhook:
		runWebhook(cfg, tg, b, engine)

	case config.RunModePoll:
		runPoller(cfg, tg, b)
	}
}

func runWebhook(cfg *config.Config, tg *telegram.Client, b *bot.Bot, engine *session.Engine) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := bot.NewDispatcher(ctx, b)
	opts := []web.Option{
		web.WithAddr(cfg.Server.HTTPAddr),
		web.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Server.ArchiveToken != "" {
		opts = append(opts, web.WithArchive(engine, cfg.Server.ArchiveToken))
	} else {
		slog.Info("archive api disabled, ARCHIVE_TOKEN is not set")
	}
	srv, err := web.NewServer(dispatcher, cfg.Telegram.WebhookSecret, opts...)
	if err != nil {
		fatal("failed to create http server", err)
	}

	if cfg.Telegram.WebhookURL != "" {
		if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			fatal("failed to register webhook", err)
		}
		slog.Info("webhook registered")
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("http server failed", err)
	}
	drain(dispatcher, cfg.Server.ShutdownTimeout)
}

func runPoller(cfg *config.Config, tg *telegram.Client, b *bot.Bot) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := bot.NewDispatcher(ctx, b)
	timeoutSec := int(cfg.Telegram.PollTimeout / time.Second)
	if err := telegram.RunPoller(ctx, tg, timeoutSec, func(_ context.Context, u telegram.Update) {
		dispatcher.Submit(u)
	}); err != nil {
		fatal("poller failed", err)
	}
	drain(dispatcher, cfg.Server.ShutdownTimeout)
}

func drain(d *bot.Dispatcher, timeout time.Duration) {
	if n := d.Pending(); n > 0 {
		slog.Info("waiting for chats to finish", "chats", n)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		slog.Warn("updates did not complete in time", "err", err)
	}
}

func newRowStore(ctx context.Context, dynamo *awsdynamodb.Client, cfg *config.Config) (rowStore, func(), error) {
	switch cfg.Storage.RowStore {
	case config.RowStorePostgres:
		pool, err := pgxpool.New(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := repository.NewPostgresRowStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store, err := repository.NewRowStore(dynamo, cfg.Storage.RowsTable)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
