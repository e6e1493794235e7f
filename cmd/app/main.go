package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskquest/internal/application"
	"taskquest/internal/delivery/discord"
	"taskquest/internal/delivery/httpapi"
	"taskquest/internal/delivery/telegram"
	"taskquest/internal/integration"
	"taskquest/internal/repository"
	"taskquest/pkg/config"
	jwtutil "taskquest/pkg/jwt"
	"taskquest/pkg/logger"
	service "taskquest/pkg/services"
	"taskquest/pkg/sheets"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func main() {
	_ = godotenv.Load()

	cfg := config.Config{}
	if err := config.ReadEnvConfig(&cfg); err != nil {
		panic(err)
	}

	log := logger.NewLogger(&logger.Config{Level: cfg.LogLevel})

	if err := run(&cfg, log); err != nil {
		log.Error("%s", err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	adminPolicy, questPolicy, err := policies(cfg)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := repository.NewPostgresDB(&cfg.Repo)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	defer db.Close()

	log.Info("Running migrations...")
	if err := repository.RunMigrations(db, migrationFS); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("Migrations applied successfully")

	cache, err := repository.NewAccountCache(cfg.AccountCacheSize)
	if err != nil {
		return fmt.Errorf("failed to init account cache: %w", err)
	}
	repos := repository.NewRepository(db, cache)

	deps := application.Deps{}

	if cfg.FirebaseCredentialsFile != "" || cfg.FirebaseProjectID != "" {
		verifier, err := integration.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to init firebase: %w", err)
		}
		deps.Verifier = verifier
	} else {
		log.Warn("Firebase is not configured, web login is disabled")
	}

	if cfg.GoogleCredentialsFile != "" {
		client, err := sheets.NewGoogleSheetsClient(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to init google sheets: %w", err)
		}
		deps.Sheets = integration.NewQuestSheets(client, cfg.GoogleOwnerEmail)
	}

	var sink *discord.WebhookSink
	if cfg.DiscordWebhookID != "" {
		sink, err = discord.NewWebhookSink(cfg.DiscordWebhookID, cfg.DiscordWebhookToken, log)
		if err != nil {
			return err
		}
		deps.Sinks = append(deps.Sinks, sink)
	}

	svc := application.NewService(repos, deps, application.Options{
		AdminCodePolicy: adminPolicy,
		QuestPolicy:     questPolicy,
		BotUsername:     cfg.BotUsername,
		FrontendURL:     cfg.FrontendURL,
		JWT: jwtutil.Config{
			Secret:         []byte(cfg.JWTSecret),
			ExpireDuration: cfg.JWTTTL,
		},
	}, log)

	var bot *telegram.Bot
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(telegram.Config{Token: cfg.TelegramToken, FrontendURL: cfg.FrontendURL}, svc, log)
		if err != nil {
			return err
		}
		if bot.Username() != cfg.BotUsername {
			log.Warn("BOT_USERNAME %q does not match the bot account %q, deep links may be wrong", cfg.BotUsername, bot.Username())
		}
		svc.SetChatNotifier(bot)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN is empty, the chat bot is disabled")
	}

	server := httpapi.NewServer(httpapi.Config{
		Addr:         cfg.HTTPAddr,
		CORSOrigins:  cfg.CORSOrigins,
		CookieSecure: cfg.CookieSecure,
	}, svc, db, log, log.Slog())

	manager := service.NewManager(log)
	manager.AddService(svc.Notifications, server)
	if sink != nil {
		manager.AddService(sink)
	}
	if bot != nil {
		manager.AddService(bot)
	}

	if err := manager.Run(ctx); err != nil {
		return err
	}
	log.Info("Stopped")
	return nil
}

func policies(cfg *config.Config) (application.AdminCodePolicy, application.QuestPolicy, error) {
	admin := application.AdminCodePolicy(cfg.AdminCodePolicy)
	switch admin {
	case application.AdminCodeReuse, application.AdminCodeRotate:
	default:
		return "", "", fmt.Errorf("unknown ADMIN_CODE_POLICY %q", cfg.AdminCodePolicy)
	}

	quest := application.QuestPolicy(cfg.QuestPolicy)
	switch quest {
	case application.QuestPolicyMulti, application.QuestPolicySingle, application.QuestPolicyAutoJoin:
	default:
		return "", "", fmt.Errorf("unknown QUEST_POLICY %q", cfg.QuestPolicy)
	}
	return admin, quest, nil
}
