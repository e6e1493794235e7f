package config

import (
	"time"

	"taskquest/internal/repository"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Repo     repository.Config `envPrefix:"REPO_"`
	LogLevel string            `env:"LOGGER_LEVEL" envDefault:"debug"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":4000"`
	CORSOrigins  []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	JWTSecret    string        `env:"JWT_SECRET" envDefault:""`
	JWTTTL       time.Duration `env:"JWT_TTL" envDefault:"168h"`
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`

	TelegramToken string `env:"TELEGRAM_BOT_TOKEN" envDefault:""`
	BotUsername   string `env:"BOT_USERNAME" envDefault:"taskquest_guardian_bot"`
	FrontendURL   string `env:"FRONTEND_URL" envDefault:"http://localhost:4000"`

	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE" envDefault:""`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID" envDefault:""`

	AdminCodePolicy string `env:"ADMIN_CODE_POLICY" envDefault:"reuse"`
	QuestPolicy     string `env:"QUEST_POLICY" envDefault:"multi"`

	GoogleCredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" envDefault:""`
	GoogleOwnerEmail      string `env:"GOOGLE_OWNER_EMAIL" envDefault:""`

	DiscordWebhookID    string `env:"DISCORD_WEBHOOK_ID" envDefault:""`
	DiscordWebhookToken string `env:"DISCORD_WEBHOOK_TOKEN" envDefault:""`

	AccountCacheSize int `env:"ACCOUNT_CACHE_SIZE" envDefault:"512"`
}

func ReadEnvConfig(cfg *Config) error {
	return env.Parse(cfg)
}
