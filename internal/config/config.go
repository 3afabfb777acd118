package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TelegramToken string `envconfig:"TELEGRAM_TOKEN" validate:"required"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`
	DatabaseURI string `envconfig:"DATABASE_URI" validate:"required_if=StoreDriver postgres"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/coachline.db" validate:"required_if=StoreDriver sqlite"`

	Timezone     string `envconfig:"TIMEZONE" default:"Europe/Kyiv" validate:"required"`
	AdminChatIDs string `envconfig:"ADMIN_CHAT_IDS"`

	PollMorning      time.Duration `envconfig:"POLL_INTERVAL_MORNING" default:"30s" validate:"min=1s"`
	PollCustom       time.Duration `envconfig:"POLL_INTERVAL_CUSTOM" default:"30s" validate:"min=1s"`
	PollPreTraining  time.Duration `envconfig:"POLL_INTERVAL_PRE_TRAINING" default:"10s" validate:"min=1s"`
	PollTraining     time.Duration `envconfig:"POLL_INTERVAL_TRAINING" default:"10s" validate:"min=1s"`
	PollStopTraining time.Duration `envconfig:"POLL_INTERVAL_STOP_TRAINING" default:"10s" validate:"min=1s"`
	TickTimeout      time.Duration `envconfig:"TICK_TIMEOUT" default:"2m"`

	SendRatePerSec int    `envconfig:"SEND_RATE_PER_SEC" default:"25" validate:"min=1,max=30"`
	TemplatesPath  string `envconfig:"TEMPLATES_PATH"`

	AIAPIKey  string `envconfig:"AI_API_KEY"`
	AIBaseURL string `envconfig:"AI_BASE_URL" default:"https://openrouter.ai/api/v1" validate:"omitempty,url"`
	AIModel   string `envconfig:"AI_MODEL" default:"openai/gpt-4o-mini"`

	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// .env file is optional in production
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if _, err := cfg.Admins(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Admins parses ADMIN_CHAT_IDS, a comma separated list of chat IDs.
func (c *Config) Admins() ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(c.AdminChatIDs, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_CHAT_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Config) Intervals() map[models.Family]time.Duration {
	return map[models.Family]time.Duration{
		models.FamilyMorning:      c.PollMorning,
		models.FamilyCustom:       c.PollCustom,
		models.FamilyPreTraining:  c.PollPreTraining,
		models.FamilyTraining:     c.PollTraining,
		models.FamilyStopTraining: c.PollStopTraining,
	}
}
