package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Dispatcher struct {
		BaseURL     string
		Site        string
		Timeout     time.Duration
		InsecureTLS bool
	}
	Poll struct {
		Interval time.Duration
	}
	Escalation struct {
		Threshold   time.Duration
		Stage2Delay time.Duration
		Stage3Delay time.Duration
		To          []string
		CC          []string
		Subject     string
	}
	Email struct {
		SMTPServer string
		SMTPPort   int
		Username   string
		Password   string
		From       string
	}
	Telegram struct {
		BotToken  string
		ChatIDs   []int64
		RateLimit int
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	API struct {
		Port       string
		BasePath   string
		MaxViewers int
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	var errs []string

	// Dispatcher settings
	cfg.Dispatcher.BaseURL = strings.TrimRight(os.Getenv("DISPATCHER_BASE_URL"), "/")
	cfg.Dispatcher.Site = os.Getenv("DISPATCHER_SITE")
	cfg.Dispatcher.Timeout = durationEnv("DISPATCHER_TIMEOUT", 30*time.Second, &errs)
	cfg.Dispatcher.InsecureTLS = boolEnv("DISPATCHER_INSECURE_TLS", &errs)

	cfg.Poll.Interval = durationEnv("POLL_INTERVAL", time.Minute, &errs)

	// Escalation schedule
	cfg.Escalation.Threshold = durationEnv("ESCALATION_THRESHOLD", 6*time.Hour, &errs)
	cfg.Escalation.Stage2Delay = durationEnv("ESCALATION_STAGE2_DELAY", 30*time.Minute, &errs)
	cfg.Escalation.Stage3Delay = durationEnv("ESCALATION_STAGE3_DELAY", 60*time.Minute, &errs)
	cfg.Escalation.To = listEnv("ESCALATION_TO")
	cfg.Escalation.CC = listEnv("ESCALATION_CC")
	cfg.Escalation.Subject = os.Getenv("ESCALATION_SUBJECT")

	// Email settings
	cfg.Email.SMTPServer = os.Getenv("EMAIL_SMTP_SERVER")
	cfg.Email.SMTPPort = intEnv("EMAIL_SMTP_PORT", 587, &errs)
	cfg.Email.Username = os.Getenv("EMAIL_USERNAME")
	cfg.Email.Password = os.Getenv("EMAIL_PASSWORD")
	cfg.Email.From = os.Getenv("EMAIL_FROM")

	// Telegram settings
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	for _, raw := range listEnv("TELEGRAM_CHAT_IDS") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TELEGRAM_CHAT_IDS: invalid chat id %q", raw))
			continue
		}
		cfg.Telegram.ChatIDs = append(cfg.Telegram.ChatIDs, id)
	}
	cfg.Telegram.RateLimit = intEnv("TELEGRAM_RATE_LIMIT", 1, &errs)

	// Kafka settings
	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	// API settings
	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")
	cfg.API.MaxViewers = intEnv("HUB_MAX_VIEWERS", 100, &errs)

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	// Validate required settings
	missing := []string{}
	if cfg.Dispatcher.BaseURL == "" {
		missing = append(missing, "DISPATCHER_BASE_URL")
	}
	if cfg.Email.SMTPServer != "" && len(cfg.Escalation.To) == 0 {
		missing = append(missing, "ESCALATION_TO")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Dispatcher.Site == "" {
		cfg.Dispatcher.Site = "PILOT"
	}
	if cfg.Escalation.Subject == "" {
		cfg.Escalation.Subject = "Urgent: Pending Dispatcher Tasks Alert"
	}
	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.Username
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "dispatcher_commands"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "dispatch-watch"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":5000"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration, errs *[]string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func intEnv(key string, def int, errs *[]string) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func boolEnv(key string, errs *[]string) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, raw))
	}
	return b
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
