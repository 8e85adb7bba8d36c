package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	UploadDir  string
	OutputDir  string
	RawMailDir string

	WebhookURL          string
	WebhookTimeoutMs    int
	WebhookRateLimitRPS int
	BatchTimeoutSec     int

	ModelProvider       string
	Model               string
	IncludeImages       bool
	OptionalProductName string

	PollIntervalSec int
	PollMaxSec      int

	HTTPAddr          string
	ProxyBaseURL      string
	ProxyTimeoutMs    int
	ImageFetchTimeout int
	RenderConfigPath  string
	MaxUploadMB       int

	LogVerbose bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	IntakeProvider     string
	IntakeLabel        string
	IntakeFetchMax     int
	IntakeWatchDir     string
	IntakeIntervalSec  int
	IntakeAutoRunBatch bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "offerdesk.db")),
		UploadDir:  getEnv("UPLOAD_DIR", filepath.Join(cwd, "data", "uploads")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		RawMailDir: getEnv("RAW_MAIL_DIR", filepath.Join(cwd, "data", "raw_mail")),

		WebhookURL:          getEnv("WEBHOOK_URL", ""),
		WebhookTimeoutMs:    getEnvInt("WEBHOOK_TIMEOUT_MS", 0),
		WebhookRateLimitRPS: getEnvInt("WEBHOOK_RATE_LIMIT_RPS", 2),
		BatchTimeoutSec:     getEnvInt("BATCH_TIMEOUT_SEC", 20*60),

		ModelProvider:       getEnv("MODEL_PROVIDER", "openai"),
		Model:               getEnv("MODEL", "gpt-5.1"),
		IncludeImages:       getEnvBool("INCLUDE_IMAGES", false),
		OptionalProductName: getEnv("OPTIONAL_PRODUCT_NAME", ""),

		PollIntervalSec: getEnvInt("POLL_INTERVAL_SEC", 2),
		PollMaxSec:      getEnvInt("POLL_MAX_SEC", 5*60),

		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		ProxyBaseURL:      getEnv("IMAGE_PROXY_URL", ""),
		ProxyTimeoutMs:    getEnvInt("PROXY_TIMEOUT_MS", 30000),
		ImageFetchTimeout: getEnvInt("IMAGE_FETCH_TIMEOUT_MS", 15000),
		RenderConfigPath:  getEnv("RENDER_CONFIG_PATH", ""),
		MaxUploadMB:       getEnvInt("MAX_UPLOAD_MB", 50),

		LogVerbose: getEnvBool("LOG_VERBOSE", false),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		IntakeProvider:     getEnv("INTAKE_PROVIDER", "imap"),
		IntakeLabel:        getEnv("INTAKE_LABEL", "INBOX"),
		IntakeFetchMax:     getEnvInt("INTAKE_FETCH_MAX", 20),
		IntakeWatchDir:     getEnv("INTAKE_WATCH_DIR", filepath.Join(cwd, "data", "inbox")),
		IntakeIntervalSec:  getEnvInt("INTAKE_INTERVAL_SEC", 60),
		IntakeAutoRunBatch: getEnvBool("INTAKE_AUTO_RUN_BATCH", false),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
