package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "CERTVERIFY"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "certverify.db"
	defaultLogLevel            = "info"
	defaultCookieName          = "lms_session"
	defaultSessionIssuer       = "lms-auth"
	defaultVerificationBaseURL = "http://localhost:8080/verify"
	defaultCertificateBaseURL  = "http://localhost:8080/certificates"
	defaultQRSize              = 150
	defaultNotifyQueue         = "certificate.generated"
)

// AppConfig captures runtime configuration for the verification service.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	LogLevel     string

	// SessionSigningKey is optional: when empty every visitor is treated
	// as anonymous, which still allows full public verification.
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string

	// AdminToken guards the backfill, stats and completion-intake routes.
	AdminToken string

	VerificationBaseURL string
	CertificateBaseURL  string
	QRSize              int

	// AMQPURL is optional: when empty, generated-record events are logged
	// instead of published.
	AMQPURL     string
	NotifyQueue string

	NotifyEnabled      bool
	NotifyAdminEmail   string
	NotifyCC           []string
	NotifyUserSubject  string
	NotifyAdminSubject string
	NotifyBody         string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("links.verification_base_url", defaultVerificationBaseURL)
	configViper.SetDefault("links.certificate_base_url", defaultCertificateBaseURL)
	configViper.SetDefault("qr.size", defaultQRSize)
	configViper.SetDefault("amqp.queue", defaultNotifyQueue)
	configViper.SetDefault("notify.enabled", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabasePath:        configViper.GetString("database.path"),
		LogLevel:            configViper.GetString("log.level"),
		SessionSigningKey:   configViper.GetString("session.signing_secret"),
		SessionIssuer:       configViper.GetString("session.issuer"),
		SessionCookieName:   configViper.GetString("session.cookie_name"),
		AdminToken:          configViper.GetString("admin.token"),
		VerificationBaseURL: configViper.GetString("links.verification_base_url"),
		CertificateBaseURL:  configViper.GetString("links.certificate_base_url"),
		QRSize:              configViper.GetInt("qr.size"),
		AMQPURL:             configViper.GetString("amqp.url"),
		NotifyQueue:         configViper.GetString("amqp.queue"),
		NotifyEnabled:       configViper.GetBool("notify.enabled"),
		NotifyAdminEmail:    configViper.GetString("notify.admin_email"),
		NotifyCC:            configViper.GetStringSlice("notify.cc"),
		NotifyUserSubject:   configViper.GetString("notify.user_subject"),
		NotifyAdminSubject:  configViper.GetString("notify.admin_subject"),
		NotifyBody:          configViper.GetString("notify.body"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.VerificationBaseURL) == "" {
		return fmt.Errorf("links.verification_base_url is required")
	}
	if strings.TrimSpace(c.CertificateBaseURL) == "" {
		return fmt.Errorf("links.certificate_base_url is required")
	}
	if strings.TrimSpace(c.SessionSigningKey) != "" && strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required when session.signing_secret is set")
	}
	return nil
}
