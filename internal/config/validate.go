package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	oneOf(&errs, "STORE", cfg.Store, "postgres", "memory")
	oneOf(&errs, "BUS", cfg.Bus, "amqp", "memory")
	oneOf(&errs, "MAIL_TRANSPORT", cfg.MailTransport, "smtp", "resend", "log")
	oneOf(&errs, "LOG_MODE", cfg.LogMode, "development", "production")

	if cfg.Store == "postgres" && cfg.DatabaseURL == "" {
		add("DATABASE_URL", "required when STORE=postgres")
	}

	if cfg.ContactServiceURL == "" {
		add("CONTACT_SERVICE_URL", "required")
	}
	if cfg.TemplateServiceURL == "" && cfg.TemplatesFile == "" {
		add("TEMPLATE_SERVICE_URL", "required unless TEMPLATES_FILE is set")
	}

	durations := []struct {
		field string
		raw   string
	}{
		{"DEDUPE_TTL", cfg.DedupeTTLStr},
		{"CLIENT_TIMEOUT", cfg.ClientTimeoutStr},
		{"BREAKER_COOLDOWN", cfg.BreakerCooldownStr},
		{"RETRY_INTERVAL", cfg.RetryIntervalStr},
		{"RETRY_LOOKBACK", cfg.RetryLookbackStr},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr},
		{"DB_CONN_MAX_LIFETIME", cfg.DBConnMaxLifetimeStr},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			add(d.field, "invalid duration: %v", err)
		} else if parsed <= 0 {
			add(d.field, "must be positive")
		}
	}

	switch cfg.MailTransport {
	case "smtp":
		if cfg.SMTPHost == "" {
			add("SMTP_HOST", "required when MAIL_TRANSPORT=smtp")
		}
		if cfg.MailFrom == "" {
			add("MAIL_FROM", "required when MAIL_TRANSPORT=smtp")
		}
	case "resend":
		if cfg.ResendAPIKey == "" {
			add("RESEND_API_KEY", "required when MAIL_TRANSPORT=resend")
		}
		if cfg.MailFrom == "" {
			add("MAIL_FROM", "required when MAIL_TRANSPORT=resend")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func oneOf(errs *ValidationErrors, field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	*errs = append(*errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of %v, got %q", allowed, value),
	})
}
