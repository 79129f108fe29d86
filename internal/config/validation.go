package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minSigningKeyLength matches the HMAC key floor enforced by the correlation codec.
const minSigningKeyLength = 32

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// addErr appends err when it is a ValidationError.
func (ve *ValidationErrors) addErr(err error) {
	if err == nil {
		return
	}
	if v, ok := err.(ValidationError); ok {
		*ve = append(*ve, v)
		return
	}
	ve.Add("", err.Error())
}

// ValidateRequired checks if a required string field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "is required",
		}
	}
	return nil
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateMinLength checks if a string meets minimum length requirements
func ValidateMinLength(field, value string, minLength int) error {
	if len(strings.TrimSpace(value)) < minLength {
		return ValidationError{
			Field:   field,
			Value:   "<redacted>",
			Message: fmt.Sprintf("must be at least %d characters long", minLength),
		}
	}
	return nil
}

// ValidateURL checks that value is an absolute http(s) URL.
func ValidateURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must be an absolute http(s) URL",
		}
	}
	return nil
}

// ValidatePath checks that value is an absolute URL path.
func ValidatePath(field, value string) error {
	if !strings.HasPrefix(value, "/") {
		return ValidationError{
			Field:   field,
			Value:   value,
			Message: "must start with '/'",
		}
	}
	return nil
}

// Validate checks the configuration for values authbot cannot run with.
func (c AuthbotConfig) Validate() error {
	var errs ValidationErrors

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.Add("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	errs.addErr(ValidateURL("server.publicURL", c.Server.PublicURL))
	errs.addErr(ValidatePath("server.loginPath", c.Server.LoginPath))
	errs.addErr(ValidatePath("server.callbackPath", c.Server.CallbackPath))
	errs.addErr(ValidatePath("server.messagesPath", c.Server.MessagesPath))

	errs.addErr(ValidateRequired("oauth.issuerURL", c.OAuth.IssuerURL))
	errs.addErr(ValidateRequired("oauth.clientID", c.OAuth.ClientID))
	if c.OAuth.IssuerURL != "" {
		errs.addErr(ValidateURL("oauth.issuerURL", c.OAuth.IssuerURL))
	}
	if c.OAuth.TokenURL != "" {
		errs.addErr(ValidateURL("oauth.tokenURL", c.OAuth.TokenURL))
	}

	errs.addErr(ValidateMinLength("correlation.signingKey", c.Correlation.SigningKey, minSigningKeyLength))

	if c.Pending.TTL <= 0 {
		errs.Add("pending.ttl", "must be positive", c.Pending.TTL)
	}
	if c.Refresh.MaxAttempts < 1 {
		errs.Add("refresh.maxAttempts", "must be at least 1", c.Refresh.MaxAttempts)
	}
	if c.Refresh.MaxBackoff < c.Refresh.InitialBackoff {
		errs.Add("refresh.maxBackoff", "must not be smaller than refresh.initialBackoff", c.Refresh.MaxBackoff)
	}

	errs.addErr(ValidateOneOf("store.driver", string(c.Store.Driver),
		[]string{string(StoreDriverMemory), string(StoreDriverSQLite)}))
	if c.Store.Driver == StoreDriverSQLite {
		errs.addErr(ValidateRequired("store.path", c.Store.Path))
	}

	errs.addErr(ValidateOneOf("messaging.transport", string(c.Messaging.Transport),
		[]string{string(TransportWebhook), string(TransportKafka), string(TransportConsole)}))
	switch c.Messaging.Transport {
	case TransportWebhook:
		errs.addErr(ValidateRequired("messaging.webhook.url", c.Messaging.Webhook.URL))
		if c.Messaging.Webhook.URL != "" {
			errs.addErr(ValidateURL("messaging.webhook.url", c.Messaging.Webhook.URL))
		}
	case TransportKafka:
		if len(c.Messaging.Kafka.Brokers) == 0 {
			errs.Add("messaging.kafka.brokers", "at least one broker is required")
		}
	}

	errs.addErr(ValidateOneOf("logLevel", strings.ToLower(c.LogLevel), []string{"debug", "info", "warn", "warning", "error"}))

	if errs.HasErrors() {
		return errs
	}
	return nil
}
