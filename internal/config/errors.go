package config

import "fmt"

// ConfigurationError describes a failure to read or decode the configuration file.
type ConfigurationError struct {
	FilePath  string `json:"filePath"`
	ErrorType string `json:"errorType"` // io, parse or env
	Message   string `json:"message"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	return fmt.Sprintf("config %s error in %s: %s", ce.ErrorType, ce.FilePath, ce.Message)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(filePath, errorType, message string) ConfigurationError {
	return ConfigurationError{
		FilePath:  filePath,
		ErrorType: errorType,
		Message:   message,
	}
}
