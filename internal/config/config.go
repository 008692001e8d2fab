package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 8443
	DefaultUser     = "admin"
	DefaultLogLevel = "warn"
)

// ErrMissingPassword is returned when the password environment variable is
// unset or empty.
var ErrMissingPassword = errors.New("password environment variable is empty")

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New()

// flagNames maps profile keys to the command line flags that set them.
var flagNames = map[string]string{
	"host":         "-H",
	"port":         "-port",
	"user":         "-U",
	"password_env": "-P",
	"ca_cert":      "-cacert",
	"log_level":    "-log-level",
}

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		return name
	})
}

// Config describes how to reach and authenticate against the Plesk API.
// It never holds the password itself, only the name of the environment
// variable that does.
type Config struct {
	Host        string `yaml:"host" validate:"required,excludesall=/"`
	Port        int    `yaml:"port" validate:"min=1,max=65535"`
	User        string `yaml:"user" validate:"required"`
	PasswordEnv string `yaml:"password_env" validate:"required"`
	CACert      string `yaml:"ca_cert"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
}

// Default returns a config with the built-in defaults applied.
func Default() *Config {
	return &Config{
		Port:     DefaultPort,
		User:     DefaultUser,
		LogLevel: DefaultLogLevel,
	}
}

// LoadFile overlays the values of a YAML profile onto c. Keys missing from
// the file leave the current values untouched.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse profile %s: %w", path, err)
	}
	return nil
}

// Validate checks c and names the first offending setting by its flag and
// profile key, e.g. "-H/host is required".
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	fe := fieldErrs[0]
	return fmt.Errorf("%w: %s/%s %s", ErrInvalidConfig, flagNames[fe.Field()], fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "excludesall":
		return "must be a host name or address, not a URL"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

// Password reads the API password from the configured environment variable.
func (c *Config) Password() (string, error) {
	v := os.Getenv(c.PasswordEnv)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingPassword, c.PasswordEnv)
	}
	return v, nil
}
