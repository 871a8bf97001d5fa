package hwire

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/corewire/hwire/internal/compress"
	"github.com/corewire/hwire/pkg/brotli"
)

// Config holds the protocol options consumed by Client.
type Config struct {
	// MaxHeaderSize bounds a response header block, and trailer blocks.
	MaxHeaderSize int `yaml:"max_header_size" mapstructure:"max_header_size" validate:"min=64"`
	// MaxStatusLineLength bounds the response status line.
	MaxStatusLineLength int `yaml:"max_status_line_length" mapstructure:"max_status_line_length" validate:"min=16"`
	// ValidateResponseHeaders checks received names and values.
	ValidateResponseHeaders bool `yaml:"validate_response_headers" mapstructure:"validate_response_headers"`
	// ValidateRequestHeaders checks names and values before sending.
	ValidateRequestHeaders bool `yaml:"validate_request_headers" mapstructure:"validate_request_headers"`
	// ReadTimeout aborts a stalled socket read. Zero disables it.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"min=0"`
	// DialTimeout bounds connection establishment including TLS.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout" validate:"min=0"`
	// RelativeURIs sends origin-form targets even through an HTTP proxy.
	RelativeURIs bool `yaml:"relative_uris" mapstructure:"relative_uris"`
	// ContentDecoding decodes response bodies per Content-Encoding.
	ContentDecoding bool `yaml:"content_decoding" mapstructure:"content_decoding"`
	// Encodings lists the content codings the client accepts.
	Encodings []string `yaml:"encodings" mapstructure:"encodings" validate:"dive,encoding"`
	// MaxChunkSize rejects larger chunks. Zero leaves chunk size unbounded.
	MaxChunkSize int64 `yaml:"max_chunk_size" mapstructure:"max_chunk_size" validate:"min=0"`
	// KeepAlive enables connection reuse.
	KeepAlive bool `yaml:"keep_alive" mapstructure:"keep_alive"`
	// MaxIdlePerKey caps idle pooled connections per destination.
	MaxIdlePerKey int `yaml:"max_idle_per_key" mapstructure:"max_idle_per_key" validate:"min=0"`
	// IdleTimeout discards pooled connections idle longer than this.
	IdleTimeout time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"min=0"`
	// MaxRedirects caps the redirects followed for one call. Zero returns
	// redirect responses to the caller.
	MaxRedirects int `yaml:"max_redirects" mapstructure:"max_redirects" validate:"min=0"`
	// UserAgent is sent when a request sets none.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	// Brotli configures request body compression with "br".
	Brotli BrotliConfig `yaml:"brotli" mapstructure:"brotli"`
	// Debug traces pipeline states through the logger.
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// BrotliConfig tunes the Brotli encoder.
type BrotliConfig struct {
	Quality int `yaml:"quality" mapstructure:"quality" validate:"min=0,max=11"`
	// LGWin overrides the window size. Zero derives it from the input.
	LGWin int `yaml:"lgwin" mapstructure:"lgwin" validate:"omitempty,min=10,max=24"`
}

// DefaultConfig returns the configuration used by New when none is given.
func DefaultConfig() Config {
	return Config{
		MaxHeaderSize:           16 << 10,
		MaxStatusLineLength:     256,
		ValidateResponseHeaders: true,
		ValidateRequestHeaders:  true,
		ReadTimeout:             30 * time.Second,
		DialTimeout:             10 * time.Second,
		ContentDecoding:         true,
		Encodings:               compress.Supported(),
		KeepAlive:               true,
		MaxIdlePerKey:           8,
		IdleTimeout:             90 * time.Second,
		MaxRedirects:            10,
		Brotli:                  BrotliConfig{Quality: brotli.DefaultQuality},
	}
}

func validateEncoding(fl validator.FieldLevel) bool {
	return compress.IsSupported(fl.Field().String())
}

// Validate checks field constraints and returns every violation at once.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("encoding", validateEncoding); err != nil {
		return fmt.Errorf("failed to register encoding validator: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "min":
			messages = append(messages, fmt.Sprintf("%s: must be at least %s", e.Namespace(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s: must be at most %s", e.Namespace(), e.Param()))
		case "encoding":
			messages = append(messages, fmt.Sprintf("%s: unsupported content encoding %q", e.Namespace(), e.Value()))
		default:
			messages = append(messages, fmt.Sprintf("%s: failed %s validation", e.Namespace(), e.Tag()))
		}
	}
	return errors.New("invalid config: " + strings.Join(messages, "; "))
}
