package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/corewire/hwire"
)

const envPrefix = "HWIRE"

// newViper returns a Viper reading cfgFile, or hwire.yaml/.yml from the
// standard locations, with HWIRE_ environment overrides. Every key of
// hwire.Config gets a default so AutomaticEnv can resolve it.
func newViper(cfgFile string) *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if found := findConfigFile(); found != "" {
		v.SetConfigFile(found)
	} else {
		v.SetConfigName("hwire")
		v.SetConfigType("yaml")
	}

	// HWIRE_BROTLI_QUALITY=5
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, hwire.DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, d hwire.Config) {
	v.SetDefault("max_header_size", d.MaxHeaderSize)
	v.SetDefault("max_status_line_length", d.MaxStatusLineLength)
	v.SetDefault("validate_response_headers", d.ValidateResponseHeaders)
	v.SetDefault("validate_request_headers", d.ValidateRequestHeaders)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("dial_timeout", d.DialTimeout)
	v.SetDefault("relative_uris", d.RelativeURIs)
	v.SetDefault("content_decoding", d.ContentDecoding)
	v.SetDefault("encodings", d.Encodings)
	v.SetDefault("max_chunk_size", d.MaxChunkSize)
	v.SetDefault("keep_alive", d.KeepAlive)
	v.SetDefault("max_idle_per_key", d.MaxIdlePerKey)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("max_redirects", d.MaxRedirects)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("brotli.quality", d.Brotli.Quality)
	v.SetDefault("brotli.lgwin", d.Brotli.LGWin)
	v.SetDefault("debug", d.Debug)
}

// findConfigFile looks for hwire.yaml or hwire.yml with an explicit
// extension so the binary itself never matches.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	return findConfigFileInPaths([]string{".", filepath.Join(home, ".hwire"), "/etc/hwire"})
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "hwire"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// loadConfig reads the config file if there is one, applies environment
// and flag overrides and validates the result.
func loadConfig(v *viper.Viper) (hwire.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return hwire.Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	var cfg hwire.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return hwire.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return hwire.Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}
