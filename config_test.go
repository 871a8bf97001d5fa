package hwire

import (
	"testing"
	"time"

	"github.com/corewire/hwire/internal/tests"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	tests.AssertNoError(t, cfg.Validate())
	tests.AssertEqual(t, 16<<10, cfg.MaxHeaderSize)
	tests.AssertEqual(t, 256, cfg.MaxStatusLineLength)
	tests.AssertEqual(t, 30*time.Second, cfg.ReadTimeout)
	tests.AssertEqual(t, []string{"gzip", "deflate", "br", "zstd"}, cfg.Encodings)
	tests.AssertEqual(t, int64(0), cfg.MaxChunkSize)
	tests.AssertTrue(t, cfg.KeepAlive && cfg.ContentDecoding, "keep-alive and decoding on")
}

func TestConfigValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHeaderSize = 10
	cfg.ReadTimeout = -time.Second
	cfg.Encodings = []string{"gzip", "lzma"}
	cfg.Brotli.Quality = 12
	cfg.Brotli.LGWin = 30
	err := cfg.Validate()
	tests.AssertErrorContains(t, err, "invalid config")
	tests.AssertErrorContains(t, err, "Config.MaxHeaderSize: must be at least 64")
	tests.AssertErrorContains(t, err, "Config.ReadTimeout: must be at least 0")
	tests.AssertErrorContains(t, err, `unsupported content encoding "lzma"`)
	tests.AssertErrorContains(t, err, "Config.Brotli.Quality: must be at most 11")
	tests.AssertErrorContains(t, err, "Config.Brotli.LGWin: must be at most 24")
}

func TestConfigLGWinZeroMeansAuto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Brotli.LGWin = 0
	tests.AssertNoError(t, cfg.Validate())
	cfg.Brotli.LGWin = 9
	tests.AssertErrorContains(t, cfg.Validate(), "Config.Brotli.LGWin: must be at least 10")
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxStatusLineLength = 1
	_, err := NewClient(cfg)
	tests.AssertErrorContains(t, err, "MaxStatusLineLength")
}
