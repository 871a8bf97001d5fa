package hwire

import (
	"bytes"
	"log"
	"testing"

	"github.com/corewire/hwire/internal/tests"
)

func TestLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewLogger(buf, "", log.Ldate|log.Lmicroseconds)
	l.Errorf("dial %s failed", "example.com:80")
	tests.AssertContains(t, buf.String(), "ERROR [hwire] dial example.com:80 failed", true)
	buf.Reset()
	l.Warnf("plain")
	tests.AssertContains(t, buf.String(), "WARN [hwire] plain", true)
}

func TestFromStandardLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewFromStandardLogger(log.New(buf, "", 0))
	l.Debugf("state %d", 3)
	tests.AssertEqual(t, "DEBUG [hwire] state 3\n", buf.String())
}
