package header

import (
	"strings"
	"testing"

	"github.com/corewire/hwire/internal/tests"
)

func TestLookupKnown(t *testing.T) {
	for tag := Tag(1); tag < numTags; tag++ {
		name := tag.String()
		tests.AssertTrue(t, name != "", "canonical name set")
		tests.AssertEqual(t, tag, Lookup(strings.ToLower(name)))
	}
}

func TestLookupUnknown(t *testing.T) {
	tests.AssertEqual(t, Unknown, Lookup("x-request-id"))
	tests.AssertEqual(t, Unknown, Lookup("Content-Length"))
	tests.AssertEqual(t, "", Tag(250).String())
}
