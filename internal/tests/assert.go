package tests

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func AssertIsNil(t *testing.T, v interface{}) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("[%v] was expected to be nil", v)
	}
}

func AssertNotNil(t *testing.T, v interface{}) {
	t.Helper()
	if isNil(v) {
		t.Fatalf("[%v] was expected to be non-nil", v)
	}
}

func AssertEqual(t *testing.T, e, g interface{}) {
	t.Helper()
	if !reflect.DeepEqual(e, g) {
		t.Errorf("Expected [%+v], got [%+v]", e, g)
	}
}

// AssertBytesEqual compares byte slices and reports a short diff position
// instead of dumping both slices.
func AssertBytesEqual(t *testing.T, e, g []byte) {
	t.Helper()
	if bytes.Equal(e, g) {
		return
	}
	i := 0
	for i < len(e) && i < len(g) && e[i] == g[i] {
		i++
	}
	t.Errorf("byte slices differ at offset %d (expected len %d, got len %d)", i, len(e), len(g))
}

func AssertTrue(t *testing.T, b bool, msg string) {
	t.Helper()
	if !b {
		t.Errorf("expected true: %s", msg)
	}
}

func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Error occurred [%v]", err)
	}
}

func AssertErrorContains(t *testing.T, err error, s string) {
	t.Helper()
	if err == nil {
		t.Error("err is nil")
		return
	}
	if !strings.Contains(err.Error(), s) {
		t.Errorf("%q is not included in error %q", s, err.Error())
	}
}

func AssertContains(t *testing.T, s, substr string, shouldContain bool) {
	t.Helper()
	isContain := strings.Contains(s, substr)
	if shouldContain {
		if !isContain {
			t.Errorf("%q is not included in %s", substr, s)
		}
	} else {
		if isContain {
			t.Errorf("%q is included in %q", substr, s)
		}
	}
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	kind := rv.Kind()
	if kind >= reflect.Chan && kind <= reflect.Slice && rv.IsNil() {
		return true
	}
	return false
}
