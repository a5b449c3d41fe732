// Package assert provides the small test assertion helpers used by the
// package tests. Each helper marks the test failed and keeps going, so one
// test can report every mismatch at once.
package assert

import (
	"reflect"
	"strings"
	"testing"
)

// Equal fails the test when expected != actual.
func Equal[T comparable](t *testing.T, expected, actual T, msg string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// True fails the test when cond is false.
func True(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Errorf("%s: expected true", msg)
	}
}

// False fails the test when cond is true.
func False(t *testing.T, cond bool, msg string) {
	t.Helper()
	if cond {
		t.Errorf("%s: expected false", msg)
	}
}

// Nil fails the test when v is neither nil nor a nil pointer/slice/map.
func Nil(t *testing.T, v any, msg string) {
	t.Helper()
	if !isNil(v) {
		t.Errorf("%s: expected nil, got %v", msg, v)
	}
}

// NotNil fails the test when v is nil.
func NotNil(t *testing.T, v any, msg string) {
	t.Helper()
	if isNil(v) {
		t.Errorf("%s: expected non-nil", msg)
	}
}

// Contains fails the test when substr is not within s.
func Contains(t *testing.T, s, substr, msg string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%s: expected %q to contain %q", msg, s, substr)
	}
}

// NoError fails the test when err is non-nil.
func NoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Errorf("%s: unexpected error: %v", msg, err)
	}
}

// Error fails the test when err is nil.
func Error(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Errorf("%s: expected error", msg)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
