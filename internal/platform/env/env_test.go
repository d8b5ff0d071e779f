package env

import (
	"testing"
	"time"
)

func TestStringFallsBackToDefault(t *testing.T) {
	if got := String("PIPETRACE_TEST_UNSET_STRING", "fallback"); got != "fallback" {
		t.Fatalf("String() = %q, want fallback", got)
	}
	t.Setenv("PIPETRACE_TEST_STRING", "value")
	if got := String("PIPETRACE_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("String() = %q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	d, err := Duration("PIPETRACE_TEST_UNSET_DURATION", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("Duration() = %v, %v", d, err)
	}
	t.Setenv("PIPETRACE_TEST_DURATION", "250ms")
	d, err = Duration("PIPETRACE_TEST_DURATION", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Fatalf("Duration() = %v, %v", d, err)
	}
	t.Setenv("PIPETRACE_TEST_DURATION", "not-a-duration")
	if _, err := Duration("PIPETRACE_TEST_DURATION", time.Second); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("PIPETRACE_TEST_BOOL", "true")
	b, err := Bool("PIPETRACE_TEST_BOOL", false)
	if err != nil || !b {
		t.Fatalf("Bool() = %v, %v", b, err)
	}
	t.Setenv("PIPETRACE_TEST_BOOL", "banana")
	if _, err := Bool("PIPETRACE_TEST_BOOL", false); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("PIPETRACE_TEST_INT", "42")
	i, err := Int("PIPETRACE_TEST_INT", 7)
	if err != nil || i != 42 {
		t.Fatalf("Int() = %v, %v", i, err)
	}
	t.Setenv("PIPETRACE_TEST_INT", "x")
	if _, err := Int("PIPETRACE_TEST_INT", 7); err == nil {
		t.Fatal("expected parse error")
	}
}
