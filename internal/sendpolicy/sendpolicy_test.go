package sendpolicy

import (
	"testing"
	"time"
)

func TestAllowDisabledAlwaysAdmits(t *testing.T) {
	p := New(Config{Enabled: false, MaxPerWindow: 1, Window: time.Minute})
	for i := 0; i < 10; i++ {
		if !p.Allow("s1") {
			t.Fatalf("disabled policy should always admit")
		}
	}
}

func TestAllowEnforcesWindowLimit(t *testing.T) {
	p := New(Config{Enabled: true, MaxPerWindow: 2, Window: time.Minute})
	if !p.Allow("s1") {
		t.Fatalf("expected first request admitted")
	}
	if !p.Allow("s1") {
		t.Fatalf("expected second request admitted")
	}
	if p.Allow("s1") {
		t.Fatalf("expected third request within window to be refused")
	}
}

func TestAllowIsPerSession(t *testing.T) {
	p := New(Config{Enabled: true, MaxPerWindow: 1, Window: time.Minute})
	if !p.Allow("s1") {
		t.Fatalf("expected s1 first request admitted")
	}
	if !p.Allow("s2") {
		t.Fatalf("expected s2 unaffected by s1's usage")
	}
}

func TestAllowSlidesWindow(t *testing.T) {
	p := New(Config{Enabled: true, MaxPerWindow: 1, Window: 10 * time.Millisecond})
	if !p.Allow("s1") {
		t.Fatalf("expected first admitted")
	}
	if p.Allow("s1") {
		t.Fatalf("expected immediate second to be refused")
	}
	time.Sleep(20 * time.Millisecond)
	if !p.Allow("s1") {
		t.Fatalf("expected admission after window slides past cutoff")
	}
}
