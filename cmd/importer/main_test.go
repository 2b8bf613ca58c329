package main

import (
	"testing"
)

func TestParseOptions(t *testing.T) {
	getenv := func(key string) string { return "" }

	opts, err := parseOptions([]string{"-dir", "./seed"}, getenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.owner != "default" {
		t.Fatalf("expected default owner, got %s", opts.owner)
	}
	if opts.dir != "./seed" {
		t.Fatalf("expected ./seed, got %s", opts.dir)
	}

	opts, err = parseOptions([]string{"-owner", "alice", "-dir", "/tmp/docs"}, getenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.owner != "alice" {
		t.Fatalf("expected alice, got %s", opts.owner)
	}
}

func TestParseOptionsOwnerFromEnv(t *testing.T) {
	getenv := func(key string) string {
		if key == "DEFAULT_OWNER" {
			return "bob"
		}
		return ""
	}

	opts, err := parseOptions([]string{"-dir", "./seed"}, getenv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.owner != "bob" {
		t.Fatalf("expected env owner bob, got %s", opts.owner)
	}
}

func TestParseOptionsRequiresDir(t *testing.T) {
	getenv := func(key string) string { return "" }

	if _, err := parseOptions(nil, getenv); err == nil {
		t.Fatal("expected missing dir error")
	}
	if _, err := parseOptions([]string{"-owner", " ", "-dir", "./seed"}, getenv); err == nil {
		t.Fatal("expected empty owner error")
	}
}
