package postgres

import (
	"context"
	"strings"
	"testing"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
	if !strings.Contains(err.Error(), "history dsn") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{DSN: "postgres://%zz"}); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}
