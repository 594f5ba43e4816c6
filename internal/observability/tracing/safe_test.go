package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/selections/:id"),
		attribute.String("subject_mobile", "9876543210"),
		attribute.String("selection.id", "1"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "subject_mobile" {
			t.Fatalf("subject_mobile must not be exported")
		}
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	if SafeError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	long := errors.New(strings.Repeat("x", 400))
	if got := SafeError(long); len(got.Error()) != maxErrorLength {
		t.Fatalf("expected truncated error, got %d chars", len(got.Error()))
	}
}
