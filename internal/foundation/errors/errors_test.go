package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestClassifiedErrorMessage(t *testing.T) {
	err := EventStoreError("append failed").Build()
	want := "[eventstore:error] append failed"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}

	cause := fmt.Errorf("disk full")
	wrapped := StorageError("write failed").WithCause(cause).Build()
	if wrapped.Error() != "[storage:error] write failed: disk full" {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("expected wrapped cause to match with errors.Is")
	}
}

func TestSentinelMatchingSurvivesContext(t *testing.T) {
	sentinel := ConcurrencyError("expected version mismatch").Build()

	annotated := sentinel.WithContext("aggregate_id", "abc").WithContext("expected", 3)
	if !stderrors.Is(annotated, sentinel) {
		t.Error("annotated copy should still match its sentinel")
	}
	if v, ok := annotated.Context().Get("expected"); !ok || v != 3 {
		t.Errorf("expected context value 3, got %v", v)
	}
	if _, ok := sentinel.Context().Get("expected"); ok {
		t.Error("WithContext must not mutate the sentinel")
	}
}

func TestRetryClassification(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{ConcurrencyError("conflict").Build(), true},
		{NatsError("no responders").Build(), true},
		{StorageError("io error").Build(), true},
		{IdentityError("self-caused").Build(), false},
		{CidError("malformed").Build(), false},
		{fmt.Errorf("plain error"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.retryable {
			t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
}

func TestCategoryOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NatsError("publish failed").Build())
	if CategoryOf(err) != CategoryNats {
		t.Errorf("expected nats category, got %s", CategoryOf(err))
	}
	if CategoryOf(fmt.Errorf("plain")) != CategoryInternal {
		t.Error("unclassified errors should map to internal")
	}
}
