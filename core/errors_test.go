package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestRelayErrorMapper_Sentinels(t *testing.T) {
	cases := []struct {
		err      error
		category goerrors.Category
		textCode string
		status   int
	}{
		{fmt.Errorf("%w: evt_1", ErrEventNotFound), goerrors.CategoryNotFound, RelayErrorEventNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: sub_1", ErrSubscriptionNotFound), goerrors.CategoryNotFound, RelayErrorSubscriptionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: att_1", ErrAttemptNotFound), goerrors.CategoryNotFound, RelayErrorAttemptNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: billing", ErrUnknownEventType), goerrors.CategoryBadInput, RelayErrorBadInput, http.StatusBadRequest},
		{errors.New("sqlstore: insert delivery attempt: disk full"), goerrors.CategoryInternal, RelayErrorStoreFailure, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		mapped := relayErrorMapper(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapped error for %v", tc.err)
		}
		if mapped.Category != tc.category || mapped.TextCode != tc.textCode || mapped.Code != tc.status {
			t.Fatalf("unexpected mapping for %v: %+v", tc.err, mapped)
		}
	}
}

func TestRelayErrorMapper_KeepsRichErrors(t *testing.T) {
	rich := goerrors.New("custom", goerrors.CategoryConflict).WithTextCode("CUSTOM")
	mapped := relayErrorMapper(fmt.Errorf("wrapped: %w", rich))
	if mapped.TextCode != "CUSTOM" || mapped.Code != http.StatusConflict {
		t.Fatalf("expected rich error to be kept, got %+v", mapped)
	}
	if relayErrorMapper(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestStoreFailure_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := storeFailure(cause, "core: list active subscriptions failed")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors envelope")
	}
	if richErr.TextCode != RelayErrorStoreFailure || richErr.Category != goerrors.CategoryInternal {
		t.Fatalf("unexpected envelope %+v", richErr)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if storeFailure(nil, "noop") != nil {
		t.Fatalf("expected nil for nil cause")
	}
	if again := storeFailure(err, "outer"); again != err {
		t.Fatalf("expected rich errors to pass through")
	}
}

func TestNotFound_PreservesSentinel(t *testing.T) {
	err := notFound(fmt.Errorf("%w: sub_1", ErrSubscriptionNotFound), RelayErrorSubscriptionNotFound)
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected sentinel to be preserved")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	if joinErrors(nil, second) != second || joinErrors(first, nil) != first {
		t.Fatalf("expected single errors to pass through")
	}
	joined := joinErrors(first, second)
	if !errors.Is(joined, first) || !errors.Is(joined, second) {
		t.Fatalf("expected joined error to contain both")
	}
}
