package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCategoryMatching(t *testing.T) {
	sentinel := stderrors.New("supply exhausted")
	err := New(CategoryCapacity, sentinel, "")

	if !Is(err, CategoryCapacity) {
		t.Fatal("expected category match")
	}
	if Is(err, CategoryAuthorization) {
		t.Fatal("unexpected category match")
	}
	if !stderrors.Is(err, sentinel) {
		t.Fatal("expected wrapped error to unwrap")
	}
	// Wrapping again keeps the category reachable.
	wrapped := fmt.Errorf("minting: %w", err)
	if !Is(wrapped, CategoryCapacity) {
		t.Fatal("expected category match through wrapping")
	}
}

func TestMessageDefaultsToError(t *testing.T) {
	err := New(CategoryPolicy, stderrors.New("vault is paused"), "")
	var svcErr *ServiceError
	if !stderrors.As(err, &svcErr) {
		t.Fatal("expected a ServiceError")
	}
	if svcErr.Message != "vault is paused" {
		t.Fatalf("unexpected message %q", svcErr.Message)
	}
}

func TestGeneralHidesDetail(t *testing.T) {
	err := General(stderrors.New("dial tcp: connection refused"))
	var svcErr *ServiceError
	if !stderrors.As(err, &svcErr) {
		t.Fatal("expected a ServiceError")
	}
	if svcErr.Message != "Internal Server Error" {
		t.Fatalf("expected generic message, got %q", svcErr.Message)
	}
	if svcErr.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", svcErr.StatusCode())
	}
}

func TestStatusCodes(t *testing.T) {
	cases := map[Category]int{
		CategoryAuthorization:    http.StatusForbidden,
		CategoryStateMismatch:    http.StatusConflict,
		CategoryCapacity:         http.StatusUnprocessableEntity,
		CategoryAccounting:       http.StatusPaymentRequired,
		CategoryIdentityConflict: http.StatusConflict,
		CategoryMalformedInput:   http.StatusBadRequest,
		CategoryPolicy:           http.StatusForbidden,
		CategoryGeneral:          http.StatusInternalServerError,
	}
	for cat, want := range cases {
		e := &ServiceError{Category: cat}
		if got := e.StatusCode(); got != want {
			t.Fatalf("category %s: expected %d, got %d", cat, want, got)
		}
	}
}
