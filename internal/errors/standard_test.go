package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestStandardErrorIs(t *testing.T) {
	err := fmt.Errorf("boot: %w", AlreadyInitialized("logger"))

	if !stderrors.Is(err, &StandardError{Category: CategorySystem, Code: CodeAlreadyInitialized}) {
		t.Fatalf("expected wrapped error to match by category and code: %v", err)
	}
	if stderrors.Is(err, &StandardError{Category: CategoryConfig, Code: CodeAlreadyInitialized}) {
		t.Fatal("category mismatch must not match")
	}
	if !HasCode(err, CodeAlreadyInitialized) {
		t.Fatal("HasCode should see through wrapping")
	}
	if HasCode(stderrors.New("plain"), CodeAlreadyInitialized) {
		t.Fatal("plain errors carry no code")
	}
}

func TestStandardErrorCaller(t *testing.T) {
	err := InvalidOffsets(32, 48)
	if err.Caller == "unknown" || err.Caller == "" {
		t.Fatalf("caller not recorded: %+v", err)
	}
	if err.Context["offset2"] != uint8(48) {
		t.Fatalf("context not recorded: %+v", err.Context)
	}
}
