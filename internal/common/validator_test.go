package common

import (
	"errors"
	"testing"
)

type signupBody struct {
	Username string `validate:"required"`
	FullName string `validate:"required"`
}

func TestGenericEchoValidator_Valid(t *testing.T) {
	v := &GenericEchoValidator{}
	if err := v.Validate(&signupBody{Username: "alice", FullName: "Alice A"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestGenericEchoValidator_MissingField(t *testing.T) {
	v := &GenericEchoValidator{}
	err := v.Validate(&signupBody{Username: "alice"})
	if err == nil {
		t.Fatal("expected error for missing full name")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
