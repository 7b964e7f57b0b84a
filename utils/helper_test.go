package utils

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestProcessValidationErrors(t *testing.T) {
	type input struct {
		Resolution string `validate:"required"`
		Severity   string `validate:"oneof=low high"`
	}
	err := validator.New().Struct(input{Severity: "extreme"})
	got := ProcessValidationErrors(err)
	want := map[string]string{"Resolution": "required", "Severity": "oneof"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	plain := ProcessValidationErrors(errors.New("unexpected EOF"))
	if plain["_"] != "unexpected EOF" {
		t.Fatalf("non-validation error: %v", plain)
	}
}

func TestSplitAndTrim(t *testing.T) {
	if SplitAndTrim("  ") != nil {
		t.Fatalf("blank input should give nil")
	}
	got := SplitAndTrim(" https://a.example ,, https://b.example ")
	if !reflect.DeepEqual(got, []string{"https://a.example", "https://b.example"}) {
		t.Fatalf("got %v", got)
	}
}

func TestDereferencePtr(t *testing.T) {
	s := "x"
	if DereferencePtr(&s) != "x" || DereferencePtr[string](nil) != "" || DereferencePtr(nil, "d") != "d" {
		t.Fatalf("DereferencePtr misbehaves")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := SetCorrelationIdInContext(context.Background(), "cid-1")
	ctx = SetRequestPathInContext(ctx, "/api/anomalies")
	if cid, ok := GetCorrelationIdFromContext(ctx); !ok || cid != "cid-1" {
		t.Fatalf("correlation id=%q ok=%v", cid, ok)
	}
	if path, ok := GetRequestPathFromContext(ctx); !ok || path != "/api/anomalies" {
		t.Fatalf("path=%q ok=%v", path, ok)
	}
	if _, ok := GetCorrelationIdFromContext(context.Background()); ok {
		t.Fatalf("empty context should report missing id")
	}
}
