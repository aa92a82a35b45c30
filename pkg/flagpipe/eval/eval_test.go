package eval_test

import (
	"testing"

	"github.com/randalmurphal/flagpipe/pkg/flagpipe/contexts"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/eval"
	"github.com/randalmurphal/flagpipe/pkg/flagpipe/store"
)

func TestStoreEvaluatorHit(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	variation := 1
	if _, err := s.Upsert(store.Flag{
		Key:            "feature-x",
		Version:        7,
		Value:          true,
		VariationIndex: &variation,
		TrackEvents:    true,
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	e := eval.NewStoreEvaluator(s)
	detail := e.Detail(contexts.New("u1"), "feature-x", false)

	if detail.Value != true {
		t.Errorf("expected value true, got %v", detail.Value)
	}
	if detail.VariationIndex == nil || *detail.VariationIndex != 1 {
		t.Errorf("expected variation 1, got %v", detail.VariationIndex)
	}
	if detail.Reason != eval.ReasonFallthrough {
		t.Errorf("expected reason %s, got %s", eval.ReasonFallthrough, detail.Reason)
	}
	if detail.FlagVersion == nil || *detail.FlagVersion != 7 {
		t.Errorf("expected flag version 7, got %v", detail.FlagVersion)
	}
	if !detail.TrackEvents {
		t.Error("expected TrackEvents to carry through")
	}
	if detail.IsDefault() {
		t.Error("expected non-default result")
	}
}

func TestStoreEvaluatorMiss(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	e := eval.NewStoreEvaluator(s)
	detail := e.Detail(contexts.New("u1"), "missing", "fallback")

	if detail.Value != "fallback" {
		t.Errorf("expected default value, got %v", detail.Value)
	}
	if detail.Reason != eval.ReasonFlagNotFound {
		t.Errorf("expected reason %s, got %s", eval.ReasonFlagNotFound, detail.Reason)
	}
	if !detail.IsDefault() {
		t.Error("expected default result")
	}
	if detail.FlagVersion != nil {
		t.Errorf("expected nil flag version, got %v", detail.FlagVersion)
	}
}

func TestStoreEvaluatorInvalidContext(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	e := eval.NewStoreEvaluator(s)
	detail := e.Detail(contexts.New(""), "feature-x", 3)

	if detail.Value != 3 {
		t.Errorf("expected default value, got %v", detail.Value)
	}
	if detail.Reason != eval.ReasonError {
		t.Errorf("expected reason %s, got %s", eval.ReasonError, detail.Reason)
	}
}
