package record

import (
	"fmt"
	"testing"
)

// checkValidityInvariant asserts the flag and the count always agree.
func checkValidityInvariant(t *testing.T, e *Entity) {
	t.Helper()
	if e.validOverride != nil {
		return
	}
	valid := e.IsValid()
	count := e.Validity().ErrorCount()
	if valid != (count == 0) {
		t.Fatalf("validity invariant broken: valid=%v count=%d", valid, count)
	}
}

func TestAggregatorInitialEvaluation(t *testing.T) {
	reg := newFakeRegistry()
	e := New(newTestType(t), reg)

	agg := e.Validity()
	// id and display_name have no validators, the other four start empty.
	if agg.ErrorCount() != 4 {
		t.Fatalf("expected 4 initial errors, got %d", agg.ErrorCount())
	}
	if e.IsValid() {
		t.Fatalf("expected invalid record")
	}
	want := []string{"country", "email", "phone", "postal_code"}
	got := agg.InvalidProperties()
	if len(got) != len(want) {
		t.Fatalf("unexpected invalid properties %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("invalid properties not sorted: %v", got)
		}
	}
	if agg.Error("email") == nil {
		t.Fatalf("expected error slot for email")
	}
	if agg.Error("id") != nil {
		t.Fatalf("expected nil error slot for id")
	}
	checkValidityInvariant(t, e)
}

func TestAggregatorIncrementalCount(t *testing.T) {
	reg := newFakeRegistry()
	e := New(newTestType(t), reg)
	e.Validity()

	fillValid(t, e)
	checkValidityInvariant(t, e)
	if !e.IsValid() {
		t.Fatalf("expected valid record, errors: %v", e.Validity().InvalidProperties())
	}

	// Invalid write flips exactly one slot.
	mustSet(t, e, "email", "")
	if got := e.Validity().ErrorCount(); got != 1 {
		t.Fatalf("expected 1 error, got %d", got)
	}
	// Changing the failure message keeps the count stable.
	mustSet(t, e, "email", 42)
	if got := e.Validity().ErrorCount(); got != 1 {
		t.Fatalf("expected count unchanged on message change, got %d", got)
	}
	mustSet(t, e, "email", "ada@example.org")
	if got := e.Validity().ErrorCount(); got != 0 {
		t.Fatalf("expected 0 errors, got %d", got)
	}
	checkValidityInvariant(t, e)
}

func TestDependentRevalidatesOncePerChange(t *testing.T) {
	counts := map[string]int{}
	counting := func(_ any, property string, _ *Entity) error {
		counts[property]++
		return nil
	}
	typ, err := NewType(Definition{
		Name: "pair",
		Attributes: []Attribute{
			{Property: "id"},
			{Property: "b", Validator: counting},
			{Property: "a", Validator: counting, DependsOn: []string{"b"}},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e := New(typ, newFakeRegistry())
	e.Validity()
	clear(counts)

	mustSet(t, e, "b", "one")
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Fatalf("expected one revalidation each, got %v", counts)
	}
}

func TestBatchedWritesRevalidateOnce(t *testing.T) {
	counts := map[string]int{}
	counting := func(_ any, property string, _ *Entity) error {
		counts[property]++
		return nil
	}
	typ, err := NewType(Definition{
		Name: "pair",
		Attributes: []Attribute{
			{Property: "id"},
			{Property: "b", Validator: counting},
			{Property: "a", Validator: counting, DependsOn: []string{"b"}},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e := New(typ, newFakeRegistry())
	e.Validity()
	clear(counts)

	scope := e.BeginChanges()
	mustSet(t, e, "b", "one")
	mustSet(t, e, "b", "two")
	mustSet(t, e, "b", "three")
	scope.End()

	if counts["a"] != 1 || counts["b"] != 1 {
		t.Fatalf("expected one revalidation per dependent for the whole batch, got %v", counts)
	}
	if got := e.Get("b"); got != "three" {
		t.Fatalf("coalescing must not lose the final value, got %v", got)
	}
}

func TestSharedDependencyCountsEachDependentOnce(t *testing.T) {
	counts := map[string]int{}
	// a and c both depend on b and fail exactly when b holds "reject".
	rejectable := func(_ any, property string, e *Entity) error {
		counts[property]++
		if v, _ := e.Get("b").(string); v == "reject" {
			return fmt.Errorf("%s rejected", property)
		}
		return nil
	}
	typ, err := NewType(Definition{
		Name: "triad",
		Attributes: []Attribute{
			{Property: "id"},
			{Property: "b"},
			{Property: "a", DependsOn: []string{"b"}, Validator: rejectable},
			{Property: "c", DependsOn: []string{"b"}, Validator: rejectable},
		},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	e := New(typ, newFakeRegistry())
	e.Validity()
	if got := e.Validity().ErrorCount(); got != 0 {
		t.Fatalf("expected clean start, got %d errors", got)
	}
	clear(counts)

	mustSet(t, e, "b", "reject")
	if counts["a"] != 1 || counts["c"] != 1 {
		t.Fatalf("expected each dependent revalidated exactly once, got %v", counts)
	}
	if got := e.Validity().ErrorCount(); got != 2 {
		t.Fatalf("expected both dependents in error without double counting, got %d", got)
	}

	clear(counts)
	mustSet(t, e, "b", "fine")
	if counts["a"] != 1 || counts["c"] != 1 {
		t.Fatalf("expected each dependent revalidated exactly once, got %v", counts)
	}
	if got := e.Validity().ErrorCount(); got != 0 {
		t.Fatalf("expected recovery to zero errors, got %d", got)
	}
	checkValidityInvariant(t, e)
}

func TestAggregatorSubscribesOncePerDependencyKey(t *testing.T) {
	typ := newTestType(t)
	e := New(typ, newFakeRegistry())
	e.Validity()

	for _, key := range typ.DependencyKeys() {
		if got := len(e.observers[key]); got != 1 {
			t.Fatalf("expected one subscription for %q, got %d", key, got)
		}
	}
}

func TestCountryChangeRevalidatesDependents(t *testing.T) {
	reg := newFakeRegistry()
	e := New(newTestType(t), reg)
	e.Validity()
	fillValid(t, e)
	if !e.IsValid() {
		t.Fatalf("expected valid record")
	}

	// Belgian phone and postal formats stop validating under US rules.
	mustSet(t, e, "country", "US")
	agg := e.Validity()
	if agg.ErrorCount() != 2 {
		t.Fatalf("expected phone and postal_code in error, got %d (%v)", agg.ErrorCount(), agg.InvalidProperties())
	}
	if agg.Error("country") != nil {
		t.Fatalf("country itself should remain valid")
	}

	mustSet(t, e, "phone", "3015550147")
	mustSet(t, e, "postal_code", "20500")
	if !e.IsValid() {
		t.Fatalf("expected valid record after fixes, errors: %v", agg.InvalidProperties())
	}
	checkValidityInvariant(t, e)
}

func TestSetValidOverrideClearsOnRecount(t *testing.T) {
	reg := newFakeRegistry()
	e := New(newTestType(t), reg)
	fillValid(t, e)
	mustSet(t, e, "email", "")
	if e.IsValid() {
		t.Fatalf("expected invalid record")
	}

	e.SetValid(true)
	if !e.IsValid() {
		t.Fatalf("expected override to win")
	}
	if e.Validity().ErrorCount() != 1 {
		t.Fatalf("override must not touch the count")
	}

	// The next count change reasserts computed validity.
	mustSet(t, e, "email", "ada@example.org")
	if !e.IsValid() {
		t.Fatalf("expected computed validity after recount")
	}
	if e.validOverride != nil {
		t.Fatalf("expected override cleared")
	}
	mustSet(t, e, "email", "")
	if e.IsValid() {
		t.Fatalf("expected computed invalidity to show again")
	}
}

func TestValidateValueDoesNotMutate(t *testing.T) {
	reg := newFakeRegistry()
	e := New(newTestType(t), reg)
	fillValid(t, e)
	if !e.IsValid() {
		t.Fatalf("expected valid record")
	}

	if err := e.ValidateValue("email", ""); err == nil {
		t.Fatalf("expected candidate rejection")
	}
	if err := e.ValidateValue("email", "ok@example.org"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if err := e.ValidateValue("ghost", "x"); err == nil {
		t.Fatalf("expected unknown attribute error")
	}
	if !e.IsValid() || e.Validity().ErrorCount() != 0 {
		t.Fatalf("candidate checks must not change aggregator state")
	}
	if got := e.Get("email"); got != "ada@example.org" {
		t.Fatalf("candidate checks must not change values, got %v", got)
	}
}
