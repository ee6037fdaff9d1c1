package memory

import (
	"testing"

	"github.com/kilohq/kilo/pkg/models"
)

func factByKey(facts []*models.MemoryFact, key string) *models.MemoryFact {
	for _, f := range facts {
		if f.Key == key {
			return f
		}
	}
	return nil
}

func TestExtractName(t *testing.T) {
	facts := Extract("Hi, my name is Alice Johnson.")
	f := factByKey(facts, "name")
	if f == nil {
		t.Fatal("no name fact")
	}
	if f.Value != "Alice Johnson" {
		t.Errorf("value = %q", f.Value)
	}
	if f.Source != models.MemoryUserStated || f.Confidence < 0.9 {
		t.Errorf("source = %q, confidence = %f", f.Source, f.Confidence)
	}
}

func TestExtractMultipleFactsSplitsClauses(t *testing.T) {
	facts := Extract("I live in Berlin and I work at Siemens")
	loc := factByKey(facts, "location")
	if loc == nil || loc.Value != "Berlin" {
		t.Fatalf("location = %+v", loc)
	}
	emp := factByKey(facts, "employer")
	if emp == nil || emp.Value != "Siemens" {
		t.Fatalf("employer = %+v", emp)
	}
}

func TestExtractInferredPreference(t *testing.T) {
	facts := Extract("I really love hiking in the mountains")
	f := factByKey(facts, "likes")
	if f == nil {
		t.Fatal("no likes fact")
	}
	if f.Source != models.MemoryInferred {
		t.Errorf("source = %q, want inferred", f.Source)
	}
	if f.Confidence >= 0.9 {
		t.Errorf("confidence = %f, inferred facts are low confidence", f.Confidence)
	}
}

func TestExtractNothingFromPlainChat(t *testing.T) {
	if facts := Extract("what's the weather like tomorrow?"); len(facts) != 0 {
		t.Fatalf("unexpected facts: %+v", facts)
	}
}

func TestExtractEmail(t *testing.T) {
	facts := Extract("my email is alice@example.com thanks")
	f := factByKey(facts, "email")
	if f == nil || f.Value != "alice@example.com" {
		t.Fatalf("email = %+v", f)
	}
}
