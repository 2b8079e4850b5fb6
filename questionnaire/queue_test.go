package questionnaire

import (
	"errors"
	"sort"
	"testing"
)

func sampleBank() Bank {
	return Bank{
		CategoryMedication: {"Did you take your insulin?", "Any missed doses?", "On time?"},
		CategoryNutrition:  {"What did you eat?", "Sugary drinks?"},
		CategorySleep:      {"How long did you sleep?"},
	}
}

func promptIDs(ps []Prompt) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	sort.Strings(ids)
	return ids
}

func TestBuildQueuePermutation(t *testing.T) {
	bank := sampleBank()
	want := promptIDs(bank.Prompts())

	for seed := uint64(0); seed < 50; seed++ {
		q := BuildQueue(bank, SeededShuffler(seed))
		if len(q) != bank.Size() {
			t.Fatalf("seed %d: len = %d, want %d", seed, len(q), bank.Size())
		}
		got := promptIDs(q)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("seed %d: prompt set changed: %v vs %v", seed, got, want)
			}
		}
	}
}

func TestBuildQueueOrdersDiffer(t *testing.T) {
	bank := sampleBank()
	seen := map[string]bool{}
	for seed := uint64(0); seed < 50; seed++ {
		q := BuildQueue(bank, SeededShuffler(seed))
		key := ""
		for _, p := range q {
			key += p.ID + ","
		}
		seen[key] = true
	}
	if len(seen) < 2 {
		t.Fatal("expected different orders across seeds")
	}
}

func TestBuildQueueDeterministicForSeed(t *testing.T) {
	a := BuildQueue(sampleBank(), SeededShuffler(7))
	b := BuildQueue(sampleBank(), SeededShuffler(7))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestBankPromptsIDsAndCategories(t *testing.T) {
	ps := Bank{CategorySleep: {" Slept well? "}, CategoryMedication: {"Pills?"}}.Prompts()
	if len(ps) != 2 {
		t.Fatalf("len = %d", len(ps))
	}
	if ps[0].ID != "med-1" || ps[0].Category != CategoryMedication {
		t.Errorf("first prompt = %+v", ps[0])
	}
	if ps[1].ID != "sleep-1" || ps[1].Text != "Slept well?" {
		t.Errorf("second prompt = %+v", ps[1])
	}
}

func TestBankValidate(t *testing.T) {
	tests := []struct {
		name string
		bank Bank
		want error
	}{
		{"ok", sampleBank(), nil},
		{"empty", Bank{}, ErrEmptyBank},
		{"empty lists", Bank{CategorySleep: {}}, ErrEmptyBank},
		{"unknown", Bank{"mood": {"Happy?"}}, ErrUnknownCategory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bank.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

type fixedShuffler []int

func (f *fixedShuffler) IntN(n int) int {
	v := (*f)[0] % n
	*f = (*f)[1:]
	return v
}

func TestBuildQueueFisherYatesSwaps(t *testing.T) {
	bank := Bank{CategoryMedication: {"a", "b", "c"}}
	// i=2 picks j=0, i=1 picks j=1
	rng := &fixedShuffler{0, 1}
	q := BuildQueue(bank, rng)
	got := []string{q[0].Text, q[1].Text, q[2].Text}
	want := []string{"c", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queue = %v, want %v", got, want)
		}
	}
}
