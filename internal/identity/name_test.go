package identity

import "testing"

func TestParseValidName(t *testing.T) {
	raw := adjectives[0] + nouns[0]
	n, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n.Adjective != adjectives[0] || n.Noun != nouns[0] {
		t.Fatalf("got %+v, want adjective=%q noun=%q", n, adjectives[0], nouns[0])
	}
	if n.String() != raw {
		t.Fatalf("String() = %q, want %q", n.String(), raw)
	}
}

func TestParseRejectsMalformedName(t *testing.T) {
	_, err := Parse("NotARealAdjectiveOrNoun")
	if err == nil {
		t.Fatal("expected ErrInvalidName")
	}
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestAllocateAvoidsUsedPairs(t *testing.T) {
	used := map[[2]int]bool{}
	for i := 0; i < len(adjectives)*len(nouns)-1; i++ {
		ai := i / len(nouns)
		ni := i % len(nouns)
		used[[2]int{ai, ni}] = true
	}
	n, err := Allocate(used)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if used[[2]int{n.AdjIndex, n.NounIndex}] {
		t.Fatalf("allocated a name already marked used: %+v", n)
	}
}

func TestAllocateExhausted(t *testing.T) {
	used := map[[2]int]bool{}
	for ai := range adjectives {
		for ni := range nouns {
			used[[2]int{ai, ni}] = true
		}
	}
	_, err := Allocate(used)
	if err == nil {
		t.Fatal("expected ErrNameExhausted")
	}
	ierr, ok := err.(*Error)
	if !ok || ierr.Kind != ErrNameExhausted {
		t.Fatalf("expected ErrNameExhausted, got %v", err)
	}
}

func TestCapacityMatchesPools(t *testing.T) {
	if Capacity() != len(adjectives)*len(nouns) {
		t.Fatalf("Capacity() = %d, want %d", Capacity(), len(adjectives)*len(nouns))
	}
}
