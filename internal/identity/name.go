package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// ErrKind distinguishes the identity package's two failure modes
// (spec.md §4.2).
type ErrKind string

const (
	ErrInvalidName   ErrKind = "InvalidName"
	ErrNameExhausted ErrKind = "NameExhausted"
)

// Error is a typed identity failure.
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

// Name is a validated adjective-noun identity together with the pool
// indexes it was drawn from, so the store can persist the allocation and
// UsedNameIndexes can cheaply recompute the free set.
type Name struct {
	Adjective string
	Noun      string
	AdjIndex  int
	NounIndex int
}

func (n Name) String() string { return n.Adjective + n.Noun }

// Parse validates a caller-supplied name against the fixed adjective+noun
// contract and reports its pool indexes.
func Parse(raw string) (Name, error) {
	for ai, adj := range adjectives {
		if len(raw) <= len(adj) || raw[:len(adj)] != adj {
			continue
		}
		rest := raw[len(adj):]
		for ni, noun := range nouns {
			if rest == noun {
				return Name{Adjective: adj, Noun: noun, AdjIndex: ai, NounIndex: ni}, nil
			}
		}
	}
	return Name{}, &Error{Kind: ErrInvalidName, Message: fmt.Sprintf("%q is not a valid Adjective+Noun pair", raw)}
}

// Allocate picks a random name not present in used, where used is the set
// of (adjective_index, noun_index) pairs already taken in a project
// (store.UsedNameIndexes). It retries a bounded number of times before
// falling back to an exhaustive scan, and fails with ErrNameExhausted
// only once every pair is actually taken.
func Allocate(used map[[2]int]bool) (Name, error) {
	capacity := len(adjectives) * len(nouns)
	if len(used) >= capacity {
		return Name{}, &Error{Kind: ErrNameExhausted, Message: "adjective+noun pools are saturated for this project"}
	}

	const randomAttempts = 20
	for attempt := 0; attempt < randomAttempts; attempt++ {
		ai, err := randIndex(len(adjectives))
		if err != nil {
			return Name{}, err
		}
		ni, err := randIndex(len(nouns))
		if err != nil {
			return Name{}, err
		}
		if !used[[2]int{ai, ni}] {
			return Name{Adjective: adjectives[ai], Noun: nouns[ni], AdjIndex: ai, NounIndex: ni}, nil
		}
	}

	for ai := range adjectives {
		for ni := range nouns {
			if !used[[2]int{ai, ni}] {
				return Name{Adjective: adjectives[ai], Noun: nouns[ni], AdjIndex: ai, NounIndex: ni}, nil
			}
		}
	}
	return Name{}, &Error{Kind: ErrNameExhausted, Message: "adjective+noun pools are saturated for this project"}
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("identity: read random index: %w", err)
	}
	return int(v.Int64()), nil
}
