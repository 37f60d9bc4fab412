// Package identity allocates and validates the adjective-noun names
// agents register under (spec.md §3, §4.2). The word lists are fixed at
// build time as the binary's embedded data, not user configuration
// (spec.md §9).
package identity

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
)

//go:embed wordlists/*.txt
var wordlistFS embed.FS

var (
	adjectives []string
	nouns      []string
)

func init() {
	var err error
	adjectives, err = loadWordlist("adjectives.txt")
	if err != nil {
		panic(fmt.Sprintf("identity: load adjectives: %v", err))
	}
	nouns, err = loadWordlist("nouns.txt")
	if err != nil {
		panic(fmt.Sprintf("identity: load nouns: %v", err))
	}
}

func loadWordlist(name string) ([]string, error) {
	data, err := wordlistFS.ReadFile("wordlists/" + name)
	if err != nil {
		return nil, err
	}
	var words []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// Adjectives returns the fixed adjective pool.
func Adjectives() []string { return adjectives }

// Nouns returns the fixed noun pool.
func Nouns() []string { return nouns }

// Capacity is the number of distinct names the pools can produce, i.e.
// the point at which ErrNameExhausted becomes possible for a project.
func Capacity() int { return len(adjectives) * len(nouns) }
