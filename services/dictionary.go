package services

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
)

// Alphabet used for lettered-mode hint draws and watchdog word synthesis.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Dictionary is the read-only word source, bucketed first letter -> word
// length -> words. Loaded once before serving traffic.
type Dictionary struct {
	buckets map[string]map[int][]string
	sets    map[string]map[int]map[string]struct{}
}

// NewDictionary builds a dictionary from a flat word list. Words are
// normalized to upper case.
func NewDictionary(words []string) *Dictionary {
	d := &Dictionary{
		buckets: make(map[string]map[int][]string),
		sets:    make(map[string]map[int]map[string]struct{}),
	}
	for _, w := range words {
		d.add(strings.ToUpper(strings.TrimSpace(w)))
	}
	return d
}

// LoadDictionary reads a words file shaped {"A": {"4": [...], "5": [...]}}.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read words file: %w", err)
	}

	var raw map[string]map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse words file: %w", err)
	}

	d := &Dictionary{
		buckets: make(map[string]map[int][]string),
		sets:    make(map[string]map[int]map[string]struct{}),
	}
	for _, lengths := range raw {
		for lengthKey, words := range lengths {
			if _, err := strconv.Atoi(lengthKey); err != nil {
				return nil, fmt.Errorf("invalid length key %q in words file", lengthKey)
			}
			for _, w := range words {
				d.add(strings.ToUpper(strings.TrimSpace(w)))
			}
		}
	}

	if len(d.buckets) == 0 {
		return nil, errors.New("words file contains no words")
	}

	return d, nil
}

func (d *Dictionary) add(word string) {
	runes := []rune(word)
	if len(runes) == 0 {
		return
	}

	first := string(runes[0])
	length := len(runes)

	if d.buckets[first] == nil {
		d.buckets[first] = make(map[int][]string)
		d.sets[first] = make(map[int]map[string]struct{})
	}
	if d.sets[first][length] == nil {
		d.sets[first][length] = make(map[string]struct{})
	}
	if _, dup := d.sets[first][length][word]; dup {
		return
	}

	d.buckets[first][length] = append(d.buckets[first][length], word)
	d.sets[first][length][word] = struct{}{}
}

// Lookup returns the bucket for a first letter and length. The returned slice
// must not be mutated.
func (d *Dictionary) Lookup(firstLetter string, length int) []string {
	return d.buckets[strings.ToUpper(firstLetter)][length]
}

// Contains reports whether word is in the bucket for its own first letter and
// length.
func (d *Dictionary) Contains(word string) bool {
	runes := []rune(word)
	if len(runes) == 0 {
		return false
	}

	bucket := d.sets[string(runes[0])]
	if bucket == nil {
		return false
	}

	_, ok := bucket[len(runes)][word]
	return ok
}

// RandomWord draws a uniformly random word of the given length, scanning
// first-letter buckets in random order so an empty bucket never fails the
// draw while any bucket of that length has words.
func (d *Dictionary) RandomWord(length int) (string, bool) {
	letters := []rune(Alphabet)
	for i := len(letters) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		letters[i], letters[j] = letters[j], letters[i]
	}

	for _, l := range letters {
		words := d.buckets[string(l)][length]
		if len(words) > 0 {
			return words[randIntn(len(words))], true
		}
	}

	// Dictionary may hold letters outside the configured alphabet.
	for _, lengths := range d.buckets {
		if words := lengths[length]; len(words) > 0 {
			return words[randIntn(len(words))], true
		}
	}

	return "", false
}

// randIntn returns a uniform random int in [0, n) from crypto/rand.
func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}
