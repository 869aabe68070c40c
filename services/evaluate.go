package services

// Letter feedback statuses.
const (
	LetterCorrect = "correct"
	LetterPresent = "present"
	LetterAbsent  = "absent"
)

// Evaluate scores a guess against a secret word of the same length using the
// two-pass Wordle algorithm, so the number of non-absent marks for any letter
// never exceeds that letter's occurrence count in the secret.
//
// Pass 1 marks exact positional matches as correct and counts the remaining
// secret letters. Pass 2 resolves the other positions in order: a letter with
// remaining count is present and consumes one occurrence, otherwise absent.
func Evaluate(guess, secret string) []LetterResult {
	guessRunes := []rune(guess)
	secretRunes := []rune(secret)

	n := len(guessRunes)
	results := make([]LetterResult, n)

	// Occurrence counts of secret letters not consumed by an exact match.
	// A rune map instead of a fixed array so non-ASCII alphabets work.
	counts := make(map[rune]int)

	for i := 0; i < n; i++ {
		if i < len(secretRunes) && guessRunes[i] == secretRunes[i] {
			results[i] = LetterResult{Value: string(guessRunes[i]), Status: LetterCorrect}
		} else if i < len(secretRunes) {
			counts[secretRunes[i]]++
		}
	}

	for i := 0; i < n; i++ {
		if results[i].Status == LetterCorrect {
			continue
		}

		r := guessRunes[i]
		if counts[r] > 0 {
			results[i] = LetterResult{Value: string(r), Status: LetterPresent}
			counts[r]--
		} else {
			results[i] = LetterResult{Value: string(r), Status: LetterAbsent}
		}
	}

	return results
}
