package memory

import "unicode/utf8"

// EstimateTokens approximates the token cost of a serialized payload as its
// character count divided by charsPerToken, rounded up.
func EstimateTokens(serialized []byte, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 1
	}
	chars := utf8.RuneCount(serialized)
	return (chars + charsPerToken - 1) / charsPerToken
}
