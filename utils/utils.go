// Package utils holds the token budgeting helpers shared by strategies.
package utils

// AvgCharsPerToken is the rough estimation ratio: 1 token ~= 4 characters.
const AvgCharsPerToken = 4

// EstimateTokens estimates the token count of a piece of text.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + AvgCharsPerToken - 1) / AvgCharsPerToken
}

// CharsForTokens estimates the character budget for a token count.
func CharsForTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// TrimWindow trims prefix and suffix to fit a total token budget, keeping the
// text nearest the cursor: the tail of the prefix and the head of the suffix.
// The prefix gets the larger share since models condition most on it.
func TrimWindow(prefix, suffix string, maxTokens int) (string, string) {
	if maxTokens <= 0 {
		return prefix, suffix
	}

	budget := CharsForTokens(maxTokens)
	if len(prefix)+len(suffix) <= budget {
		return prefix, suffix
	}

	prefixBudget := budget * 3 / 4
	suffixBudget := budget - prefixBudget

	// Give either side's unused budget to the other.
	if len(prefix) < prefixBudget {
		suffixBudget += prefixBudget - len(prefix)
		prefixBudget = len(prefix)
	}
	if len(suffix) < suffixBudget {
		prefixBudget += suffixBudget - len(suffix)
		suffixBudget = len(suffix)
	}

	if len(prefix) > prefixBudget {
		prefix = prefix[len(prefix)-prefixBudget:]
	}
	if len(suffix) > suffixBudget {
		suffix = suffix[:suffixBudget]
	}
	return prefix, suffix
}
