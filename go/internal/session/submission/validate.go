package submission

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	IdeasPerSubmission = 3
	MaxIdeaLength      = 500
)

var (
	ErrInvalidIdeaSet      = errors.New("invalid idea set")
	ErrDuplicateSubmission = errors.New("ideas already submitted for this round")
	ErrNotOnRoster         = errors.New("member is not on the round roster")
)

// ValidateIdeas checks a submission and returns the trimmed texts. All
// failures wrap ErrInvalidIdeaSet.
func ValidateIdeas(ideas []string) ([]string, error) {
	if len(ideas) != IdeasPerSubmission {
		return nil, fmt.Errorf("%w: expected %d ideas, got %d", ErrInvalidIdeaSet, IdeasPerSubmission, len(ideas))
	}

	texts := make([]string, len(ideas))
	seen := make(map[string]int, len(ideas))
	for i, raw := range ideas {
		text := strings.TrimSpace(raw)
		if text == "" {
			return nil, fmt.Errorf("%w: idea %d is empty", ErrInvalidIdeaSet, i+1)
		}
		if n := utf8.RuneCountInString(text); n > MaxIdeaLength {
			return nil, fmt.Errorf("%w: idea %d is %d characters, max %d", ErrInvalidIdeaSet, i+1, n, MaxIdeaLength)
		}

		key := strings.ToLower(text)
		if j, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: ideas %d and %d are the same", ErrInvalidIdeaSet, j+1, i+1)
		}
		seen[key] = i
		texts[i] = text
	}
	return texts, nil
}
