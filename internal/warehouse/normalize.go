package warehouse

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeCode trims, NFC-normalises and upper-cases an item code.
func NormalizeCode(code string) string {
	return strings.ToUpper(norm.NFC.String(strings.TrimSpace(code)))
}

// NormalizeTitle applies the same rules to stock, zone and place titles.
func NormalizeTitle(title string) string {
	return NormalizeCode(title)
}

func validateItemInput(in ItemInput) (ItemInput, error) {
	in.Code = NormalizeCode(in.Code)
	in.Description = strings.TrimSpace(in.Description)
	switch {
	case in.Code == "":
		return in, fmt.Errorf("%w: item code required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Code) > MaxCodeLen:
		return in, fmt.Errorf("%w: item code longer than %d characters", ErrInvalidInput, MaxCodeLen)
	case utf8.RuneCountInString(in.Description) > MaxDescriptionLen:
		return in, fmt.Errorf("%w: description longer than %d characters", ErrInvalidInput, MaxDescriptionLen)
	}
	if in.Weight != nil && (*in.Weight < MinWeight || *in.Weight > MaxWeight) {
		return in, fmt.Errorf("%w: weight must be between %d and %d grams", ErrInvalidInput, MinWeight, MaxWeight)
	}
	return in, nil
}

func validateTitle(kind, title string) (string, error) {
	title = NormalizeTitle(title)
	if title == "" {
		return "", fmt.Errorf("%w: %s title required", ErrInvalidInput, kind)
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", fmt.Errorf("%w: %s title longer than %d characters", ErrInvalidInput, kind, MaxTitleLen)
	}
	return title, nil
}
