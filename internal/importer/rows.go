package importer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
	"github.com/AlekseyRodimkin/warehouse/internal/wave"
)

// Problem describes one rejected row.
type Problem struct {
	Line    int    `json:"line"`
	Code    string `json:"item_code,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Code == "" {
		return fmt.Sprintf("line %d: %s", p.Line, p.Message)
	}
	return fmt.Sprintf("line %d (%s): %s", p.Line, p.Code, p.Message)
}

// ValidationError aggregates every row problem of a form.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("import form rejected: %d invalid rows", len(e.Problems))
}

// ProblemList renders the problems for the HTTP error body.
func (e *ValidationError) ProblemList() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.String())
	}
	return out
}

// Is makes a ValidationError match wave.ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == wave.ErrInvalidInput
}

// Lines validates rows and converts them into wave lines. A row that has
// data but no item code is a problem. Nothing is returned unless every row
// is valid.
func Lines(rows []Row) ([]wave.LineInput, error) {
	var problems []Problem
	lines := make([]wave.LineInput, 0, len(rows))
	for _, row := range rows {
		code := warehouse.NormalizeCode(row.ItemCode)
		if code == "" {
			if row.Weight != "" || row.Quantity != "" || strings.TrimSpace(row.Description) != "" {
				problems = append(problems, Problem{Line: row.Line, Message: "empty item code"})
			}
			continue
		}
		fail := func(format string, args ...any) {
			problems = append(problems, Problem{Line: row.Line, Code: code, Message: fmt.Sprintf(format, args...)})
		}
		line := wave.LineInput{ItemCode: code, Description: strings.TrimSpace(row.Description)}
		if utf8.RuneCountInString(code) > warehouse.MaxCodeLen {
			fail("item code longer than %d characters", warehouse.MaxCodeLen)
		}
		if utf8.RuneCountInString(line.Description) > warehouse.MaxDescriptionLen {
			fail("description longer than %d characters", warehouse.MaxDescriptionLen)
		}

		if row.Weight != "" {
			weight, err := strconv.ParseInt(row.Weight, 10, 64)
			switch {
			case err != nil || weight < 0:
				fail("invalid weight %q", row.Weight)
			case weight > warehouse.MaxWeight:
				fail("weight above %d grams", warehouse.MaxWeight)
			case weight > 0:
				line.Weight = &weight
			}
		}
		quantity, err := strconv.ParseInt(row.Quantity, 10, 64)
		switch {
		case err != nil || quantity < 0:
			fail("invalid quantity %q", row.Quantity)
		case quantity == 0:
			fail("quantity must be at least 1")
		default:
			line.Quantity = quantity
		}
		lines = append(lines, line)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return lines, nil
}
