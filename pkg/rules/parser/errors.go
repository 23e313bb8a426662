package parser

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorType categorizes a bundle problem.
type ErrorType string

const (
	ErrorTypeSyntax     ErrorType = "syntax"     // YAML syntax error
	ErrorTypeStructural ErrorType = "structural" // missing or malformed sections
	ErrorTypeSemantic   ErrorType = "semantic"   // unknown attribute, illegal operator, bad strategy
	ErrorTypeIO         ErrorType = "io"         // file access
)

// Location is a position in a bundle document.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns "file:line:column".
func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	if l.Line == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// IsValid reports whether the location names a file and line.
func (l Location) IsValid() bool {
	return l.File != "" && l.Line > 0
}

// Error is one located bundle problem.
type Error struct {
	Type       ErrorType
	Message    string
	Location   Location
	Suggestion string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Type, e.Message)
	if e.Location.File != "" {
		fmt.Fprintf(&sb, " (%s)", e.Location)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, ": %s", e.Suggestion)
	}
	return sb.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorList accumulates problems so one parse reports all of them.
type ErrorList struct {
	Errors []*Error
}

// NewErrorList creates an empty list.
func NewErrorList() *ErrorList {
	return &ErrorList{Errors: make([]*Error, 0)}
}

// Add appends an error.
func (el *ErrorList) Add(err *Error) {
	el.Errors = append(el.Errors, err)
}

// AddError creates and appends an error.
func (el *ErrorList) AddError(errType ErrorType, message string, loc Location) {
	el.Add(&Error{Type: errType, Message: message, Location: loc})
}

// AddCause appends an error wrapping cause.
func (el *ErrorList) AddCause(errType ErrorType, cause error, loc Location) {
	el.Add(&Error{Type: errType, Message: cause.Error(), Location: loc, Cause: cause})
}

// HasErrors reports whether any error was added.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Count returns the number of errors.
func (el *ErrorList) Count() int {
	return len(el.Errors)
}

// Error implements the error interface.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}
	if len(el.Errors) == 1 {
		return el.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "found %d errors:", el.Count())
	for _, err := range el.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (el *ErrorList) Unwrap() []error {
	out := make([]error, len(el.Errors))
	for i, e := range el.Errors {
		out[i] = e
	}
	return out
}

// ToError returns nil for an empty list and the list otherwise.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	el.sort()
	return el
}

// ByType returns every error of the given type.
func (el *ErrorList) ByType(errType ErrorType) []*Error {
	var result []*Error
	for _, err := range el.Errors {
		if err.Type == errType {
			result = append(result, err)
		}
	}
	return result
}

func (el *ErrorList) sort() {
	sort.SliceStable(el.Errors, func(i, j int) bool {
		a, b := el.Errors[i].Location, el.Errors[j].Location
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
}

// suggestName proposes the closest valid name for a misspelt one.
func suggestName(unknown string, valid []string) string {
	if len(valid) == 0 {
		return ""
	}

	best, bestDist := "", 1000
	for _, name := range valid {
		if d := levenshtein(unknown, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	if bestDist < 4 {
		return fmt.Sprintf("did you mean %q?", best)
	}
	if len(valid) > 5 {
		return fmt.Sprintf("valid names include: %s, ...", strings.Join(valid[:5], ", "))
	}
	return fmt.Sprintf("valid names: %s", strings.Join(valid, ", "))
}

func levenshtein(s1, s2 string) int {
	if s1 == s2 {
		return 0
	}
	prev := make([]int, len(s2)+1)
	cur := make([]int, len(s2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(s1); i++ {
		cur[0] = i
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(s2)]
}
