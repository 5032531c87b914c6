// Package recipient turns loosely formatted recipient lines into an ordered
// list of unique, syntactically valid email addresses.
package recipient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Class is the terminal classification of one input line.
type Class int

const (
	Valid Class = iota
	Invalid
	Duplicate
)

func (c Class) String() string {
	switch c {
	case Valid:
		return "VALID"
	case Invalid:
		return "INVALID EMAIL"
	case Duplicate:
		return "DUPLICATE"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// Record describes one considered input line. Records are never mutated
// after classification.
type Record struct {
	Line    int
	Raw     string
	Address string
	Class   Class
}

// Logger receives one entry per extraction step.
type Logger interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
	Status(addr, status, reason string)
}

// ErrSourceNotFound is returned when the recipient source does not exist.
var ErrSourceNotFound = errors.New("recipient source not found")

// addressPattern is deliberately restrictive: ASCII only, no quoted local
// parts, a dotted domain ending in at least two letters.
var addressPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// separators are checked in priority order; the first one present in a
// line decides the split.
var separators = []string{",", ";", "\t", "|"}

var headerTokens = map[string]bool{
	"email":  true,
	"emails": true,
	"mail":   true,
	"e-mail": true,
}

// IsValid reports whether addr matches the accepted address pattern.
func IsValid(addr string) bool {
	return addressPattern.MatchString(addr)
}

// IsHeader reports whether a trimmed line is a column header token.
func IsHeader(line string) bool {
	return headerTokens[strings.ToLower(line)]
}

// Candidate extracts the address candidate from a trimmed, non-empty line:
// the text before the first occurrence of the highest-priority separator
// present, with one layer of surrounding quotes removed.
func Candidate(line string) string {
	candidate := line
	for _, sep := range separators {
		if i := strings.Index(line, sep); i >= 0 {
			candidate = strings.TrimSpace(line[:i])
			break
		}
	}
	return strings.TrimSpace(stripQuotes(candidate))
}

func stripQuotes(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if n := len(s); n > 0 && (s[n-1] == '"' || s[n-1] == '\'') {
		s = s[:n-1]
	}
	return s
}

// Extractor classifies recipient lines for one run. Accepted addresses are
// remembered for the lifetime of the Extractor so a repeat is reported as
// a duplicate even across sources.
type Extractor struct {
	log        Logger
	seen       map[string]struct{}
	records    []Record
	invalid    int
	duplicates int
}

// NewExtractor creates an Extractor that reports to log.
func NewExtractor(log Logger) *Extractor {
	return &Extractor{
		log:  log,
		seen: make(map[string]struct{}),
	}
}

// ExtractFile reads every line of path and returns the valid, unique
// addresses in first-seen order. A missing or unreadable source is logged
// and yields an empty list together with the cause.
func (e *Extractor) ExtractFile(path string) ([]string, error) {
	addrs, err := e.extractFile(path)
	e.log.Info("Successfully loaded %d valid unique emails", len(addrs))
	return addrs, err
}

func (e *Extractor) extractFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.log.Error("CSV file '%s' not found", path)
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		e.log.Error("Error reading file: %v", err)
		return nil, fmt.Errorf("failed to read recipient source: %w", err)
	}
	if !utf8.Valid(data) {
		e.log.Error("Error reading file: %s is not valid UTF-8", path)
		return nil, fmt.Errorf("failed to read recipient source: %s is not valid UTF-8", path)
	}

	lines := splitLines(strings.TrimPrefix(string(data), "\ufeff"))
	e.log.Info("Reading %d lines from %s", len(lines), path)

	return e.ExtractLines(lines), nil
}

// ExtractLines classifies lines in order and returns the newly accepted
// addresses. Line numbers in records are 1-based positions within lines.
func (e *Extractor) ExtractLines(lines []string) []string {
	var addrs []string
	for i, raw := range lines {
		rec, ok := e.process(i+1, raw)
		if ok && rec.Class == Valid {
			addrs = append(addrs, rec.Address)
		}
	}
	return addrs
}

// process handles one raw line. It returns false for lines that are not
// considered at all (blank lines and header tokens).
func (e *Extractor) process(lineNum int, raw string) (Record, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Record{}, false
	}
	if IsHeader(line) {
		e.log.Info("Skipping header line: %s", line)
		return Record{}, false
	}

	candidate := Candidate(line)
	e.log.Info("Processing line %d: %s", lineNum, candidate)

	rec := Record{Line: lineNum, Raw: raw, Address: candidate}

	switch {
	case !IsValid(candidate):
		rec.Class = Invalid
		e.invalid++
		e.log.Status(candidate, Invalid.String(), "")
	case e.isSeen(candidate):
		rec.Class = Duplicate
		e.duplicates++
		e.log.Status(candidate, Duplicate.String(), "")
	default:
		rec.Class = Valid
		e.seen[candidate] = struct{}{}
		e.log.Info("Added valid email: %s", candidate)
	}

	e.records = append(e.records, rec)
	return rec, true
}

func (e *Extractor) isSeen(addr string) bool {
	_, ok := e.seen[addr]
	return ok
}

// Records returns every classified line so far.
func (e *Extractor) Records() []Record {
	return e.records
}

// Invalid returns the number of lines rejected by validation.
func (e *Extractor) Invalid() int {
	return e.invalid
}

// Duplicates returns the number of repeated valid addresses.
func (e *Extractor) Duplicates() int {
	return e.duplicates
}

// splitLines splits text on line breaks the way a line reader would: a
// trailing newline does not start an extra empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
