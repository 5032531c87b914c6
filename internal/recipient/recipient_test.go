package recipient

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingLogger keeps every entry in call order.
type recordingLogger struct {
	entries []string
}

func (l *recordingLogger) Info(format string, args ...any) {
	l.entries = append(l.entries, "INFO | "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...any) {
	l.entries = append(l.entries, "ERROR | "+fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Status(addr, status, reason string) {
	entry := addr + " | " + status
	if reason != "" {
		entry += " | " + reason
	}
	l.entries = append(l.entries, entry)
}

func (l *recordingLogger) count(substr string) int {
	n := 0
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emails.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{addr: "user@example.com", want: true},
		{addr: "first.last+tag@sub.example.co", want: true},
		{addr: "UPPER_case%x-y@EXAMPLE.ORG", want: true},
		{addr: "a@b.cd", want: true},
		{addr: "a@b.c", want: false},
		{addr: "no-at-sign.example.com", want: false},
		{addr: "@example.com", want: false},
		{addr: "user@", want: false},
		{addr: "user@example", want: false},
		{addr: "user@example.c0m", want: false},
		{addr: "us er@example.com", want: false},
		{addr: "user@exämple.com", want: false},
		{addr: `"quoted"@example.com`, want: false},
		{addr: "user@example.com ", want: false},
		{addr: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsValid(tt.addr))
		})
	}
}

func TestIsValid_Idempotent(t *testing.T) {
	t.Parallel()

	addr := Candidate(`"user@example.com",Jane`)
	require.True(t, IsValid(addr))
	assert.True(t, IsValid(Candidate(addr)))
}

func TestCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want string
	}{
		{name: "plain", line: "user@example.com", want: "user@example.com"},
		{name: "comma wins over later separators", line: "a@b.com,second@x.com;third@y.com", want: "a@b.com"},
		{name: "comma wins even when semicolon comes first", line: "a@b.com;x,y", want: "a@b.com;x"},
		{name: "semicolon", line: "a@b.com; Jane Doe", want: "a@b.com"},
		{name: "tab", line: "a@b.com\tJane", want: "a@b.com"},
		{name: "pipe", line: "a@b.com | Jane", want: "a@b.com"},
		{name: "double quotes", line: `"user@example.com"`, want: "user@example.com"},
		{name: "single quotes", line: `'user@example.com'`, want: "user@example.com"},
		{name: "quoted column", line: `"user@example.com","Jane"`, want: "user@example.com"},
		{name: "one layer only", line: `""user@example.com""`, want: `"user@example.com"`},
		{name: "space before separator", line: "user@example.com , x", want: "user@example.com"},
		{name: "empty first column", line: ",user@example.com", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Candidate(tt.line))
		})
	}
}

func TestIsHeader(t *testing.T) {
	t.Parallel()

	for _, h := range []string{"email", "Email", "EMAIL", "emails", "Mail", "e-mail", "E-Mail"} {
		assert.True(t, IsHeader(h), h)
	}
	for _, h := range []string{"email address", "e_mail", "name", "email,name"} {
		assert.False(t, IsHeader(h), h)
	}
}

func TestExtractFile_EndToEnd(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "alice@test.com\n\nEmail\nbob@test.com,extra\nalice@test.com\nnot-an-email\n")
	log := &recordingLogger{}
	ex := NewExtractor(log)

	addrs, err := ex.ExtractFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice@test.com", "bob@test.com"}, addrs)
	assert.Equal(t, 1, ex.Invalid())
	assert.Equal(t, 1, ex.Duplicates())

	records := ex.Records()
	require.Len(t, records, 4)
	assert.Equal(t, Valid, records[0].Class)
	assert.Equal(t, Valid, records[1].Class)
	assert.Equal(t, 4, records[1].Line)
	assert.Equal(t, "bob@test.com,extra", records[1].Raw)
	assert.Equal(t, Duplicate, records[2].Class)
	assert.Equal(t, Invalid, records[3].Class)

	assert.Equal(t, []string{
		"INFO | Reading 6 lines from " + path,
		"INFO | Processing line 1: alice@test.com",
		"INFO | Added valid email: alice@test.com",
		"INFO | Skipping header line: Email",
		"INFO | Processing line 4: bob@test.com",
		"INFO | Added valid email: bob@test.com",
		"INFO | Processing line 5: alice@test.com",
		"alice@test.com | DUPLICATE",
		"INFO | Processing line 6: not-an-email",
		"not-an-email | INVALID EMAIL",
		"INFO | Successfully loaded 2 valid unique emails",
	}, log.entries)
}

func TestExtractLines_CountsAddUp(t *testing.T) {
	t.Parallel()

	lines := []string{
		"email",
		"a@x.com",
		"  ",
		"b@x.com;1",
		"A@x.com",
		"a@x.com",
		"bad@",
		"'c@x.com'",
		"c@x.com|dup",
		"E-MAIL",
		"",
		"zzz",
	}
	considered := 0
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed != "" && !IsHeader(trimmed) {
			considered++
		}
	}

	log := &recordingLogger{}
	ex := NewExtractor(log)
	addrs := ex.ExtractLines(lines)

	assert.Equal(t, []string{"a@x.com", "b@x.com", "A@x.com", "c@x.com"}, addrs)
	assert.Equal(t, considered, ex.Invalid()+ex.Duplicates()+len(addrs))
	assert.Len(t, ex.Records(), considered)

	// One extraction entry plus one classification entry per considered line.
	assert.Equal(t, considered, log.count("Processing line"))
	assert.Equal(t, 2, log.count("Skipping header line"))
}

func TestExtractLines_HeadersProduceNoClassification(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	ex := NewExtractor(log)
	addrs := ex.ExtractLines([]string{"Email", "EMAIL", "e-mail"})

	assert.Empty(t, addrs)
	assert.Empty(t, ex.Records())
	assert.Equal(t, 0, log.count("Processing line"))
	assert.Equal(t, 3, log.count("Skipping header line"))
}

func TestExtractLines_SecondPassIsAllDuplicates(t *testing.T) {
	t.Parallel()

	lines := []string{"a@x.com", "b@x.com", "c@x.com"}
	ex := NewExtractor(&recordingLogger{})

	first := ex.ExtractLines(lines)
	second := ex.ExtractLines(lines)

	assert.Equal(t, lines, first)
	assert.Empty(t, second)
	assert.Equal(t, 3, ex.Duplicates())
}

func TestExtractFile_Missing(t *testing.T) {
	t.Parallel()

	log := &recordingLogger{}
	ex := NewExtractor(log)
	path := filepath.Join(t.TempDir(), "nope.csv")

	addrs, err := ex.ExtractFile(path)
	require.ErrorIs(t, err, ErrSourceNotFound)
	assert.Empty(t, addrs)
	assert.Equal(t, []string{
		"ERROR | CSV file '" + path + "' not found",
		"INFO | Successfully loaded 0 valid unique emails",
	}, log.entries)
}

func TestExtractFile_InvalidUTF8(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "a@x.com\n\xff\xfe\n")
	log := &recordingLogger{}

	addrs, err := NewExtractor(log).ExtractFile(path)
	require.Error(t, err)
	assert.Empty(t, addrs)
	assert.Equal(t, 1, log.count("ERROR | Error reading file"))
}

func TestExtractFile_CRLFAndBOM(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "\ufeffemail\r\na@x.com\r\nb@x.com\r\n")
	log := &recordingLogger{}

	addrs, err := NewExtractor(log).ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, addrs)
	assert.Equal(t, "INFO | Reading 3 lines from "+path, log.entries[0])
	assert.Equal(t, 1, log.count("INFO | Skipping header line: email"))
	assert.Zero(t, log.count("INVALID EMAIL"))
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a"}, splitLines("a"))
	assert.Equal(t, []string{"a"}, splitLines("a\n"))
	assert.Equal(t, []string{"a", ""}, splitLines("a\n\n"))
	assert.Equal(t, []string{"a", "b", "c"}, splitLines("a\r\nb\rc"))
}
