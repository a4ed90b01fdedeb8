// Package roster reads the subject/session list that drives a screenshot run.
//
// A roster is a comma-separated text file. Row boundaries carry no meaning:
// every field of every row is one "<subject>_<session>" token.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"lstqc/internal/models"
)

// Separator splits a token into its subject and session parts
const Separator = "_"

// MalformedTokenError reports a token that does not split into exactly one
// non-empty subject and one non-empty session
type MalformedTokenError struct {
	Token      string
	Separators int
}

func (e *MalformedTokenError) Error() string {
	if e.Separators != 1 {
		return fmt.Sprintf("malformed roster token %q: want exactly one %q separator, found %d",
			e.Token, Separator, e.Separators)
	}
	return fmt.Sprintf("malformed roster token %q: empty subject or session", e.Token)
}

// Load reads every field of the roster file at path, in order.
// An empty file yields an empty slice.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening roster: %w", err)
	}
	defer file.Close()

	tokens, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("error reading roster %s: %w", path, err)
	}
	return tokens, nil
}

// Read flattens all rows of a comma-separated stream into one token list
func Read(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // rows may differ in length
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true // a stray quote stays in its token

	tokens := []string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, field := range record {
			tokens = append(tokens, strings.TrimSpace(field))
		}
	}
	return tokens, nil
}

// Split decomposes a token into its subject and session
func Split(token string) (models.Session, error) {
	count := strings.Count(token, Separator)
	if count != 1 {
		return models.Session{}, &MalformedTokenError{Token: token, Separators: count}
	}

	subject, session, _ := strings.Cut(token, Separator)
	if subject == "" || session == "" {
		return models.Session{}, &MalformedTokenError{Token: token, Separators: count}
	}
	return models.Session{Subject: subject, Session: session}, nil
}

// Parse splits every token. Malformed tokens are returned as errors and
// left out of the session list; the remaining tokens are still parsed.
func Parse(tokens []string) ([]models.Session, []error) {
	sessions := make([]models.Session, 0, len(tokens))
	var errs []error
	for _, token := range tokens {
		s, err := Split(token)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, errs
}
