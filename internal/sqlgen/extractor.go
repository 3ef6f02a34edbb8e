package sqlgen

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kalambet/nlpmodel/internal/model"
)

// Token is a recognized natural-language sort request, e.g. "newest orders
// first" with Subject "created at".
type Token struct {
	Text      string                `json:"text"`
	Subject   string                `json:"subject,omitempty"`
	Ascending model.Optional[bool] `json:"ascending"`
}

var descWords = map[string]bool{
	"desc": true, "descending": true, "newest": true, "latest": true,
	"highest": true, "largest": true, "most": true, "top": true,
}

var ascWords = map[string]bool{
	"asc": true, "ascending": true, "oldest": true, "earliest": true,
	"lowest": true, "smallest": true, "least": true,
}

// Extractor derives sort instructions from recognized tokens.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor() *Extractor {
	return &Extractor{logger: slog.Default()}
}

// ExtractSort resolves token against table and returns the sort it asks for.
//
// The column comes from Subject when set, otherwise from the longest column
// name found in Text. Direction precedence: explicit Ascending, direction
// words in Text, the table's default sort for that column, ascending.
func (e *Extractor) ExtractSort(table Table, token Token) (Sort, error) {
	if strings.TrimSpace(token.Text) == "" && strings.TrimSpace(token.Subject) == "" {
		return nil, ErrEmptyToken
	}

	col, ok := e.resolveColumn(table, token)
	if !ok {
		return nil, fmt.Errorf("%s in table %s: %w", describeToken(token), table.Name(), ErrColumnNotFound)
	}

	if asc, ok := token.Ascending.Get(); ok {
		return NewSort(col, asc), nil
	}
	if asc, ok := directionFromText(withoutColumn(token.Text, col)); ok {
		return NewSort(col, asc), nil
	}
	for _, s := range table.DefaultSort() {
		if strings.EqualFold(s.Column().Name(), col.Name()) {
			return NewSort(col, s.IsAscending()), nil
		}
	}

	e.logger.Debug("no sort direction in token, using ascending", "table", table.Name(), "column", col.Name())
	return NewSort(col, true), nil
}

func (e *Extractor) resolveColumn(table Table, token Token) (Column, bool) {
	if subj := normalizeName(token.Subject); subj != "" {
		for _, c := range table.Columns() {
			if normalizeName(c.Name()) == subj {
				return c, true
			}
		}
		return nil, false
	}

	text := "_" + normalizeName(token.Text) + "_"
	var best Column
	for _, c := range table.Columns() {
		name := normalizeName(c.Name())
		if !strings.Contains(text, "_"+name+"_") {
			continue
		}
		if best == nil || len(name) > len(normalizeName(best.Name())) {
			best = c
		}
	}
	return best, best != nil
}

// withoutColumn drops the first occurrence of col's name from text so that
// words inside a column name like top_score never set the direction.
func withoutColumn(text string, col Column) string {
	padded := "_" + normalizeName(text) + "_"
	return strings.Replace(padded, "_"+normalizeName(col.Name())+"_", "_", 1)
}

func directionFromText(text string) (asc bool, ok bool) {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), isSeparator) {
		if descWords[w] {
			return false, true
		}
		if ascWords[w] {
			return true, true
		}
	}
	return false, false
}

// normalizeName lower-cases s and joins words with underscores, so that
// "Created At", "created-at" and "created_at" compare equal.
func normalizeName(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), isSeparator), "_")
}

func isSeparator(r rune) bool {
	return r == '_' || r == '-' || unicode.IsSpace(r) || unicode.IsPunct(r)
}

func describeToken(t Token) string {
	if t.Subject != "" {
		return fmt.Sprintf("subject %q", t.Subject)
	}
	return fmt.Sprintf("token %q", t.Text)
}
