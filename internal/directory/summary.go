package directory

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/nlpmodel/internal/model"
)

// maxSummaryChars caps the summary to stay under ~250 tokens (4 chars/token).
const maxSummaryChars = 1000

// Summarize returns a compact description of u suitable for injection into a
// system prompt. Only attributes that are present are mentioned; a user with
// neither name nor email is described as anonymous.
func Summarize(u model.User) string {
	var parts []string

	var name []string
	if v, ok := u.FirstName().Get(); ok && v != "" {
		name = append(name, v)
	}
	if v, ok := u.LastName().Get(); ok && v != "" {
		name = append(name, v)
	}
	email, hasEmail := u.Email().Get()
	hasEmail = hasEmail && email != ""

	switch {
	case len(name) > 0 && hasEmail:
		parts = append(parts, fmt.Sprintf("User: %s <%s>.", strings.Join(name, " "), email))
	case len(name) > 0:
		parts = append(parts, fmt.Sprintf("User: %s.", strings.Join(name, " ")))
	case hasEmail:
		parts = append(parts, fmt.Sprintf("User: <%s>.", email))
	default:
		parts = append(parts, "User profile: anonymous.")
	}

	if u.IsAdmin() {
		parts = append(parts, "Administrator.")
	}

	// Properties (sorted for deterministic output)
	if props, ok := u.Properties().Get(); ok && len(props) > 0 {
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%s", k, props[k]))
		}
		parts = append(parts, fmt.Sprintf("Properties: %s.", strings.Join(kv, ", ")))
	}

	if u.SignupTimestamp() > 0 {
		parts = append(parts, fmt.Sprintf("Member since %s.", u.SignupTime().Format("2006-01-02")))
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
