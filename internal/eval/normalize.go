package eval

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/promptsense/promptsense/internal/models"
)

// aliases maps common label spellings to canonical labels. Single-rune
// keys are only honored when they are the entire response.
var aliases = map[string]string{
	"pos":   "positive",
	"neg":   "negative",
	"neu":   "neutral",
	"y":     "yes",
	"n":     "no",
	"true":  "yes",
	"false": "no",
	"1":     "yes",
	"0":     "no",
}

// Normalize extracts a canonical label from a raw model response.
// It strips markdown fencing, unwraps {"label": ...} JSON objects,
// honors a trailing "Answer:" line, and finally scans for a single
// unambiguous label token. Returns false when no label can be read.
func Normalize(task models.Task, raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	text = stripFences(text)

	if label, ok := labelFromJSON(text); ok {
		text = label
	}

	// Chain-of-thought responses end with "Answer: <label>". Work on
	// the lowered copy so the index is valid for the slice.
	lowered := strings.ToLower(text)
	if idx := strings.LastIndex(lowered, "answer:"); idx >= 0 {
		text = lowered[idx+len("answer:"):]
	}

	return matchLabel(task, text)
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) > 1 {
		text = lines[1]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func labelFromJSON(text string) (string, bool) {
	var obj struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return "", false
	}
	if obj.Label == "" {
		return "", false
	}
	return obj.Label, true
}

// matchLabel resolves text to one of the task's labels. An exact match
// (or exact alias) wins; otherwise the text is scanned for label
// tokens, and a single distinct hit is accepted while conflicting hits
// are rejected as ambiguous.
func matchLabel(task models.Task, text string) (string, bool) {
	labels := task.Labels()
	lower := strings.ToLower(strings.TrimSpace(text))
	lower = strings.Trim(lower, "\"'`.,:;!?() \t\n")

	if canon, ok := resolve(lower, labels); ok {
		return canon, true
	}

	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var found string
	for _, tok := range tokens {
		// Single-rune aliases are too noisy inside longer answers.
		if len(tok) < 2 {
			continue
		}
		canon, ok := resolve(tok, labels)
		if !ok {
			continue
		}
		if found != "" && found != canon {
			return "", false
		}
		found = canon
	}
	if found == "" {
		return "", false
	}
	return found, true
}

func resolve(word string, labels []string) (string, bool) {
	canon := word
	if alias, ok := aliases[word]; ok {
		canon = alias
	}
	for _, l := range labels {
		if canon == l {
			return l, true
		}
	}
	return "", false
}
