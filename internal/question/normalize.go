package question

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Field aliases probed on raw records, in preference order.
var textAliases = []string{"question", "prompt", "q"}

var (
	letteredOption = regexp.MustCompile(`^[A-Da-d]\s*[).:\]-]\s*(.+)$`)
	leadingInt     = regexp.MustCompile(`^\s*([+-]?\d+)`)
)

// Normalize converts one raw record into a Normalized question.
// It never fails: malformed fields degrade to empty values and AnswerIndex -1.
func Normalize(raw RawQuestion) Normalized {
	out := Normalized{
		Text:        extractText(raw),
		Options:     extractOptions(raw["options"]),
		AnswerIndex: -1,
		Raw:         maps.Clone(raw),
	}
	if out.Raw == nil {
		out.Raw = RawQuestion{}
	}

	out.AnswerIndex, out.AnswerText = resolveAnswer(raw, out.Options)

	if len(out.Options) == 0 {
		if text, ok := raw["raw"].(string); ok {
			if recovered := letteredOptions(text); len(recovered) >= 2 {
				out.Options = recovered
			}
		}
	}
	return out
}

// NormalizeAll normalizes every record in order. One bad record never affects the rest.
func NormalizeAll(raws []RawQuestion) []Normalized {
	out := make([]Normalized, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

func extractText(raw RawQuestion) string {
	for _, key := range textAliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

func extractOptions(v any) []string {
	var opts []string
	switch t := v.(type) {
	case []any:
		opts = make([]string, 0, len(t))
		for _, o := range t {
			if o == nil {
				opts = append(opts, "")
				continue
			}
			opts = append(opts, strings.TrimSpace(stringify(o)))
		}
	case []string:
		opts = make([]string, 0, len(t))
		for _, o := range t {
			opts = append(opts, strings.TrimSpace(o))
		}
	case string:
		for _, line := range strings.Split(t, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				opts = append(opts, line)
			}
		}
	}
	if len(opts) > MaxOptions {
		opts = opts[:MaxOptions]
	}
	if opts == nil {
		opts = []string{}
	}
	return opts
}

// resolveAnswer tries answer_index, then an answer string, then a numeric answer.
func resolveAnswer(raw RawQuestion, options []string) (int, *string) {
	if v, ok := raw["answer_index"]; ok && v != nil {
		if idx, ok := parseIndex(v, len(options)); ok {
			return idx, nil
		}
	}

	if literal, ok := answerString(raw); ok {
		for i, opt := range options {
			if strings.EqualFold(strings.TrimSpace(opt), literal) {
				return i, nil
			}
		}
		return -1, &literal
	}

	if v, ok := raw["answer"]; ok && isNumber(v) {
		if idx, ok := parseIndex(v, len(options)); ok {
			return idx, nil
		}
	}
	return -1, nil
}

func answerString(raw RawQuestion) (string, bool) {
	for _, key := range []string{"answer", "answer_text"} {
		if s, ok := raw[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// parseIndex reads the leading integer of v's string form and checks it against [0, n).
func parseIndex(v any, n int) (int, bool) {
	m := leadingInt.FindStringSubmatch(stringify(v))
	if m == nil {
		return -1, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 0 || idx >= n {
		return -1, false
	}
	return idx, true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// letteredOptions recovers "A) ..." style choices embedded in free text.
func letteredOptions(text string) []string {
	var found []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := letteredOption.FindStringSubmatch(line); m != nil {
			if content := strings.TrimSpace(m[1]); content != "" {
				found = append(found, content)
			}
		}
	}
	if len(found) > MaxOptions {
		found = found[:MaxOptions]
	}
	return found
}
