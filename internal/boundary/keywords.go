package boundary

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/actiongate/internal/model"
)

// keywordMatcher finds blocked terms anywhere in an action's text.
// Matching is case-insensitive substring containment.
type keywordMatcher struct {
	keywords []string // lowercased
}

func newKeywordMatcher(keywords []string) keywordMatcher {
	lower := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			lower = append(lower, kw)
		}
	}
	return keywordMatcher{keywords: lower}
}

// Match returns the first blocked keyword found in the action type,
// description or any string inside params.
func (m keywordMatcher) Match(a model.Action) (string, bool) {
	if len(m.keywords) == 0 {
		return "", false
	}
	var texts []string
	texts = append(texts, a.Type, a.Description)
	texts = collectStrings(a.Params, texts)

	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, kw := range m.keywords {
			if strings.Contains(lower, kw) {
				return kw, true
			}
		}
	}
	return "", false
}

// collectStrings walks nested params depth-first. Map keys are visited in
// sorted order so the first match is stable.
func collectStrings(v any, out []string) []string {
	switch val := v.(type) {
	case string:
		return append(out, val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collectStrings(val[k], out)
		}
	case map[any]any:
		keys := make([]string, 0, len(val))
		byKey := make(map[string]any, len(val))
		for k, item := range val {
			ks := fmt.Sprint(k)
			keys = append(keys, ks)
			byKey[ks] = item
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collectStrings(byKey[k], out)
		}
	case []any:
		for _, item := range val {
			out = collectStrings(item, out)
		}
	case []string:
		out = append(out, val...)
	}
	return out
}
