package operations

import (
	"sort"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// attributesReplace substitutes "$key" placeholders in text with attribute
// values. Nested attributes are addressed by dotted paths ("$is.moderator").
// Longer keys take precedence so "$username" wins over "$user".
func attributesReplace(attrs types.Attributes, text string) string {
	flat := make(map[string]string)
	flatten("", map[string]any(attrs), flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "$"+k, flat[k])
	}
	// One pass: inserted values are never expanded again.
	return strings.NewReplacer(pairs...).Replace(text)
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		case types.Attributes:
			flatten(key, t, out)
		case nil:
			out[key] = ""
		default:
			out[key] = types.ToString(t)
		}
	}
}
