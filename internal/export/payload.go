package export

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// PayloadToHTML renders an evidence payload (arbitrary nested JSON) as a
// definition list. Keys are sorted so output is stable across exports.
func PayloadToHTML(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<dl>\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "<dt>%s</dt>\n", html.EscapeString(labelize(k)))
		fmt.Fprintf(&b, "<dd>%s</dd>\n", renderValue(payload[k]))
	}
	b.WriteString("</dl>\n")
	return b.String()
}

// renderValue recursively renders a payload value to HTML.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return html.EscapeString(val)
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case []any:
		if len(val) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString("<ul>\n")
		for _, item := range val {
			fmt.Fprintf(&b, "<li>%s</li>\n", renderValue(item))
		}
		b.WriteString("</ul>\n")
		return b.String()
	case map[string]any:
		if len(val) == 0 {
			return ""
		}
		return PayloadToHTML(val)
	default:
		return html.EscapeString(fmt.Sprintf("%v", val))
	}
}

// labelize turns snake_case and camelCase keys into readable labels.
func labelize(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case r == '_' || r == '-':
			b.WriteRune(' ')
		case i > 0 && r >= 'A' && r <= 'Z':
			b.WriteRune(' ')
			b.WriteRune(r)
		case i == 0 && r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
