package export

import (
	"html"
	"strings"
)

// TextToHTML turns free-form sheet text (notes, history entries) into
// block HTML. Blank lines separate paragraphs, lines starting with "- " or
// "* " form bullet lists and single newlines become line breaks.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var out strings.Builder
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.Trim(block, "\n")
		if strings.TrimSpace(block) == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		if isBulletBlock(lines) {
			out.WriteString("<ul>\n")
			for _, line := range lines {
				item := strings.TrimSpace(line)[2:]
				out.WriteString("<li>" + html.EscapeString(strings.TrimSpace(item)) + "</li>\n")
			}
			out.WriteString("</ul>\n")
			continue
		}
		escaped := make([]string, len(lines))
		for i, line := range lines {
			escaped[i] = html.EscapeString(line)
		}
		out.WriteString("<p>" + strings.Join(escaped, "<br>") + "</p>\n")
	}
	return out.String()
}

func isBulletBlock(lines []string) bool {
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			return false
		}
	}
	return true
}
