package extract

import "strings"

// cleanJSON strips markdown fences and keeps the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	for _, fence := range []string{"```json", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			if idx := strings.LastIndex(text, "```"); idx >= 0 {
				text = text[:idx]
			}
			break
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	} else if start >= 0 {
		text = text[start:]
	}

	return repairTruncatedJSON(strings.TrimSpace(text))
}

// repairTruncatedJSON closes brackets and braces left open when the model
// hit its token limit mid-object.
func repairTruncatedJSON(text string) string {
	if text == "" {
		return text
	}

	var stack []byte
	inString := false
	escape := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escape:
			escape = false
		case c == '\\' && inString:
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,:")
		text += string(stack[i])
	}
	return text
}
