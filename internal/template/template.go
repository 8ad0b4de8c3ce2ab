package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z_]+\}`)

// Fill replaces every {key} with its value in a single pass, so values are
// never expanded again. Unknown placeholders are left in the text.
func Fill(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		if value, ok := vars[placeholder[1:len(placeholder)-1]]; ok {
			return value
		}
		return placeholder
	})
}

// Placeholders lists the placeholders of a template in order of appearance.
func Placeholders(template string) []string {
	return placeholderPattern.FindAllString(template, -1)
}

func Validate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("template cannot be empty")
	}
	openCount := strings.Count(template, "{")
	closeCount := strings.Count(template, "}")
	if openCount != closeCount {
		return fmt.Errorf("template has unbalanced braces: %d open, %d close", openCount, closeCount)
	}
	return nil
}
