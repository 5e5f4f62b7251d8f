package analysis

import (
	"net/http"
	"regexp"

	"github.com/samber/lo"
)

const CodeModelNotFound = "model_not_found"

// DefaultFallbackModels is tried in order after the configured model.
var DefaultFallbackModels = []string{
	"gpt-4o",
	"gpt-4.1",
	"gpt-4o-mini",
	"gpt-3.5-turbo",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"qwen-plus",
	"llama-3.1-70b-instruct",
	"deepseek-chat",
	"claude-3.5-sonnet",
}

var familyPattern = regexp.MustCompile(`(?i)gpt|gemini|qwen|llama|deepseek|claude`)

// ModelUnavailable reports whether an answer means "this model cannot serve
// the request here" rather than a plain failure.
func ModelUnavailable(status int, errorCode string) bool {
	switch status {
	case http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusServiceUnavailable:
		return true
	}
	return errorCode == CodeModelNotFound
}

// PickFallbackModel returns the first preferred model the vendor lists, or
// failing that the first listed model from a known chat family. Models in
// tried are never returned. An empty string means no alternative exists.
func PickFallbackModel(available, preferred []string, tried map[string]bool) string {
	listed := lo.SliceToMap(available, func(m string) (string, bool) { return m, true })

	if m, ok := lo.Find(preferred, func(m string) bool {
		return m != "" && listed[m] && !tried[m]
	}); ok {
		return m
	}
	m, _ := lo.Find(available, func(m string) bool {
		return familyPattern.MatchString(m) && !tried[m]
	})
	return m
}
