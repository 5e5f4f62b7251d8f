package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"voice-todo/internal/domain"
)

// ParseResult turns a model reply into an AnalysisResult. The reply is tried
// as is, then with markdown fences stripped, then as the first balanced
// object in the text, then as everything between the first '{' and the last '}'.
func ParseResult(content string) (domain.AnalysisResult, error) {
	trimmed := strings.TrimSpace(content)
	stripped := stripFences(trimmed)

	for _, candidate := range []string{trimmed, stripped, firstObject(stripped), greedyObject(stripped)} {
		if candidate == "" {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &fields); err != nil || fields == nil {
			continue
		}
		return fromFields(fields), nil
	}

	return domain.AnalysisResult{}, fmt.Errorf("%w: no JSON object in model reply: %s", domain.ErrParse, snippet(trimmed))
}

func fromFields(fields map[string]json.RawMessage) domain.AnalysisResult {
	result := domain.EmptyAnalysis()
	result.Highlights = decodeHighlights(fields["highlights"])

	var items []any
	if raw, ok := fields["todos"]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			items = nil
		}
	}

	seen := make(map[string]bool)
	result.Todos = convertTodos(items, "", seen)
	return result
}

// Highlights are a string, but some models answer with a list of bullets.
func decodeHighlights(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "\n")
	}
	return ""
}

func convertTodos(items []any, prefix string, seen map[string]bool) []domain.TodoItem {
	todos := make([]domain.TodoItem, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}

		position := strconv.Itoa(len(todos) + 1)
		if prefix != "" {
			position = prefix + "-" + position
		}

		id := scalarString(obj["id"])
		if id == "" || seen[id] {
			id = position
		}
		for n := 2; seen[id]; n++ {
			id = position + "." + strconv.Itoa(n)
		}
		seen[id] = true

		priority := domain.Priority(strings.ToLower(strings.TrimSpace(scalarString(obj["priority"]))))
		if !priority.Valid() {
			priority = ""
		}

		todo := domain.TodoItem{
			ID:       id,
			Title:    strings.TrimSpace(scalarString(obj["title"])),
			Priority: priority,
			Category: strings.TrimSpace(scalarString(obj["category"])),
		}
		if children, ok := obj["children"].([]any); ok && len(children) > 0 {
			todo.Children = convertTodos(children, position, seen)
			if len(todo.Children) == 0 {
				todo.Children = nil
			}
		}
		todos = append(todos, todo)
	}
	return todos
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first brace-balanced object, skipping braces
// inside JSON strings.
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func greedyObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func snippet(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
