// Package render turns pipeline results into the formats users copy or read.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"voice-todo/internal/domain"
)

const Uncategorized = "Uncategorized"

// TodosMarkdown renders a task list, two spaces of indent per level:
//
//	- [ ] title [priority] (category)
func TodosMarkdown(items []domain.TodoItem) string {
	var lines []string
	var walk func(items []domain.TodoItem, level int)
	walk = func(items []domain.TodoItem, level int) {
		for _, it := range items {
			line := strings.Repeat("  ", level) + "- [ ] " + it.Title
			if it.Priority != "" {
				line += " [" + string(it.Priority) + "]"
			}
			if it.Category != "" {
				line += " (" + it.Category + ")"
			}
			lines = append(lines, line)
			walk(it.Children, level+1)
		}
	}
	walk(items, 0)
	return strings.Join(lines, "\n")
}

func TodosJSON(items []domain.TodoItem) (string, error) {
	if items == nil {
		items = []domain.TodoItem{}
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling todos: %w", err)
	}
	return string(b), nil
}

type CategoryGroup struct {
	Category string            `json:"category"`
	Items    []domain.TodoItem `json:"items"`
}

// GroupByCategory groups top-level items in first-seen category order.
func GroupByCategory(items []domain.TodoItem) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, it := range items {
		key := it.Category
		if key == "" {
			key = Uncategorized
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, CategoryGroup{Category: key})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// CountTodos counts items at every level.
func CountTodos(items []domain.TodoItem) int {
	return domain.AnalysisResult{Todos: items}.Count()
}

// Report is the plain-text summary printed by the CLI.
func Report(transcript string, result domain.AnalysisResult) string {
	var b strings.Builder

	b.WriteString("# Transcript\n\n")
	if strings.TrimSpace(transcript) == "" {
		b.WriteString("(no speech detected)\n")
	} else {
		b.WriteString(strings.TrimSpace(transcript) + "\n")
	}

	b.WriteString("\n# Highlights\n\n")
	if strings.TrimSpace(result.Highlights) == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(strings.TrimSpace(result.Highlights) + "\n")
	}

	fmt.Fprintf(&b, "\n# To-dos (%d)\n", CountTodos(result.Todos))
	for _, g := range GroupByCategory(result.Todos) {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", g.Category, TodosMarkdown(g.Items))
	}
	return b.String()
}
