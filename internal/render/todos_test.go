package render_test

import (
	"encoding/json"
	"strings"
	"testing"

	"voice-todo/internal/domain"
	"voice-todo/internal/render"
)

func sampleTodos() []domain.TodoItem {
	return []domain.TodoItem{
		{
			ID: "1", Title: "Plan trip", Priority: domain.PriorityHigh, Category: "travel",
			Children: []domain.TodoItem{
				{ID: "1-1", Title: "Book flights", Priority: domain.PriorityMedium,
					Children: []domain.TodoItem{{ID: "1-1-1", Title: "Compare prices"}}},
			},
		},
		{ID: "2", Title: "Buy milk", Category: "shopping"},
		{ID: "3", Title: "Call mom"},
		{ID: "4", Title: "Renew passport", Priority: domain.PriorityLow, Category: "travel"},
	}
}

func TestTodosMarkdown(t *testing.T) {
	want := strings.Join([]string{
		"- [ ] Plan trip [high] (travel)",
		"  - [ ] Book flights [medium]",
		"    - [ ] Compare prices",
		"- [ ] Buy milk (shopping)",
		"- [ ] Call mom",
		"- [ ] Renew passport [low] (travel)",
	}, "\n")

	if got := render.TodosMarkdown(sampleTodos()); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
	if got := render.TodosMarkdown(nil); got != "" {
		t.Errorf("empty list: got %q", got)
	}
}

func TestTodosJSON(t *testing.T) {
	out, err := render.TodosJSON(sampleTodos())
	if err != nil {
		t.Fatalf("TodosJSON error: %v", err)
	}

	var back []domain.TodoItem
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(back) != 4 || back[0].Children[0].Children[0].ID != "1-1-1" {
		t.Errorf("round trip lost structure: %+v", back)
	}

	empty, _ := render.TodosJSON(nil)
	if empty != "[]" {
		t.Errorf("empty list: got %q, want []", empty)
	}
}

func TestGroupByCategory(t *testing.T) {
	groups := render.GroupByCategory(sampleTodos())

	want := []struct {
		category string
		titles   []string
	}{
		{"travel", []string{"Plan trip", "Renew passport"}},
		{"shopping", []string{"Buy milk"}},
		{render.Uncategorized, []string{"Call mom"}},
	}

	if len(groups) != len(want) {
		t.Fatalf("groups: got %d, want %d", len(groups), len(want))
	}
	for i, w := range want {
		if groups[i].Category != w.category {
			t.Errorf("group %d: got %s, want %s", i, groups[i].Category, w.category)
		}
		for j, title := range w.titles {
			if groups[i].Items[j].Title != title {
				t.Errorf("group %d item %d: got %s, want %s", i, j, groups[i].Items[j].Title, title)
			}
		}
	}
}

func TestCountTodos(t *testing.T) {
	if got := render.CountTodos(sampleTodos()); got != 6 {
		t.Errorf("got %d, want 6", got)
	}
}

func TestReport(t *testing.T) {
	result := domain.AnalysisResult{Highlights: "Trip prep", Todos: sampleTodos()}
	report := render.Report("we need to plan the trip", result)

	for _, want := range []string{"# Transcript", "we need to plan the trip", "Trip prep", "# To-dos (6)", "## travel", "## Uncategorized"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}

	empty := render.Report("", domain.EmptyAnalysis())
	if !strings.Contains(empty, "(no speech detected)") || !strings.Contains(empty, "# To-dos (0)") {
		t.Errorf("empty report:\n%s", empty)
	}
}
