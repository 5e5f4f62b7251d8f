package domain

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// TodoItem is one node of the to-do tree. The prompt asks for at most two
// nested levels; nothing here enforces it.
type TodoItem struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Priority Priority   `json:"priority,omitempty"`
	Category string     `json:"category,omitempty"`
	Children []TodoItem `json:"children,omitempty"`
}

type AnalysisResult struct {
	Highlights string     `json:"highlights"`
	Todos      []TodoItem `json:"todos"`
}

// EmptyAnalysis is the well-formed result for a transcript with nothing in it.
func EmptyAnalysis() AnalysisResult {
	return AnalysisResult{Highlights: "", Todos: []TodoItem{}}
}

// IDs walks the tree depth-first and returns every item id.
func (r AnalysisResult) IDs() []string {
	var ids []string
	var walk func(items []TodoItem)
	walk = func(items []TodoItem) {
		for _, it := range items {
			ids = append(ids, it.ID)
			walk(it.Children)
		}
	}
	walk(r.Todos)
	return ids
}

func (r AnalysisResult) Count() int {
	return len(r.IDs())
}
