package models

type QuizQuestion struct {
	Question              string   `json:"question"`
	Options               []string `json:"options"`
	CorrectAnswer         int      `json:"correct_answer"`
	Explanation           string   `json:"explanation"`
	Hint                  string   `json:"hint,omitempty"`
	IncorrectExplanations []string `json:"incorrect_explanations,omitempty"`
}

type Quiz struct {
	Title      string         `json:"title"`
	Topic      string         `json:"topic"`
	Difficulty string         `json:"difficulty"`
	Questions  []QuizQuestion `json:"questions"`
}

// CardDraft is a generated flashcard before it is stored in a deck.
type CardDraft struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type MindMapNode struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Content     string `json:"content"`
	Depth       int    `json:"depth"`
	Connections int    `json:"connections"`
}

type MindMapEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

type MindMap struct {
	Nodes []MindMapNode `json:"nodes"`
	Edges []MindMapEdge `json:"edges"`
	// Depth is the deepest level the model actually produced.
	Depth int `json:"depth"`
}

type NodeExcerpt struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

type NodeDetails struct {
	NodeID  string        `json:"node_id"`
	Label   string        `json:"label"`
	Summary string        `json:"summary"`
	Details []NodeExcerpt `json:"details"`
	Source  string        `json:"source"`
}
