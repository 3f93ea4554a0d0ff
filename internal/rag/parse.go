package rag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"clarity/internal/helper"
	"clarity/internal/models"
)

var (
	jsonObject = regexp.MustCompile(models.JSONObjectRegex)
	jsonArray  = regexp.MustCompile(models.JSONArrayRegex)
)

const defaultExplanation = "Generated from your documents."

// flexString accepts a JSON string or number, since models emit ids both ways.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type rawQuestion struct {
	Question              string   `json:"question"`
	Options               []string `json:"options"`
	CorrectAnswer         *int     `json:"correct_answer"`
	Explanation           string   `json:"explanation"`
	Hint                  string   `json:"hint"`
	IncorrectExplanations []string `json:"incorrect_explanations"`
}

// ParseQuiz extracts questions from a model reply. Options are capped at four and questions whose
// correct answer does not index an option are dropped.
func ParseQuiz(reply string) ([]models.QuizQuestion, error) {
	raw := jsonObject.FindString(reply)
	if raw == "" {
		raw = reply
	}
	var data struct {
		Questions []rawQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: quiz json: %v", ErrGeneration, err)
	}

	questions := make([]models.QuizQuestion, 0, len(data.Questions))
	for _, q := range data.Questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 {
			continue
		}
		options := q.Options
		if len(options) > models.MaxQuizOptions {
			options = options[:models.MaxQuizOptions]
		}
		correct := 0
		if q.CorrectAnswer != nil {
			correct = *q.CorrectAnswer
		}
		if correct < 0 || correct >= len(options) {
			continue
		}
		explanation := q.Explanation
		if explanation == "" {
			explanation = defaultExplanation
		}
		incorrect := q.IncorrectExplanations
		if len(incorrect) > len(options) {
			incorrect = incorrect[:len(options)]
		}
		questions = append(questions, models.QuizQuestion{
			Question:              q.Question,
			Options:               options,
			CorrectAnswer:         correct,
			Explanation:           explanation,
			Hint:                  q.Hint,
			IncorrectExplanations: incorrect,
		})
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no quiz questions in %d chars of output", ErrGeneration, len(reply))
	}
	return questions, nil
}

// ParseTopics reads a JSON string array, falling back to a single generic topic.
func ParseTopics(reply string) []string {
	var topics []string
	if raw := jsonArray.FindString(reply); raw != "" {
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			topics = nil
		}
	}
	cleaned := make([]string, 0, len(topics))
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return []string{models.FallbackTopic}
	}
	if len(cleaned) > models.MaxTopics {
		cleaned = cleaned[:models.MaxTopics]
	}
	return cleaned
}

// ParseCards reads {"cards":[{front,back}]} and drops incomplete cards.
func ParseCards(reply string) ([]models.CardDraft, error) {
	raw := jsonObject.FindString(reply)
	if raw == "" {
		return nil, fmt.Errorf("%w: no json object in flashcard output", ErrGeneration)
	}
	var data struct {
		Cards []models.CardDraft `json:"cards"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("%w: flashcard json: %v", ErrGeneration, err)
	}
	cards := make([]models.CardDraft, 0, len(data.Cards))
	for _, c := range data.Cards {
		c.Front, c.Back = strings.TrimSpace(c.Front), strings.TrimSpace(c.Back)
		if c.Front != "" && c.Back != "" {
			cards = append(cards, c)
		}
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards in output", ErrGeneration)
	}
	return cards, nil
}

type rawNode struct {
	ID      flexString `json:"id"`
	Label   string     `json:"label"`
	Content string     `json:"content"`
	Depth   int        `json:"depth"`
}

type rawEdge struct {
	From  flexString `json:"from"`
	To    flexString `json:"to"`
	Label string     `json:"label"`
}

// ParseMindMap reads the span from the first '{' to the last '}'. Unparsable output yields the
// single-node fallback map and ok=false.
func ParseMindMap(reply string) (mm *models.MindMap, ok bool) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return fallbackMindMap(), false
	}
	var data struct {
		Nodes []rawNode `json:"nodes"`
		Edges []rawEdge `json:"edges"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &data); err != nil || len(data.Nodes) == 0 {
		return fallbackMindMap(), false
	}

	mm = &models.MindMap{}
	seen := make(map[string]bool, len(data.Nodes))
	for i, n := range data.Nodes {
		id := string(n.ID)
		if id == "" || seen[id] {
			id = strconv.Itoa(i + 1)
			for seen[id] {
				id += "'"
			}
		}
		seen[id] = true
		mm.Nodes = append(mm.Nodes, models.MindMapNode{ID: id, Label: n.Label, Content: n.Content, Depth: max(0, n.Depth)})
	}
	for _, e := range data.Edges {
		from, to := string(e.From), string(e.To)
		if seen[from] && seen[to] {
			mm.Edges = append(mm.Edges, models.MindMapEdge{From: from, To: to, Label: e.Label})
		}
	}
	countConnections(mm)
	return mm, true
}

// countConnections sets each node's edge count and the map's deepest level.
func countConnections(mm *models.MindMap) {
	degree := make(map[string]int, len(mm.Nodes))
	for _, e := range mm.Edges {
		degree[e.From]++
		degree[e.To]++
	}
	mm.Depth = 0
	for i := range mm.Nodes {
		mm.Nodes[i].Connections = degree[mm.Nodes[i].ID]
		mm.Depth = max(mm.Depth, mm.Nodes[i].Depth)
	}
}

func fallbackMindMap() *models.MindMap {
	return &models.MindMap{
		Nodes: []models.MindMapNode{{ID: "1", Label: "Main Topic", Content: "Central concept", Depth: 0}},
		Edges: []models.MindMapEdge{},
	}
}

// excerpt shortens content to about limit bytes at sentence boundaries.
func excerpt(content string, limit int) string {
	content = strings.TrimSpace(content)
	if len(content) <= limit {
		return content
	}
	sentences := strings.Split(content, ". ")
	out := sentences[0]
	if len(out) > limit {
		return helper.Truncate(content, limit)
	}
	for _, s := range sentences[1:] {
		if len(out)+len(s)+2 > limit {
			break
		}
		out += ". " + s
	}
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "...") {
		out += "..."
	}
	return out
}
