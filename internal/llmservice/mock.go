package llmservice

import (
	"context"
	"regexp"
	"strings"
)

const MockModelName = "mock-llm-v1"

var nnWord = regexp.MustCompile(`\bnn\b`)

// Mock answers from a fixed table keyed on prompt keywords. It never fails unless ctx is done.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) ModelName() string { return MockModelName }

func (m *Mock) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reply := m.reply(strings.ToLower(prompt))
	if o := applyOptions(Options{}, opts); o.Stream != nil {
		for _, word := range strings.SplitAfter(reply, " ") {
			o.Stream(word)
		}
	}
	return reply, nil
}

func (m *Mock) reply(prompt string) string {
	switch {
	case strings.Contains(prompt, "suggest 5 quiz topics"):
		return mockTopics
	case strings.Contains(prompt, "you are a quiz generator"):
		return mockQuiz
	case strings.Contains(prompt, "flashcards from the following content"):
		return mockCards
	case strings.Contains(prompt, "hierarchical mind map"):
		return mockMindMap
	case strings.Contains(prompt, "neural network") || nnWord.MatchString(prompt):
		return "Neural networks are computational models inspired by biological neural networks. " +
			"They consist of interconnected nodes (neurons) organized in layers. " +
			"Each connection has a weight that adjusts during training. " +
			"The network learns by adjusting these weights to minimize prediction errors through backpropagation."
	case strings.Contains(prompt, "gradient descent"):
		return "Gradient descent is an optimization algorithm used to minimize the loss function in machine learning. " +
			"It works by iteratively adjusting parameters in the direction opposite to the gradient of the loss function. " +
			"The learning rate controls the size of each step."
	default:
		return "Based on the provided context, I can help answer your question. " +
			"However, this is a mock LLM response. " +
			"Please configure a real LLM provider (ollama or openai) for production use."
	}
}

const mockTopics = `["Neural Networks", "Backpropagation", "Gradient Descent", "Activation Functions", "Training Data"]`

const mockQuiz = `{
  "questions": [
    {
      "question": "What are neural networks inspired by?",
      "options": ["Computer algorithms", "Biological neural networks", "Mathematical equations", "Physical processes"],
      "correct_answer": 1,
      "explanation": "Neural networks are modelled on networks of biological neurons.",
      "hint": "Think about the brain.",
      "incorrect_explanations": ["Algorithms implement them but did not inspire them.", "", "Equations describe them but did not inspire them.", "Physics is unrelated."]
    },
    {
      "question": "What adjusts during neural network training?",
      "options": ["The number of layers", "The activation functions", "The connection weights", "The input data"],
      "correct_answer": 2,
      "explanation": "Training updates the weight on each connection.",
      "hint": "Each connection carries one of these.",
      "incorrect_explanations": ["Layer count is fixed by the architecture.", "Activations are chosen up front.", "", "Input data is given."]
    },
    {
      "question": "What is backpropagation used for?",
      "options": ["Forward pass computation", "Data preprocessing", "Calculating gradients for weight updates", "Model evaluation"],
      "correct_answer": 2,
      "explanation": "Backpropagation computes the gradient of the loss for every weight.",
      "hint": "It runs after the forward pass.",
      "incorrect_explanations": ["That is the forward pass.", "Preprocessing happens before training.", "", "Evaluation does not update weights."]
    }
  ]
}`

const mockCards = `{
  "cards": [
    {"front": "What are neural networks inspired by?", "back": "Biological neural networks."},
    {"front": "What adjusts during training?", "back": "The connection weights."},
    {"front": "What does backpropagation compute?", "back": "Gradients of the loss with respect to each weight."},
    {"front": "What does gradient descent minimise?", "back": "The loss function."},
    {"front": "What controls the gradient descent step size?", "back": "The learning rate."}
  ]
}`

const mockMindMap = `{
  "nodes": [
    {"id": "1", "label": "Neural Networks", "content": "Models built from layers of connected neurons.", "depth": 0},
    {"id": "2", "label": "Training", "content": "Adjusting weights to reduce error.", "depth": 1},
    {"id": "3", "label": "Architecture", "content": "How layers and neurons are arranged.", "depth": 1},
    {"id": "4", "label": "Backpropagation", "content": "Computes gradients layer by layer.", "depth": 2},
    {"id": "5", "label": "Gradient Descent", "content": "Steps weights against the gradient.", "depth": 2}
  ],
  "edges": [
    {"from": "1", "to": "2", "label": "requires"},
    {"from": "1", "to": "3", "label": "includes"},
    {"from": "2", "to": "4", "label": "uses"},
    {"from": "2", "to": "5", "label": "uses"}
  ]
}`
