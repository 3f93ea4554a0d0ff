package llmservice

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"clarity/internal/config"
)

type fakeModel struct {
	reply    string
	choices  bool
	lastOpts llms.CallOptions
	prompt   string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	f.lastOpts = opts
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if tc, ok := messages[0].Parts[0].(llms.TextContent); ok {
			f.prompt = tc.Text
		}
	}
	if opts.StreamingFunc != nil {
		for _, w := range strings.SplitAfter(f.reply, " ") {
			if err := opts.StreamingFunc(ctx, []byte(w)); err != nil {
				return nil, err
			}
		}
	}
	if !f.choices {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChain(t *testing.T) {
	ctx := context.Background()

	t.Run("Options and think tags", func(t *testing.T) {
		m := &fakeModel{reply: "<think>hmm</think> The answer.", choices: true}
		g := NewLangChain(m, "fake", Options{MaxTokens: 100, Temperature: 0.7})

		var streamed strings.Builder
		out, err := g.Generate(ctx, "question?", WithMaxTokens(300), WithStream(func(s string) { streamed.WriteString(s) }))
		require.NoError(t, err)
		assert.Equal(t, "The answer.", out)
		assert.Equal(t, 300, m.lastOpts.MaxTokens)
		assert.InDelta(t, 0.7, m.lastOpts.Temperature, 1e-9)
		assert.Equal(t, "question?", m.prompt)
		assert.Equal(t, m.reply, streamed.String())
		assert.Equal(t, "fake", g.ModelName())
	})

	t.Run("No choices", func(t *testing.T) {
		g := NewLangChain(&fakeModel{reply: "x"}, "fake", Options{})
		_, err := g.Generate(ctx, "q")
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestMock(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	assert.Equal(t, MockModelName, m.ModelName())

	cases := []struct {
		name, prompt, want string
	}{
		{"Neural network keyword", "Tell me about neural networks", "Neural networks are computational models"},
		{"NN as a word", "what is an nn?", "Neural networks are computational models"},
		{"Gradient descent", "Explain gradient descent", "Gradient descent is an optimization algorithm"},
		{"Default", "What is photosynthesis?", "this is a mock LLM response"},
		{"Quiz", QuizPrompt("AI", "easy", 3, []string{"ctx"}), `"questions"`},
		{"Topics", TopicPrompt("ctx"), `["Neural Networks"`},
		{"Cards", FlashcardPrompt("ctx", 10), `"cards"`},
		{"Mind map", MindMapPrompt("ctx", 3), `"nodes"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := m.Generate(ctx, tc.prompt)
			require.NoError(t, err)
			assert.Contains(t, out, tc.want)
		})
	}

	t.Run("Beginning does not trigger nn", func(t *testing.T) {
		out, err := m.Generate(ctx, "In the beginning")
		require.NoError(t, err)
		assert.Contains(t, out, "mock LLM response")
	})

	t.Run("Streams the reply", func(t *testing.T) {
		var parts []string
		out, err := m.Generate(ctx, "gradient descent", WithStream(func(s string) { parts = append(parts, s) }))
		require.NoError(t, err)
		assert.Equal(t, out, strings.Join(parts, ""))
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := m.Generate(cctx, "x")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNew(t *testing.T) {
	g, err := New(&config.LLMConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, MockModelName, g.ModelName())

	g, err = New(&config.LLMConfig{Provider: "gemini"})
	require.NoError(t, err)
	assert.IsType(t, &Mock{}, g)

	g, err = New(&config.LLMConfig{Provider: "ollama", Model: "gpt-oss:20b", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-oss:20b", g.ModelName())
}

func TestPrompts(t *testing.T) {
	t.Run("RAG prompt numbers excerpts", func(t *testing.T) {
		p := BuildRAGPrompt("What is X?", []string{"alpha", "beta"}, true)
		assert.Contains(t, p, "[Excerpt 1]:\nalpha")
		assert.Contains(t, p, "[Excerpt 2]:\nbeta")
		assert.Contains(t, p, "USER: What is X?")
		assert.True(t, strings.HasPrefix(p, "SYSTEM: You are Clarity"))

		plain := BuildRAGPrompt("What is X?", []string{"alpha"}, false)
		assert.Equal(t, "Context:\n[Excerpt 1]:\nalpha\n\nQuestion: What is X?\n\nAnswer:", plain)
	})

	t.Run("Quiz prompt keeps three chunks", func(t *testing.T) {
		p := QuizPrompt("Biology", "hard", 7, []string{"c1", "c2", "c3", "c4"})
		assert.Contains(t, p, "Generate 7 multiple-choice questions about Biology")
		assert.Contains(t, p, "Difficulty level: hard")
		assert.Contains(t, p, "c3")
		assert.NotContains(t, p, "c4")
	})

	t.Run("Mind map prompt scales with depth", func(t *testing.T) {
		p := MindMapPrompt("ctx", 2)
		assert.Contains(t, p, "EXACTLY 3 depth levels (0 through 2)")
		assert.Contains(t, p, "Generate 46-56 nodes")
		assert.Contains(t, p, "depth 0, 1, 2")
		assert.Contains(t, p, "Depth 2: 8-12 nodes")
		assert.NotContains(t, p, "Depth 3:")
		assert.Contains(t, p, `{"from": "2", "to": "3", "label": "consists of"}`)

		assert.Contains(t, MindMapPrompt("ctx", 99), "(0 through 5)")
	})

	t.Run("Depth clamp", func(t *testing.T) {
		assert.Equal(t, 1, ClampDepth(0))
		assert.Equal(t, 3, ClampDepth(3))
		assert.Equal(t, 5, ClampDepth(8))
	})

	t.Run("Node summary truncates context", func(t *testing.T) {
		p := NodeSummaryPrompt("Backprop", strings.Repeat("a", 5000))
		assert.Less(t, len(p), 1700)
		assert.Contains(t, p, "Explain Backprop based on this content.")
	})
}
