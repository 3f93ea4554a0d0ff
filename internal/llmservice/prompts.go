package llmservice

import (
	"fmt"
	"strconv"
	"strings"

	"clarity/internal/helper"
)

const (
	quizContextChunks   = 3
	nodeContextChars    = 1500
	MaxMindMapDepth     = 5
	DefaultMindMapDepth = 3
)

// BuildRAGPrompt numbers the excerpts and wraps them in the tutor instructions.
func BuildRAGPrompt(question string, chunks []string, withInstructions bool) string {
	excerpts := make([]string, len(chunks))
	for i, c := range chunks {
		excerpts[i] = fmt.Sprintf("[Excerpt %d]:\n%s", i+1, c)
	}
	context := strings.Join(excerpts, "\n\n")

	if !withInstructions {
		return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", context, question)
	}
	return fmt.Sprintf(`SYSTEM: You are Clarity, an educational assistant. Use the provided document excerpts to answer concisely. If unsure, say "I don't know" and suggest searching or uploading more material.

CONTEXT:
%s

USER: %s

INSTRUCTIONS:
- Use only facts from CONTEXT.
- Provide short summary (2-3 sentences).
- Be accurate and cite sources when possible.`, context, question)
}

// QuizPrompt asks for numQuestions multiple-choice questions as JSON. Only the first three chunks are used.
func QuizPrompt(topic, difficulty string, numQuestions int, chunks []string) string {
	if len(chunks) > quizContextChunks {
		chunks = chunks[:quizContextChunks]
	}
	context := strings.Join(chunks, "\n\n")
	return fmt.Sprintf(`You are a quiz generator. Generate %[1]d multiple-choice questions about %[2]s based on the provided content.

Difficulty level: %[3]s

Content:
%[4]s

IMPORTANT: Respond with ONLY valid JSON in this exact format, no additional text:
{
  "questions": [
    {
      "question": "Your question here?",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correct_answer": 0,
      "explanation": "Why this answer is correct",
      "hint": "A helpful hint without giving away the answer",
      "incorrect_explanations": [
        "Why option A is wrong (or empty if it's the correct answer)",
        "Why option B is wrong (or empty if it's the correct answer)",
        "Why option C is wrong (or empty if it's the correct answer)",
        "Why option D is wrong (or empty if it's the correct answer)"
      ]
    }
  ]
}

Rules:
- Generate exactly %[1]d questions based on the content
- Each question must have exactly 4 options
- correct_answer is the index (0-3) of the correct option
- Provide a helpful hint that guides without revealing the answer
- For incorrect_explanations, explain why each incorrect option is wrong, leave correct answer's explanation empty
- Output ONLY the JSON, no markdown, no code blocks, no extra text`, numQuestions, topic, difficulty, context)
}

func TopicPrompt(context string) string {
	return fmt.Sprintf(`Based on the following content, suggest 5 quiz topics that would make good quiz subjects.

Content:
%s

Output ONLY a JSON array of topic strings, like: ["Topic 1", "Topic 2", "Topic 3", "Topic 4", "Topic 5"]`, context)
}

func FlashcardPrompt(context string, numCards int) string {
	return fmt.Sprintf(`Generate %[1]d flashcards from the following content. Each flashcard should have a front (question) and back (answer).

Content:
%[2]s

Output ONLY valid JSON in this format:
{
  "cards": [
    {
      "front": "Question here?",
      "back": "Answer here"
    }
  ]
}

Rules:
- Generate exactly %[1]d flashcards
- Questions should test understanding, not just memorization
- Answers should be concise but complete
- Cover different topics from the content
- Output ONLY the JSON, no markdown, no code blocks, no extra text`, numCards, context)
}

var depthGuide = []string{
	"   - Depth 0 (root): 1 node (main central topic)",
	"   - Depth 1: 4-6 nodes (major subtopics/categories)",
	"   - Depth 2: 8-12 nodes (detailed concepts/mechanisms)",
	"   - Depth 3: 10-15 nodes (specific examples/applications)",
	"   - Depth 4: 12-18 nodes (detailed instances/processes)",
	"   - Depth 5: 15-20 nodes (fine-grained details/edge cases)",
}

var exampleNodes = []struct{ label, content string }{
	{"Central Topic", "Main concept"},
	{"Major Subtopic 1", "Key area description"},
	{"Detailed Concept", "Specific detail"},
	{"Specific Example", "Concrete instance"},
	{"Detailed Process", "Step-by-step breakdown"},
	{"Fine Detail", "Edge case or nuance"},
}

// ClampDepth keeps a requested mind-map depth within 1..MaxMindMapDepth.
func ClampDepth(depth int) int {
	return max(1, min(depth, MaxMindMapDepth))
}

// MindMapPrompt asks for a node/edge JSON graph covering depths 0..maxDepth.
func MindMapPrompt(context string, maxDepth int) string {
	maxDepth = ClampDepth(maxDepth)
	totalNodes := 30 + maxDepth*8

	levels := make([]string, maxDepth+1)
	for i := range levels {
		levels[i] = strconv.Itoa(i)
	}

	var nodes, edges []string
	for d := 0; d <= maxDepth; d++ {
		ex := exampleNodes[d]
		nodes = append(nodes, fmt.Sprintf(`    {"id": "%d", "label": "%s", "content": "%s", "depth": %d}`, d+1, ex.label, ex.content, d))
		switch {
		case d == 1:
			edges = append(edges, fmt.Sprintf(`    {"from": "1", "to": "%d", "label": "encompasses"}`, d+1))
		case d > 1:
			edges = append(edges, fmt.Sprintf(`    {"from": "%d", "to": "%d", "label": "consists of"}`, d, d+1))
		}
	}

	return fmt.Sprintf(`Based on the following content, create a comprehensive hierarchical mind map structure with EXACTLY %[1]d depth levels (0 through %[2]d).

Content:
%[3]s

CRITICAL REQUIREMENTS - READ CAREFULLY:
1. Create EXACTLY %[1]d depth levels: depth %[4]s
2. Generate %[5]d-%[6]d nodes total distributed across ALL %[1]d levels
3. Each node MUST have a unique numeric ID (as a string)
4. MANDATORY node distribution by depth:
%[7]s
5. Each edge MUST have a descriptive label explaining the relationship
   Examples: "is a type of", "causes", "leads to", "includes", "explains", "requires", "produces", "demonstrates", "applies to", "results in"
6. Keep node labels concise (2-5 words maximum)
7. Node content should be a brief description (1 sentence)

Return ONLY a valid JSON object with this EXACT structure:
{
  "nodes": [
%[8]s
  ],
  "edges": [
%[9]s
  ]
}

ABSOLUTELY CRITICAL:
- You MUST generate nodes for ALL depth levels from 0 to %[2]d
- The maximum depth value in your nodes MUST be %[2]d
- Every depth level must have multiple nodes, not just one
- Double-check your JSON includes nodes with "depth": %[2]d before returning`,
		maxDepth+1, maxDepth, context, strings.Join(levels, ", "), totalNodes, totalNodes+10,
		strings.Join(depthGuide[:maxDepth+1], "\n"), strings.Join(nodes, ",\n"), strings.Join(edges, ",\n"))
}

// NodeSummaryPrompt asks for a short explanation of one mind-map node.
func NodeSummaryPrompt(label, context string) string {
	if len(context) > nodeContextChars {
		context = helper.Truncate(context, nodeContextChars)
	}
	return fmt.Sprintf(`Explain %s based on this content. Write 3-4 clear sentences covering what it is, how it works, and why it matters. Use concrete examples where possible.

%s`, label, context)
}

// ContextPrompt asks for a one-line description that situates chunk within document.
func ContextPrompt(document, chunk string) string {
	return fmt.Sprintf(`<document>
%s
</document>
Here is the chunk we want to situate within the whole document
<chunk>
%s
</chunk>
Please give a short succinct context to situate this chunk within the overall document for the purposes of improving search retrieval of the chunk. Answer only with the succinct context and nothing else.
`, document, chunk)
}
