package models

// ChunkRecord is one embedded chunk ready for a vector store.
type ChunkRecord struct {
	ID         string
	DocumentID string
	NotebookID string
	Title      string
	Index      int
	CharStart  int
	CharEnd    int
	Text       string
	Embedding  []float32
}

// SourceChunk is a retrieved chunk with its similarity score (1 - cosine distance).
type SourceChunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Answer struct {
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Sources    []SourceChunk `json:"source_chunks"`
	UsedPrompt string        `json:"used_prompt,omitempty"`
	Model      string        `json:"model"`
}
