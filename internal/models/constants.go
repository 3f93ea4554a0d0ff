package models

const (
	ContextSeparator = "\n\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	// JSONObjectRegex grabs the outermost {...} span of a model reply.
	JSONObjectRegex = `\{[\s\S]*\}`
	JSONArrayRegex  = `\[[\s\S]*\]`

	NoContextAnswer = "I don't have any relevant information to answer this question. Please upload some documents first."
	FallbackTopic   = "General knowledge from uploaded documents"
	MindMapQuery    = "main topics, key concepts, important ideas, central themes"
	MaxQuizOptions  = 4
	MaxTopics       = 5
)

// Chunk metadata keys stored alongside every vector.
const (
	MetaDocumentID = "document_id"
	MetaNotebookID = "notebook_id"
	MetaUserID     = "user_id"
	MetaTitle      = "title"
	MetaChunkIndex = "chunk_index"
	MetaCharStart  = "char_start"
	MetaCharEnd    = "char_end"
)
