package models

import (
	"strconv"
	"time"
)

// Page is the text of one physical page of the source document.
type Page struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"` // 0-based
	SourcePath string `json:"source_path"`
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content     string `json:"content"`
	PageNumber  int    `json:"page_number"`
	StartOffset int    `json:"start_offset"` // rune offset inside the page
	ChunkIndex  int    `json:"chunk_index"`
}

// Record is what the vector store persists for one chunk.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]string
}

// Result is a single retrieved chunk, ordered by Distance ascending.
type Result struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	PageNumber int               `json:"page_number"`
	ChunkIndex int               `json:"chunk_index"`
	Distance   float64           `json:"distance"`
}

// Answer is the outcome of one question turn.
type Answer struct {
	Question string   `json:"question"`
	Content  string   `json:"content"`
	Sources  []Result `json:"sources"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Result  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChunkMetadata builds the metadata stored next to a chunk's vector.
func ChunkMetadata(chunk Chunk, source string, seq int) map[string]string {
	return map[string]string{
		MetaPageNumber:  strconv.Itoa(chunk.PageNumber),
		MetaChunkIndex:  strconv.Itoa(chunk.ChunkIndex),
		MetaStartOffset: strconv.Itoa(chunk.StartOffset),
		MetaSource:      source,
		MetaSeq:         strconv.Itoa(seq),
	}
}

// MetaInt reads an integer metadata value, returning -1 when absent or malformed.
func MetaInt(meta map[string]string, key string) int {
	v, ok := meta[key]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
