package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmbeddingService  = errors.New("embedding service error")
	ErrGeneration        = errors.New("generation error")
	ErrEmptyStore        = errors.New("vector store is empty")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoContent         = errors.New("document produced no chunks")
	ErrIngestInProgress  = errors.New("ingestion already in progress")
	ErrEmptyQuestion     = errors.New("question is empty")
)
