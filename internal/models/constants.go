package models

const (
	MetaPageNumber  = "page_number"
	MetaChunkIndex  = "chunk_index"
	MetaStartOffset = "start_offset"
	MetaSource      = "source"
	MetaSeq         = "seq"

	DefaultTopK         = 5
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	ContextSeparator = "\n---\n"
)

var (
	SystemInstruction = `You are a technical assistant answering questions about an industrial product manual.
Use only the pieces of context below to answer the question. If the answer is not in the context, say that you don't know; do not make up an answer.
Keep the answer precise and include values, units and part numbers exactly as written in the manual.`

	QAPromptTemplate = `Context:
%s

Question: %s
Helpful answer:`

	ContextChunkTemplate = `[Source %d, page %d]
%s`
)
