// Package chunker splits page text into overlapping, size-bounded chunks that
// prefer to end on paragraph, line, sentence or word boundaries.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"manual-rag/internal/models"
)

// pageJoin separates pages when chunking across page boundaries.
const pageJoin = "\n\n"

// DefaultSeparators lists boundary groups from highest to lowest priority.
// Separators inside one group are equivalent; the latest match wins.
var DefaultSeparators = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "; "},
	{" "},
}

type Chunker struct {
	size       int
	overlap    int
	spanPages  bool
	separators [][][]rune
}

type Option func(*Chunker)

// WithSpanPages chunks the whole document as one text. A chunk that crosses a
// page boundary belongs to the page it starts on.
func WithSpanPages(span bool) Option {
	return func(c *Chunker) {
		c.spanPages = span
	}
}

// New validates the chunking parameters. size and overlap count characters.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", models.ErrInvalidConfig, overlap, size)
	}
	c := &Chunker{
		size:       size,
		overlap:    overlap,
		separators: toRunes(DefaultSeparators),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks pages in order. ChunkIndex runs across the whole document.
func (c *Chunker) Split(pages []models.Page) []models.Chunk {
	if c.spanPages {
		return c.splitSpanning(pages)
	}

	var chunks []models.Chunk
	for _, page := range pages {
		text := []rune(page.Content)
		for _, w := range c.windows(text) {
			chunks = append(chunks, models.Chunk{
				Content:     string(text[w.start:w.end]),
				PageNumber:  page.PageNumber,
				StartOffset: w.start,
				ChunkIndex:  len(chunks),
			})
		}
	}
	return chunks
}

func (c *Chunker) splitSpanning(pages []models.Page) []models.Chunk {
	var (
		text   []rune
		starts []int // rune offset of each kept page inside text
		kept   []models.Page
	)
	for _, page := range pages {
		if strings.TrimSpace(page.Content) == "" {
			continue
		}
		if len(kept) > 0 {
			text = append(text, []rune(pageJoin)...)
		}
		starts = append(starts, len(text))
		kept = append(kept, page)
		text = append(text, []rune(page.Content)...)
	}

	var chunks []models.Chunk
	p := 0
	for _, w := range c.windows(text) {
		for p+1 < len(starts) && starts[p+1] <= w.start {
			p++
		}
		chunks = append(chunks, models.Chunk{
			Content:     string(text[w.start:w.end]),
			PageNumber:  kept[p].PageNumber,
			StartOffset: w.start - starts[p],
			ChunkIndex:  len(chunks),
		})
	}
	return chunks
}

type window struct {
	start, end int
}

// windows cuts text into spans of at most c.size runes. Each span after the
// first starts exactly c.overlap runes before the end of its predecessor.
func (c *Chunker) windows(text []rune) []window {
	if isBlank(text) {
		return nil
	}
	var out []window
	n := len(text)
	start := 0
	for {
		end := n
		if n-start > c.size {
			end = c.breakPoint(text, start)
		}
		if !isBlank(text[start:end]) {
			out = append(out, window{start: start, end: end})
		}
		if end >= n {
			return out
		}
		start = end - c.overlap
	}
}

// breakPoint picks the end of the window starting at start. The end is kept
// past start+overlap so the next window always moves forward.
func (c *Chunker) breakPoint(text []rune, start int) int {
	limit := start + c.size
	lo := start + max(c.overlap+1, c.size/2)
	if lo >= limit {
		return limit
	}
	region := text[lo:limit]
	for _, group := range c.separators {
		best := -1
		for _, sep := range group {
			if idx := lastIndex(region, sep); idx >= 0 && lo+idx+len(sep) > best {
				best = lo + idx + len(sep)
			}
		}
		if best > 0 {
			return best
		}
	}
	return limit
}

func lastIndex(s, sep []rune) int {
	if len(sep) == 0 || len(sep) > len(s) {
		return -1
	}
outer:
	for i := len(s) - len(sep); i >= 0; i-- {
		for j := range sep {
			if s[i+j] != sep[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func isBlank(s []rune) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func toRunes(groups [][]string) [][][]rune {
	out := make([][][]rune, 0, len(groups))
	for _, g := range groups {
		var rg [][]rune
		for _, sep := range g {
			if sep != "" {
				rg = append(rg, []rune(sep))
			}
		}
		if len(rg) > 0 {
			out = append(out, rg)
		}
	}
	return out
}
