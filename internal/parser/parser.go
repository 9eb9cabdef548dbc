package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"manual-rag/internal/models"
)

// Parser turns a file into its ordered pages.
type Parser interface {
	LoadPages(filePath string) ([]models.Page, error)
}

// FileParser dispatches on the file extension.
type FileParser struct{}

func New() *FileParser {
	return &FileParser{}
}

func (p *FileParser) LoadPages(filePath string) ([]models.Page, error) {
	return LoadPages(filePath)
}

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// LoadPages returns one page per physical page of filePath, 0-indexed, in order.
func LoadPages(filePath string) ([]models.Page, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, filePath)
		}
		return nil, err
	}

	var (
		texts []string
		err   error
	)
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		texts, err = parsePDF(filePath)
	case ".docx":
		texts, err = parseDOCX(filePath)
	case ".pptx":
		texts, err = parsePPTX(filePath)
	case ".xlsx":
		texts, err = parseXLSX(filePath)
	case ".md", ".markdown":
		texts, err = parseMarkdown(filePath)
	case ".txt":
		texts, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	pages := make([]models.Page, len(texts))
	for i, text := range texts {
		pages[i] = models.Page{
			Content:    normalizeNewlines(text),
			PageNumber: i,
			SourcePath: filePath,
		}
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("Loaded document")
	return pages, nil
}

func parsePDF(filePath string) (texts []string, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// the pdf package panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			texts = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	texts = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, pageText)
	}
	return texts, nil
}

func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		text := strings.TrimSpace(extractTextFromXML(p, "w:t"))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	// DOCX has no page numbers
	return []string{strings.Join(paragraphs, "\n\n")}, nil
}

func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		text string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{num: num, text: extractTextFromXML(string(data), "a:t")})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	texts := make([]string, len(slides))
	for i, s := range slides {
		texts[i] = strings.TrimSpace(s.text)
	}
	return texts, nil
}

func parseXLSX(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		texts = append(texts, text.String())
	}
	return texts, nil
}

func parseMarkdown(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	text, err := markdownToText(data)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

// parseText treats form feeds as page breaks.
func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}

func extractTextFromXML(xmlContent, tag string) string {
	open := "<" + tag
	closing := "</" + tag + ">"
	var text strings.Builder
	for _, part := range strings.Split(xmlContent, open)[1:] {
		// skip the rest of the opening tag, e.g. <w:t xml:space="preserve">, but not <w:tab/>
		gt := strings.Index(part, ">")
		if gt < 0 || (gt > 0 && part[0] != ' ') {
			continue
		}
		body := part[gt+1:]
		if endIdx := strings.Index(body, closing); endIdx >= 0 {
			text.WriteString(body[:endIdx])
		}
	}
	return unescapeXML(text.String())
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
