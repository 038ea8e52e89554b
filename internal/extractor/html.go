package extractor

import (
	"bytes"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"

	"rag-chat/internal/models"
)

func (e *Extractor) extractHTML(path string) (*models.ExtractedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "No title"
	}
	links := doc.Find("a").Length()
	images := doc.Find("img").Length()

	doc.Find("script, style").Remove()
	text := collapseLines(doc.Text())

	return &models.ExtractedDocument{
		Text: text,
		Metadata: map[string]interface{}{
			"file_type": "html",
			"title":     title,
			"links":     links,
			"images":    images,
		},
	}, nil
}

func (e *Extractor) extractMarkdown(path string) (*models.ExtractedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Render to HTML and strip tags so headings and lists read as plain text.
	var html bytes.Buffer
	if err := goldmark.Convert(data, &html); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(&html)
	if err != nil {
		return nil, err
	}
	text := collapseLines(doc.Text())

	return &models.ExtractedDocument{
		Text: text,
		Metadata: map[string]interface{}{
			"file_type":        "markdown",
			"original_length":  len(data),
			"processed_length": len(text),
		},
	}, nil
}

// collapseLines trims every line and drops empty ones, which cleans up the
// heavy indentation left over from rendered HTML.
func collapseLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
