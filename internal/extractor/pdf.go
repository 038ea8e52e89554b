package extractor

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"rag-chat/internal/models"
)

func (e *Extractor) extractPDF(path string) (*models.ExtractedDocument, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	var sb strings.Builder
	extracted := 0

	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Printf("Skipping unreadable page %d of %s: %v", i, path, err)
			continue
		}
		sb.WriteString(fmt.Sprintf("\n--- Page %d ---\n%s", i, text))
		extracted++
	}

	if extracted == 0 && totalPages > 0 {
		return nil, fmt.Errorf("no readable text in %d pages", totalPages)
	}

	return &models.ExtractedDocument{
		Text: sb.String(),
		Metadata: map[string]interface{}{
			"file_type": "pdf",
			"pages":     totalPages,
		},
	}, nil
}
