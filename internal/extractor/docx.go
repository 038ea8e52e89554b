package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"rag-chat/internal/models"
)

// DOCX files are zip archives; the document body lives in word/document.xml.
// A streaming token walk collects text runs (w:t), paragraph breaks (w:p)
// and table cells (w:tc) without modeling the full WordprocessingML schema.
func (e *Extractor) extractDOCX(path string) (*models.ExtractedDocument, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DOCX archive: %w", err)
	}
	defer archive.Close()

	var docXML io.ReadCloser
	for _, f := range archive.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}
	defer docXML.Close()

	var sb strings.Builder
	paragraphs := 0
	tables := 0
	inText := false

	decoder := xml.NewDecoder(docXML)
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "p":
				paragraphs++
			case "tbl":
				tables++
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			case "tc":
				sb.WriteString(" ")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return &models.ExtractedDocument{
		Text: sb.String(),
		Metadata: map[string]interface{}{
			"file_type":  "docx",
			"paragraphs": paragraphs,
			"tables":     tables,
		},
	}, nil
}
