package extractor

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"rag-chat/internal/models"
)

const maxCSVRows = 1000

// Extractor converts uploaded files into plain text plus per-format metadata.
// Supported formats are dispatched on file extension.
type Extractor struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// SupportedExtensions returns the extensions this extractor can process.
func (e *Extractor) SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".docx", ".md", ".html", ".csv", ".json"}
}

// Extract reads the file at path and returns its text content along with
// format-specific metadata. The returned metadata always includes file_type.
func (e *Extractor) Extract(path string) (*models.ExtractedDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var doc *models.ExtractedDocument
	var err error

	switch ext {
	case ".pdf":
		doc, err = e.extractPDF(path)
	case ".txt":
		doc, err = e.extractText(path)
	case ".docx":
		doc, err = e.extractDOCX(path)
	case ".md":
		doc, err = e.extractMarkdown(path)
	case ".html":
		doc, err = e.extractHTML(path)
	case ".csv":
		doc, err = e.extractCSV(path)
	case ".json":
		doc, err = e.extractJSON(path)
	default:
		return nil, &models.ExtractionError{
			File:   filepath.Base(path),
			Format: ext,
			Err:    fmt.Errorf("unsupported file type"),
		}
	}

	if err != nil {
		e.logger.Printf("Failed to extract %s: %v", filepath.Base(path), err)
		return nil, &models.ExtractionError{File: filepath.Base(path), Format: ext, Err: err}
	}

	e.logger.Printf("Extracted %d characters from %s", len(doc.Text), filepath.Base(path))
	return doc, nil
}

func (e *Extractor) extractText(path string) (*models.ExtractedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := string(data)
	metadata := map[string]interface{}{
		"file_type":  "txt",
		"char_count": len(text),
		"line_count": len(strings.Split(text, "\n")),
	}
	if !utf8.Valid(data) {
		text = decodeLatin1(data)
		metadata["encoding"] = "latin-1"
		metadata["char_count"] = len(text)
	}

	return &models.ExtractedDocument{Text: text, Metadata: metadata}, nil
}

func (e *Extractor) extractCSV(path string) (*models.ExtractedDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	headers, err := reader.Read()
	if err == io.EOF {
		return &models.ExtractedDocument{
			Text:     "",
			Metadata: map[string]interface{}{"file_type": "csv", "columns": 0, "rows": 0},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	sb.WriteString(fmt.Sprintf("Headers: %s\n\n", strings.Join(headers, ", ")))

	rowCount := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rowCount++
		sb.WriteString(fmt.Sprintf("Row %d: %s\n", rowCount, strings.Join(row, ", ")))
		if rowCount >= maxCSVRows {
			sb.WriteString(fmt.Sprintf("\n... (truncated after %d rows)\n", maxCSVRows))
			break
		}
	}

	return &models.ExtractedDocument{
		Text: sb.String(),
		Metadata: map[string]interface{}{
			"file_type": "csv",
			"columns":   len(headers),
			"rows":      rowCount,
			"headers":   headers,
		},
	}, nil
}

func (e *Extractor) extractJSON(path string) (*models.ExtractedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return nil, err
	}

	return &models.ExtractedDocument{
		Text: string(pretty),
		Metadata: map[string]interface{}{
			"file_type": "json",
			"size":      len(pretty),
			"structure": analyzeJSONStructure(parsed),
		},
	}, nil
}

// analyzeJSONStructure summarizes the top-level shape of a parsed JSON value.
func analyzeJSONStructure(data interface{}) map[string]interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
			if len(keys) == 10 {
				break
			}
		}
		return map[string]interface{}{"type": "object", "keys": len(v), "key_names": keys}
	case []interface{}:
		return map[string]interface{}{"type": "array", "length": len(v)}
	default:
		return map[string]interface{}{"type": fmt.Sprintf("%T", data)}
	}
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
