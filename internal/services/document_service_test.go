package services

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rag-chat/internal/chunker"
	"rag-chat/internal/extractor"
	"rag-chat/internal/keywords"
	"rag-chat/internal/models"
)

func newTestDocumentService(t *testing.T, index *MockVectorIndex) (*DocumentService, string) {
	t.Helper()

	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)
	ch, err := chunker.New(100, 20)
	require.NoError(t, err)

	dir := t.TempDir()
	svc := NewDocumentService(
		extractor.New(logger),
		ch,
		keywords.New(),
		index,
		nil,
		UploadConfig{
			UploadDir:         dir,
			MaxFileSizeBytes:  1 << 20,
			AllowedExtensions: []string{"pdf", "txt", "docx", "md", "html", "csv", "json"},
		},
		logger,
	)
	return svc, dir
}

func uploadText() string {
	return strings.Repeat("The onboarding guide explains account setup and security policies in detail. ", 20)
}

func TestUploadIndexesChunks(t *testing.T) {
	index := new(MockVectorIndex)
	var captured []*models.DocumentChunk
	index.On("AddDocuments", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).([]*models.DocumentChunk)
		}).
		Return([]string{"v1"}, nil)

	svc, dir := newTestDocumentService(t, index)

	result, err := svc.Upload(context.Background(), "guide.txt", int64(len(uploadText())), strings.NewReader(uploadText()))
	require.NoError(t, err)

	assert.Equal(t, "guide.txt", result.OriginalFilename)
	assert.Greater(t, result.ChunksCreated, 0)
	assert.Equal(t, "indexed", result.Status)
	assert.True(t, strings.HasSuffix(result.Filename, "_guide.txt"))

	// The saved file persists on success.
	_, err = os.Stat(filepath.Join(dir, result.Filename))
	require.NoError(t, err)

	require.NotEmpty(t, captured)
	assert.Equal(t, result.Filename, captured[0].SourceFile)
	assert.Equal(t, "guide.txt", captured[0].Metadata["original_filename"])
	assert.Equal(t, "txt", captured[0].Metadata["file_type"])
	assert.NotEmpty(t, captured[0].Metadata["keywords"])
}

func TestUploadRejectsDisallowedExtension(t *testing.T) {
	svc, dir := newTestDocumentService(t, new(MockVectorIndex))

	_, err := svc.Upload(context.Background(), "malware.exe", 4, strings.NewReader("MZ00"))
	require.Error(t, err)

	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave no files behind")
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	svc, _ := newTestDocumentService(t, new(MockVectorIndex))

	_, err := svc.Upload(context.Background(), "big.txt", 10<<20, strings.NewReader("irrelevant"))
	require.Error(t, err)

	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)
	assert.Contains(t, err.Error(), "byte limit")
}

func TestUploadCleansUpOnExtractionFailure(t *testing.T) {
	index := new(MockVectorIndex)
	svc, dir := newTestDocumentService(t, index)

	_, err := svc.Upload(context.Background(), "broken.json", 5, strings.NewReader(`{"x":`))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed uploads are removed from disk")

	index.AssertNotCalled(t, "AddDocuments", mock.Anything, mock.Anything)
}

func TestUploadCleansUpOnIndexFailure(t *testing.T) {
	index := new(MockVectorIndex)
	index.On("AddDocuments", mock.Anything, mock.Anything).
		Return(nil, errors.New("chroma unreachable"))

	svc, dir := newTestDocumentService(t, index)

	_, err := svc.Upload(context.Background(), "guide.txt", int64(len(uploadText())), strings.NewReader(uploadText()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chroma unreachable")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectsEmptyDocument(t *testing.T) {
	svc, dir := newTestDocumentService(t, new(MockVectorIndex))

	// Too short to clear the minimum chunk length.
	_, err := svc.Upload(context.Background(), "tiny.txt", 5, strings.NewReader("hello"))
	require.Error(t, err)

	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteRemovesIndexAndFile(t *testing.T) {
	index := new(MockVectorIndex)
	index.On("DeleteBySource", mock.Anything, "20260901_120000_guide.txt").Return(true, nil)

	svc, dir := newTestDocumentService(t, index)

	stored := filepath.Join(dir, "20260901_120000_guide.txt")
	require.NoError(t, os.WriteFile(stored, []byte("content"), 0644))

	deleted, err := svc.Delete(context.Background(), "20260901_120000_guide.txt")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = os.Stat(stored)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteMissingSource(t *testing.T) {
	index := new(MockVectorIndex)
	index.On("DeleteBySource", mock.Anything, "missing.txt").Return(false, nil)

	svc, _ := newTestDocumentService(t, index)

	deleted, err := svc.Delete(context.Background(), "missing.txt")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListDocumentsGroupsBySource(t *testing.T) {
	index := new(MockVectorIndex)
	index.On("GetAll", mock.Anything, 0).Return([]*models.IndexRecord{
		{ID: "1", Metadata: map[string]interface{}{"source_file": "a.txt", "file_type": "txt"}},
		{ID: "2", Metadata: map[string]interface{}{"source_file": "a.txt", "file_type": "txt"}},
		{ID: "3", Metadata: map[string]interface{}{"source_file": "b.pdf", "file_type": "pdf"}},
	}, nil)

	svc, _ := newTestDocumentService(t, index)

	summaries, err := svc.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "a.txt", summaries[0].SourceFile)
	assert.Equal(t, 2, summaries[0].ChunkCount)
	assert.Equal(t, "b.pdf", summaries[1].SourceFile)
	assert.Equal(t, "pdf", summaries[1].FileType)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "notes.txt", sanitizeFilename("../../notes.txt"))
	assert.Equal(t, "my_report_v2.pdf", sanitizeFilename("my report v2.pdf"))
	assert.Equal(t, "data.csv", sanitizeFilename("data.csv"))
}
