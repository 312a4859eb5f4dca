package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedFileType is returned for file types with no extractor.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrUnreadableFile is returned when a supported file cannot be decoded.
	ErrUnreadableFile = errors.New("unreadable file")
)

type extractor func(content []byte) (string, error)

// "doc" goes through the docx reader, which only accepts the Office Open
// XML format. Legacy binary .doc files fail as unreadable.
var extractors = map[string]extractor{
	"txt":  extractPlain,
	"md":   extractPlain,
	"csv":  extractPlain,
	"json": extractPlain,
	"pdf":  extractPDF,
	"docx": extractDOCX,
	"doc":  extractDOCX,
}

// FileType returns the lowercased extension of filename, or the whole
// lowercased name when it has no dot.
func FileType(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return strings.ToLower(filename[i+1:])
	}
	return strings.ToLower(filename)
}

// Supported reports whether text can be extracted from fileType.
func Supported(fileType string) bool {
	_, ok := extractors[fileType]
	return ok
}

// ExtractText returns the text content of a file of the given type.
func ExtractText(fileType string, content []byte) (string, error) {
	extract, ok := extractors[fileType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, fileType)
	}
	text, err := extract(content)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnreadableFile, fileType, err)
	}
	return text, nil
}

func extractPlain(content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", errors.New("invalid UTF-8")
	}
	return strings.TrimPrefix(string(content), "\ufeff"), nil
}
