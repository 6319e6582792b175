// Package ingest turns uploaded files into plain text and splits that
// text into overlapping windows ready for embedding.
package ingest

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

var ErrUnsupportedType = errors.New("unsupported document type")

// DocumentType is the closed set of formats the ingestor can read.
type DocumentType int

const (
	TypeUnknown DocumentType = iota
	TypeText
	TypePDF
	TypeDOCX
)

func (t DocumentType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypePDF:
		return "pdf"
	case TypeDOCX:
		return "docx"
	default:
		return "unknown"
	}
}

var extensionTypes = map[string]DocumentType{
	".txt":      TypeText,
	".md":       TypeText,
	".markdown": TypeText,
	".pdf":      TypePDF,
	".docx":     TypeDOCX,
}

var mimeTypes = map[string]DocumentType{
	"text/plain":      TypeText,
	"text/markdown":   TypeText,
	"application/pdf": TypePDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": TypeDOCX,
}

// ParseDocumentType resolves the type from the file extension, falling
// back to the declared MIME type when the name carries no known extension.
func ParseDocumentType(filename, contentType string) (DocumentType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	if ext == "" && contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			if t, ok := mimeTypes[strings.ToLower(mt)]; ok {
				return t, nil
			}
		}
	}
	return TypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedType, filename)
}

// SupportedExtensions lists the extensions accepted by ParseDocumentType.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown", ".pdf", ".docx"}
}

// Document is an uploaded file awaiting extraction.
type Document struct {
	Name string
	Type DocumentType
	Data []byte
}

func NewDocument(name, contentType string, data []byte) (Document, error) {
	t, err := ParseDocumentType(name, contentType)
	if err != nil {
		return Document{}, err
	}
	return Document{Name: name, Type: t, Data: data}, nil
}
