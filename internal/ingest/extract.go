package ingest

import (
	"bytes"
	"fmt"
	"strings"

	officelicense "github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// Extractor pulls plain text out of one document format.
type Extractor interface {
	Extract(data []byte) (string, error)
}

var extractors = map[DocumentType]Extractor{
	TypeText: textExtractor{},
	TypePDF:  pdfExtractor{},
	TypeDOCX: docxExtractor{},
}

// Extract dispatches on the document type.
func Extract(doc Document) (string, error) {
	ex, ok := extractors[doc.Type]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, doc.Type)
	}
	text, err := ex.Extract(doc.Data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s %q: %w", doc.Type, doc.Name, err)
	}
	return text, nil
}

// SetLicenseKey registers the metered UniDoc key used by the PDF and DOCX
// extractors. Plain-text extraction works without it.
func SetLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	if err := pdflicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unipdf license: %w", err)
	}
	if err := officelicense.SetMeteredKey(key); err != nil {
		return fmt.Errorf("unioffice license: %w", err)
	}
	return nil
}

type textExtractor struct{}

// Invalid UTF-8 sequences are dropped rather than rejected.
func (textExtractor) Extract(data []byte) (string, error) {
	return strings.ToValidUTF8(string(data), ""), nil
}

type pdfExtractor struct{}

func (pdfExtractor) Extract(data []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return "", fmt.Errorf("failed to inspect pdf encryption: %w", err)
	}
	if encrypted {
		if ok, err := pdfReader.Decrypt([]byte("")); err != nil || !ok {
			return "", fmt.Errorf("pdf is password protected")
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("failed to count pdf pages: %w", err)
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("failed to prepare pdf page %d: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("failed to extract pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return strings.Join(pages, " "), nil
}

type docxExtractor struct{}

func (docxExtractor) Extract(data []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer doc.Close()

	paragraphs := doc.Paragraphs()
	texts := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		var sb strings.Builder
		for _, run := range para.Runs() {
			sb.WriteString(run.Text())
		}
		texts = append(texts, sb.String())
	}
	return strings.Join(texts, " "), nil
}
