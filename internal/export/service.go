package export

import (
	"context"
	"fmt"
	"time"

	"sheetkeeper/api/internal/character"
)

type renderFunc func(ctx context.Context, html, title string) (*Result, error)

// Service renders character sheets. PDF output needs Chromium on PATH and
// DOCX output needs pandoc.
type Service struct {
	pdf  renderFunc
	docx renderFunc
	now  func() time.Time
}

func NewService() *Service {
	return &Service{pdf: exportPDF, docx: exportDOCX, now: time.Now}
}

// Export renders doc in the requested format.
func (s *Service) Export(ctx context.Context, doc character.Document, format Format) (*Result, error) {
	page, err := RenderSheetHTML(newTemplateData(doc, s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(doc.Name) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return s.pdf(ctx, page, doc.Name)
	case FormatDOCX:
		return s.docx(ctx, page, doc.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
