package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/quillwork/worksheets-backend/internal/worksheet"
)

const (
	WorksheetFile = "worksheet.pdf"
	AnswerKeyFile = "answer-key.pdf"

	margin        = 15.0
	footerSpace   = 15.0
	rowHeight     = 12.0
	workRowHeight = 32.0
	fontFamily    = "Helvetica"
)

// Output lists the files a render produced. AnswerKeyPath is empty when the
// answer key is switched off.
type Output struct {
	WorksheetPath string
	AnswerKeyPath string
}

// Renderer turns a worksheet document into files inside dir.
type Renderer interface {
	Render(ctx context.Context, doc *worksheet.Document, dir string) (*Output, error)
}

type PDFRenderer struct {
	creator string
}

func NewPDFRenderer(creator string) *PDFRenderer {
	if creator == "" {
		creator = "Worksheets"
	}
	return &PDFRenderer{creator: creator}
}

func (r *PDFRenderer) Render(ctx context.Context, doc *worksheet.Document, dir string) (*Output, error) {
	if doc == nil {
		return nil, fmt.Errorf("render: document is required")
	}

	out := &Output{WorksheetPath: filepath.Join(dir, WorksheetFile)}
	if err := r.renderVariant(ctx, doc, false, out.WorksheetPath); err != nil {
		return nil, fmt.Errorf("render worksheet: %w", err)
	}
	if doc.IncludeAnswerKey {
		out.AnswerKeyPath = filepath.Join(dir, AnswerKeyFile)
		if err := r.renderVariant(ctx, doc, true, out.AnswerKeyPath); err != nil {
			return nil, fmt.Errorf("render answer key: %w", err)
		}
	}
	return out, nil
}

func (r *PDFRenderer) renderVariant(ctx context.Context, doc *worksheet.Document, answers bool, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pdf := fpdf.New(orientationCode(doc.Orientation), "mm", pageSizeName(doc.PageSize), "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	title := doc.Title
	if answers {
		title += " - Answer Key"
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator(r.creator, true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, footerSpace)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-footerSpace + 3)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	writeHeader(pdf, tr, doc, title, answers)

	pageW, pageH := pdf.GetPageSize()
	columns := doc.Columns
	if columns < 1 {
		columns = 1
	}
	colWidth := (pageW - 2*margin) / float64(columns)
	height := rowHeight
	if doc.ShowWorkSpace && !answers {
		height = workRowHeight
	}

	pdf.SetFont(fontFamily, "", 12)
	y := pdf.GetY()
	for start := 0; start < len(doc.Problems); start += columns {
		if y+height > pageH-footerSpace {
			if err := ctx.Err(); err != nil {
				return err
			}
			pdf.AddPage()
			pdf.SetFont(fontFamily, "", 12)
			y = margin
		}
		for col := 0; col < columns && start+col < len(doc.Problems); col++ {
			problem := doc.Problems[start+col]
			text := problem.Prompt() + " ______"
			if answers {
				text = problem.Solution()
			}
			pdf.SetXY(margin+float64(col)*colWidth, y)
			pdf.CellFormat(colWidth, rowHeight, tr(fmt.Sprintf("%d)  %s", problem.Number, text)), "", 0, "L", false, 0, "")
		}
		y += height
	}

	if err := pdf.Error(); err != nil {
		return err
	}
	return pdf.OutputFileAndClose(path)
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, doc *worksheet.Document, title string, answers bool) {
	pdf.SetFont(fontFamily, "B", 18)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont(fontFamily, "", 12)
		pdf.CellFormat(0, 7, tr(doc.Subtitle), "", 1, "L", false, 0, "")
	}
	if !answers {
		pdf.Ln(2)
		pdf.SetFont(fontFamily, "", 11)
		pdf.CellFormat(0, 7, "Name: ______________________    Date: ____________", "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)
	pdf.SetFont(fontFamily, "I", 10)
	pdf.MultiCell(0, 5, tr(doc.Instructions), "", "L", false)
	pdf.Ln(4)
}

func orientationCode(orientation string) string {
	if orientation == "landscape" {
		return "L"
	}
	return "P"
}

func pageSizeName(size string) string {
	if size == "a4" {
		return "A4"
	}
	return "Letter"
}
