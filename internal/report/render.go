package report

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Renderer turns a Document into artifact bytes.
type Renderer interface {
	Render(doc *Document) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the renderer for a format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatExcel:
		return &ExcelRenderer{}, nil
	case FormatPDF, FormatPPTX, FormatDOCX:
		return &PayloadRenderer{Format: format}, nil
	default:
		return nil, eris.Errorf("report: unknown format %q", format)
	}
}

// ExcelRenderer writes one worksheet per section.
type ExcelRenderer struct{}

func (r *ExcelRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (r *ExcelRenderer) Extension() string { return "xlsx" }

func (r *ExcelRenderer) Render(doc *Document) ([]byte, error) {
	f := xlsx.NewFile()

	for _, sec := range doc.Sections {
		sheet, err := f.AddSheet(sheetName(sec.Heading))
		if err != nil {
			return nil, eris.Wrapf(err, "report: adding sheet %q", sec.Heading)
		}

		header := sheet.AddRow()
		for _, col := range sec.Columns {
			cell := header.AddCell()
			cell.Value = col
		}
		for _, row := range sec.Rows {
			out := sheet.AddRow()
			for _, v := range row {
				cell := out.AddCell()
				cell.Value = v
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "report: writing workbook")
	}
	return buf.Bytes(), nil
}

// sheetName trims headings to Excel's 31-character sheet name limit.
func sheetName(heading string) string {
	if len(heading) > 31 {
		return heading[:31]
	}
	return heading
}

// PayloadRenderer emits the document as JSON for the downstream
// document service, which owns the actual pdf/pptx/docx typesetting.
type PayloadRenderer struct {
	Format Format
}

func (r *PayloadRenderer) ContentType() string { return "application/json" }

func (r *PayloadRenderer) Extension() string { return string(r.Format) + ".json" }

func (r *PayloadRenderer) Render(doc *Document) ([]byte, error) {
	payload := struct {
		TargetFormat Format `json:"target_format"`
		*Document
	}{TargetFormat: r.Format, Document: doc}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: encoding document payload")
	}
	return data, nil
}
