package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Card is one applicant badge printed on the course card sheet.
type Card struct {
	Name       string
	Kind       string
	CourseName string
	Placement  string
	Room       string
}

// Certificate is one completion certificate page.
type Certificate struct {
	StudentName string
	CourseName  string
	Location    string
	Period      string
	IssuedOn    string
}

// PDFTable renders a dataset as a simple landscape table.
func PDFTable(data Dataset) ([]byte, error) {
	if err := data.validate(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(data.Title)), "", 1, "C", false, 0, "")
		pdf.Ln(4)
	}

	colWidth := 277.0 / float64(len(data.Headers))
	pdf.SetFont("Arial", "B", 9)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, value := range row {
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return output(pdf)
}

// PDFCards lays out cards two columns by four rows per A4 page.
func PDFCards(cards []Card) ([]byte, error) {
	if len(cards) == 0 {
		return nil, fmt.Errorf("no cards to render")
	}
	const (
		cols    = 2
		rows    = 4
		cardW   = 90.0
		cardH   = 62.0
		marginX = 12.0
		marginY = 15.0
		gap     = 6.0
	)
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, card := range cards {
		slot := i % (cols * rows)
		if slot == 0 {
			pdf.AddPage()
		}
		x := marginX + float64(slot%cols)*(cardW+gap)
		y := marginY + float64(slot/cols)*(cardH+gap)

		pdf.SetDrawColor(60, 60, 60)
		pdf.Rect(x, y, cardW, cardH, "D")

		pdf.SetXY(x, y+5)
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(cardW, 5, tr(card.CourseName), "", 2, "C", false, 0, "")
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(cardW, 14, tr(card.Name), "", 2, "C", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(cardW, 6, tr(card.Kind), "", 2, "C", false, 0, "")
		if card.Placement != "" {
			pdf.CellFormat(cardW, 6, tr(card.Placement), "", 2, "C", false, 0, "")
		}
		if card.Room != "" {
			pdf.CellFormat(cardW, 6, tr("Room: "+card.Room), "", 2, "C", false, 0, "")
		}
	}
	return output(pdf)
}

// PDFCertificates renders one landscape page per certificate.
func PDFCertificates(certs []Certificate) ([]byte, error) {
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates to render")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, cert := range certs {
		pdf.AddPage()
		pdf.SetLineWidth(1.2)
		pdf.Rect(10, 10, 277, 190, "D")
		pdf.SetLineWidth(0.3)
		pdf.Rect(14, 14, 269, 182, "D")

		pdf.SetY(40)
		pdf.SetFont("Times", "B", 32)
		pdf.CellFormat(0, 16, "Certificate of Completion", "", 1, "C", false, 0, "")
		pdf.Ln(8)
		pdf.SetFont("Times", "", 14)
		pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
		pdf.Ln(4)
		pdf.SetFont("Times", "B", 26)
		pdf.CellFormat(0, 14, tr(cert.StudentName), "", 1, "C", false, 0, "")
		pdf.Ln(4)
		pdf.SetFont("Times", "", 14)
		pdf.CellFormat(0, 8, "has successfully completed", "", 1, "C", false, 0, "")
		pdf.SetFont("Times", "B", 18)
		pdf.CellFormat(0, 10, tr(cert.CourseName), "", 1, "C", false, 0, "")
		pdf.SetFont("Times", "", 12)
		if cert.Location != "" {
			pdf.CellFormat(0, 7, tr(cert.Location), "", 1, "C", false, 0, "")
		}
		if cert.Period != "" {
			pdf.CellFormat(0, 7, tr(cert.Period), "", 1, "C", false, 0, "")
		}
		pdf.SetY(170)
		pdf.CellFormat(0, 7, tr("Issued "+cert.IssuedOn), "", 1, "R", false, 0, "")
	}
	return output(pdf)
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
