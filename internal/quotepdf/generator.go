// Package quotepdf renders a quote as a printable PDF document.
package quotepdf

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/Oscar-Santacruz/kusystem-sub001/internal/domain"
	"github.com/Oscar-Santacruz/kusystem-sub001/internal/pricing"
)

// Document is everything printed on a quote.
type Document struct {
	OrganizationName string
	Quote            domain.Quote
	Currency         string
	GeneratedAt      time.Time
}

// Generator renders Documents.
type Generator struct{}

func New() *Generator { return &Generator{} }

// Generate renders doc as PDF bytes.
func (g *Generator) Generate(doc Document) ([]byte, error) {
	q := doc.Quote
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Quote "+q.Number), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(doc.OrganizationName))
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Quote %s  |  %s", q.Number, q.Status)))
	pdf.Ln(6)
	if q.Title != "" {
		pdf.Cell(0, 6, tr(q.Title))
		pdf.Ln(6)
	}
	if q.ClientName != "" {
		pdf.Cell(0, 6, tr("Client: "+q.ClientName))
		pdf.Ln(6)
	}
	if q.ValidUntil != "" {
		pdf.Cell(0, 6, tr("Valid until: "+q.ValidUntil))
		pdf.Ln(6)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(80, 7, "Description")
	pdf.Cell(20, 7, "Qty")
	pdf.Cell(30, 7, "Unit price")
	pdf.Cell(20, 7, "Tax")
	pdf.Cell(30, 7, "Line total")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 10)
	for _, it := range q.Items {
		pdf.Cell(80, 6, tr(trim(it.Description, 45)))
		pdf.Cell(20, 6, number(float64(it.Quantity), 2))
		pdf.Cell(30, 6, money(float64(it.UnitPrice)))
		pdf.Cell(20, 6, number(float64(it.TaxRate)*100, 2)+"%")
		pdf.Cell(30, 6, money(it.LineValue()))
		pdf.Ln(6)
	}

	if len(q.Charges) > 0 {
		pdf.Ln(3)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Additional charges")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		for _, c := range q.Charges {
			pdf.Cell(150, 6, tr(string(c.Type)))
			pdf.Cell(30, 6, money(float64(c.Amount)))
			pdf.Ln(6)
		}
	}

	pdf.Ln(4)
	writeTotals(pdf, q.Totals, doc.Currency)

	if q.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 5, tr(q.Notes), "", "L", false)
	}

	generatedAt := doc.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 8)
	pdf.Cell(0, 5, "Generated "+generatedAt.Format(time.RFC3339))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTotals(pdf *gofpdf.Fpdf, t pricing.Totals, currency string) {
	rows := []struct {
		label string
		value float64
	}{
		{"Subtotal", t.Subtotal},
		{"Tax", t.Tax},
		{"Charges", t.Charges},
		{"Discount", -t.Discount},
	}
	pdf.SetFont("Helvetica", "", 10)
	for _, r := range rows {
		pdf.Cell(150, 6, r.label)
		pdf.Cell(30, 6, money(r.value))
		pdf.Ln(6)
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(150, 7, "Total")
	pdf.Cell(30, 7, money(t.Total)+" "+currency)
	pdf.Ln(7)
}

// money rounds a currency amount for display.
func money(v float64) string {
	return number(v, 2)
}

func number(v float64, places int32) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func trim(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
