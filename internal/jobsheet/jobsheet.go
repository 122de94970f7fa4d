// Package jobsheet renders appointment job sheets as PDF documents sent to
// the customer after a confirmed booking.
package jobsheet

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/gadgetcare/repairbot/internal/models"
	"github.com/gadgetcare/repairbot/internal/util"
)

// Renderer writes job-sheet PDFs into an output directory.
type Renderer struct {
	dir      string
	shopName string
}

// Opts holds configuration options for the Renderer.
type Opts struct {
	// Dir is the output directory. Defaults to the system temp directory.
	Dir string
	// ShopName appears in the sheet header. Defaults to "GadgetCare Repairs".
	ShopName string
}

// NewRenderer creates a Renderer, creating the output directory if needed.
func NewRenderer(opts Opts) (*Renderer, error) {
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "repairbot-jobsheets")
	}
	if opts.ShopName == "" {
		opts.ShopName = "GadgetCare Repairs"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job sheet directory: %w", err)
	}
	return &Renderer{dir: opts.Dir, shopName: opts.ShopName}, nil
}

// RenderJobSheet writes the PDF for one appointment and returns its path.
func (r *Renderer) RenderJobSheet(a models.Appointment) (string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Job Sheet %s", a.ID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, r.shopName)
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, "Repair Job Sheet")
	pdf.Ln(10)

	rows := [][2]string{
		{"Job ID", a.ID},
		{"Customer", a.Name},
		{"WhatsApp", a.CustomerWhatsApp},
		{"Device", fmt.Sprintf("%s %s", a.Brand, a.Model)},
		{"Issue", a.Issue},
		{"Estimate", estimateLine(a)},
		{"Scheduled", fmt.Sprintf("%s at %s", a.Date, a.Time)},
		{"Status", string(a.Status)},
		{"Created", a.CreatedAt.Format("2006-01-02 15:04")},
	}
	pdf.SetFont("Helvetica", "", 12)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(40, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.CellFormat(0, 8, row[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "The estimate above is indicative. The final price is confirmed after inspection. Please bring this sheet (or your booking ID) to the shop.", "", "L", false)

	path := filepath.Join(r.dir, fmt.Sprintf("%s.pdf", safeFileName(a.ID)))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write job sheet %s: %w", path, err)
	}
	return path, nil
}

// estimateLine prefers the fixed quote, then the rough range, then a
// to-be-quoted marker. The rupee sign is outside gofpdf's core font set, so
// the PDF spells out INR.
func estimateLine(a models.Appointment) string {
	if a.Estimate != nil {
		return "INR " + util.FormatINR(*a.Estimate)
	}
	if a.EstimateRange != "" {
		return stripRupee(a.EstimateRange)
	}
	return "To be quoted"
}

func stripRupee(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '₹' {
			out = append(out, []rune("INR ")...)
			continue
		}
		if r == '–' || r == '—' {
			out = append(out, '-')
			continue
		}
		if r > 0xFF {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// safeFileName keeps IDs filesystem-friendly. Store IDs are UUID-based but
// this also covers imported records.
func safeFileName(id string) string {
	if id == "" {
		return "jobsheet-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
