// Package reporting renders diagnosis reports as PDF and exports a patient's
// records as an XLSX workbook.
package reporting

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/medpredict/clinic/internal/domain/disease"
)

// ContentTypePDF and ContentTypeXLSX are the media types of the rendered
// documents.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// documentDate is stamped into every PDF so equal input yields equal bytes.
var documentDate = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ReportInput is everything shown on a diagnosis report.
type ReportInput struct {
	PatientName    string
	Disease        disease.Disease
	Diagnosis      string
	Recommendation string
}

func (in ReportInput) validate() error {
	if in.PatientName == "" {
		return fmt.Errorf("patient name is required")
	}
	if !in.Disease.Valid() {
		return fmt.Errorf("unknown disease %q", in.Disease)
	}
	return nil
}

// FileName is the download and cache name of a patient's report.
func FileName(patientName string) string {
	return patientName + "_report.pdf"
}

// Generate renders the report as an A4 PDF.
func Generate(in ReportInput) ([]byte, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(documentDate)
	pdf.SetTitle("Patient Diagnosis Report", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Patient Diagnosis Report", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 12)
	for _, line := range []string{
		"Name: " + in.PatientName,
		"Disease: " + in.Disease.String(),
		"Diagnosis: " + in.Diagnosis,
	} {
		pdf.CellFormat(0, 10, tr(line), "", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, tr("Doctor's Recommendations:"), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 10, tr(in.Recommendation), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
