package reports

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/compliance"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// UnsupportedFormatError reports an export format the generator cannot
// produce.
type UnsupportedFormatError struct {
	Format Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported report format: %s", e.Format)
}

// Export is a rendered report ready to hand to a download handler.
type Export struct {
	Format      Format    `json:"format"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	Data        []byte    `json:"-"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator renders audit and compliance reports into downloadable
// formats.
type Generator struct {
	now func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// WithClock overrides the time source (useful for tests).
func (g *Generator) WithClock(fn func() time.Time) *Generator {
	if fn != nil {
		g.now = fn
	}
	return g
}

// ExportSecurityReport renders a security activity report.
func (g *Generator) ExportSecurityReport(report *audit.SecurityReport, format Format) (*Export, error) {
	var data []byte
	var err error

	switch format {
	case FormatCSV:
		data, err = g.securityToCSV(report)
	case FormatJSON:
		data, err = json.MarshalIndent(report, "", "  ")
	case FormatPDF:
		data, err = g.securityToPDF(report)
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
	if err != nil {
		return nil, err
	}

	return g.export("security", format, data), nil
}

// ExportComplianceReports renders the per-framework compliance scores
// plus the latest risk assessment.
func (g *Generator) ExportComplianceReports(reports []*compliance.Report, assessment *compliance.RiskAssessment, format Format) (*Export, error) {
	var data []byte
	var err error

	switch format {
	case FormatCSV:
		data, err = g.complianceToCSV(reports, assessment)
	case FormatJSON:
		data, err = json.MarshalIndent(map[string]interface{}{
			"reports":         reports,
			"risk_assessment": assessment,
		}, "", "  ")
	case FormatPDF:
		data, err = g.complianceToPDF(reports, assessment)
	default:
		return nil, &UnsupportedFormatError{Format: format}
	}
	if err != nil {
		return nil, err
	}

	return g.export("compliance", format, data), nil
}

func (g *Generator) export(kind string, format Format, data []byte) *Export {
	now := g.now()
	mimeTypes := map[Format]string{
		FormatCSV:  "text/csv",
		FormatJSON: "application/json",
		FormatPDF:  "application/pdf",
	}
	return &Export{
		Format:      format,
		Filename:    fmt.Sprintf("%s_%s.%s", kind, now.Format("20060102_150405"), format),
		MimeType:    mimeTypes[format],
		Data:        data,
		GeneratedAt: now,
	}
}

func (g *Generator) securityToCSV(report *audit.SecurityReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"Security Activity Report"})
	_ = w.Write([]string{"Window", report.Window.String()})
	_ = w.Write([]string{"Generated", report.GeneratedAt.Format(time.RFC3339)})
	_ = w.Write([]string{""})

	_ = w.Write([]string{"Metric", "Value"})
	_ = w.Write([]string{"Total Events", fmt.Sprintf("%d", report.TotalEvents)})
	_ = w.Write([]string{"Unique Actors", fmt.Sprintf("%d", report.UniqueActors)})
	_ = w.Write([]string{"Unique Origins", fmt.Sprintf("%d", report.UniqueOrigins)})
	_ = w.Write([]string{"Failed Logins", fmt.Sprintf("%d", report.FailedLogins)})
	_ = w.Write([]string{""})

	_ = w.Write([]string{"Risk Level", "Count"})
	for risk, count := range report.RiskDistribution {
		_ = w.Write([]string{string(risk), fmt.Sprintf("%d", count)})
	}
	_ = w.Write([]string{""})

	_ = w.Write([]string{"Event Type", "Count"})
	for _, entry := range report.TopEventTypes {
		_ = w.Write([]string{string(entry.Type), fmt.Sprintf("%d", entry.Count)})
	}
	_ = w.Write([]string{""})

	_ = w.Write([]string{"Recommendations"})
	for _, rec := range report.Recommendations {
		_ = w.Write([]string{rec})
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func (g *Generator) securityToPDF(report *audit.SecurityReport) ([]byte, error) {
	pdf := NewPDFReport("Security Activity Report", g.now())

	pdf.AddSection("Summary")
	pdf.AddParagraph(fmt.Sprintf("Window: %s ending %s",
		report.Window, report.GeneratedAt.Format(time.RFC1123)))
	pdf.AddSummaryTable(map[string]int{
		"Total Events":   report.TotalEvents,
		"Unique Actors":  report.UniqueActors,
		"Unique Origins": report.UniqueOrigins,
		"Failed Logins":  report.FailedLogins,
	})

	pdf.AddSection("Events by Risk")
	riskCounts := make(map[string]int, len(report.RiskDistribution))
	for risk, count := range report.RiskDistribution {
		riskCounts[string(risk)] = count
	}
	pdf.AddChart("", riskCounts)

	pdf.AddSection("Top Event Types")
	rows := make([][]string, len(report.TopEventTypes))
	for i, entry := range report.TopEventTypes {
		rows[i] = []string{string(entry.Type), fmt.Sprintf("%d", entry.Count)}
	}
	pdf.AddTable([]string{"Event Type", "Count"}, rows)

	pdf.AddSection("Recommendations")
	for _, rec := range report.Recommendations {
		pdf.AddParagraph("- " + rec)
	}

	return pdf.Output()
}

func (g *Generator) complianceToCSV(reports []*compliance.Report, assessment *compliance.RiskAssessment) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write([]string{"Compliance Report"})
	_ = w.Write([]string{"Generated", g.now().Format(time.RFC3339)})
	_ = w.Write([]string{""})
	_ = w.Write([]string{"Framework", "Score", "Status", "Passed", "Failed", "Errored", "Sample Size"})

	for _, report := range reports {
		_ = w.Write([]string{
			string(report.Framework),
			fmt.Sprintf("%.1f", report.Score),
			string(report.Status),
			fmt.Sprintf("%d", report.Passed),
			fmt.Sprintf("%d", report.Failed),
			fmt.Sprintf("%d", report.Errored),
			fmt.Sprintf("%d", report.SampleSize),
		})
	}

	if assessment != nil {
		_ = w.Write([]string{""})
		_ = w.Write([]string{"Framework Risk", "Score", "Level", "Failures"})
		for _, risk := range assessment.Frameworks {
			_ = w.Write([]string{
				string(risk.Framework),
				fmt.Sprintf("%.1f", risk.Score),
				string(risk.Level),
				fmt.Sprintf("%d", risk.Failures),
			})
		}
		_ = w.Write([]string{"Overall Risk", "", string(assessment.Overall), ""})
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func (g *Generator) complianceToPDF(reports []*compliance.Report, assessment *compliance.RiskAssessment) ([]byte, error) {
	pdf := NewPDFReport("Compliance Report", g.now())

	pdf.AddSection("Framework Scores")
	for _, report := range reports {
		pdf.AddScoreBar(string(report.Framework), report.Score)
	}

	pdf.AddSection("Details")
	rows := make([][]string, len(reports))
	for i, report := range reports {
		rows[i] = []string{
			string(report.Framework),
			fmt.Sprintf("%.1f", report.Score),
			string(report.Status),
			fmt.Sprintf("%d/%d", report.Passed, report.SampleSize),
		}
	}
	pdf.AddTable([]string{"Framework", "Score", "Status", "Passed"}, rows)

	for _, report := range reports {
		if len(report.Recommendations) == 0 {
			continue
		}
		pdf.AddSection(fmt.Sprintf("%s Recommendations", report.Framework))
		for _, rec := range report.Recommendations {
			pdf.AddParagraph("- " + rec)
		}
	}

	if assessment != nil {
		pdf.AddSection("Risk Assessment")
		riskRows := make([][]string, len(assessment.Frameworks))
		for i, risk := range assessment.Frameworks {
			riskRows[i] = []string{
				string(risk.Framework),
				fmt.Sprintf("%.1f", risk.Score),
				string(risk.Level),
				fmt.Sprintf("%d", risk.Failures),
			}
		}
		pdf.AddTable([]string{"Framework", "Risk Score", "Level", "Failures"}, riskRows)
		pdf.AddParagraph(fmt.Sprintf("Overall risk: %s", assessment.Overall))
	}

	return pdf.Output()
}
