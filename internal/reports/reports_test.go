package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/financeanalyst/securecore/internal/audit"
	"github.com/financeanalyst/securecore/internal/compliance"
	"github.com/financeanalyst/securecore/internal/models"
)

var reportTime = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func testGenerator() *Generator {
	return NewGenerator().WithClock(func() time.Time { return reportTime })
}

func sampleSecurityReport() *audit.SecurityReport {
	return &audit.SecurityReport{
		Window:      24 * time.Hour,
		GeneratedAt: reportTime,
		TotalEvents: 42,
		RiskDistribution: map[string]int{
			string(models.RiskLow):      30,
			string(models.RiskMedium):   8,
			string(models.RiskHigh):     3,
			string(models.RiskCritical): 1,
		},
		TopEventTypes: []audit.EventCount{
			{Type: models.EventUserLogin, Count: 20},
			{Type: models.EventDataAccessed, Count: 15},
		},
		UniqueActors:    7,
		UniqueOrigins:   3,
		FailedLogins:    2,
		Recommendations: []string{"Maintain current monitoring posture"},
	}
}

func sampleComplianceReports() ([]*compliance.Report, *compliance.RiskAssessment) {
	reports := []*compliance.Report{
		{Framework: models.FrameworkGDPR, Score: 100, Status: models.StatusCompliant, Passed: 4, SampleSize: 4, GeneratedAt: reportTime},
		{
			Framework: models.FrameworkPCI, Score: 80, Status: models.StatusConditional,
			Passed: 4, Failed: 1, SampleSize: 5,
			Recommendations: []string{"Require MFA enrollment for all active users"},
			GeneratedAt:     reportTime,
		},
	}
	assessment := &compliance.RiskAssessment{
		Frameworks: []compliance.FrameworkRisk{
			{Framework: models.FrameworkGDPR, Score: 0, Level: models.RiskLow},
			{Framework: models.FrameworkPCI, Score: 30, Level: models.RiskMedium, Failures: 1},
		},
		Overall:     models.RiskMedium,
		GeneratedAt: reportTime,
	}
	return reports, assessment
}

func TestExportSecurityReportCSV(t *testing.T) {
	export, err := testGenerator().ExportSecurityReport(sampleSecurityReport(), FormatCSV)
	if err != nil {
		t.Fatalf("ExportSecurityReport failed: %v", err)
	}

	if export.Filename != "security_20250310_143000.csv" {
		t.Errorf("Filename = %q", export.Filename)
	}
	if export.MimeType != "text/csv" {
		t.Errorf("MimeType = %q", export.MimeType)
	}

	body := string(export.Data)
	for _, want := range []string{"Total Events,42", "Failed Logins,2", "user_login,20", "Maintain current monitoring posture"} {
		if !strings.Contains(body, want) {
			t.Errorf("CSV missing %q", want)
		}
	}
}

func TestExportSecurityReportJSON(t *testing.T) {
	export, err := testGenerator().ExportSecurityReport(sampleSecurityReport(), FormatJSON)
	if err != nil {
		t.Fatalf("ExportSecurityReport failed: %v", err)
	}

	var decoded audit.SecurityReport
	if err := json.Unmarshal(export.Data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.TotalEvents != 42 || decoded.UniqueActors != 7 {
		t.Errorf("decoded = %+v, want original counts", decoded)
	}
}

func TestExportSecurityReportPDF(t *testing.T) {
	export, err := testGenerator().ExportSecurityReport(sampleSecurityReport(), FormatPDF)
	if err != nil {
		t.Fatalf("ExportSecurityReport failed: %v", err)
	}

	if !bytes.HasPrefix(export.Data, []byte("%PDF")) {
		t.Error("export does not start with a PDF header")
	}
	if export.MimeType != "application/pdf" {
		t.Errorf("MimeType = %q", export.MimeType)
	}
}

func TestExportComplianceReports(t *testing.T) {
	reports, assessment := sampleComplianceReports()

	csvExport, err := testGenerator().ExportComplianceReports(reports, assessment, FormatCSV)
	if err != nil {
		t.Fatalf("CSV export failed: %v", err)
	}
	body := string(csvExport.Data)
	for _, want := range []string{"gdpr,100.0,compliant", "pci_dss,80.0,conditional", "Overall Risk,,medium"} {
		if !strings.Contains(body, want) {
			t.Errorf("CSV missing %q", want)
		}
	}

	pdfExport, err := testGenerator().ExportComplianceReports(reports, assessment, FormatPDF)
	if err != nil {
		t.Fatalf("PDF export failed: %v", err)
	}
	if !bytes.HasPrefix(pdfExport.Data, []byte("%PDF")) {
		t.Error("export does not start with a PDF header")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := testGenerator().ExportSecurityReport(sampleSecurityReport(), Format("xlsx"))
	if err == nil {
		t.Fatal("unsupported format accepted")
	}

	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %T, want *UnsupportedFormatError", err)
	}
	if unsupported.Format != "xlsx" {
		t.Errorf("Format = %q, want xlsx", unsupported.Format)
	}
}
