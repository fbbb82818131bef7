package protection

import (
	"testing"

	"github.com/financeanalyst/securecore/internal/models"
)

func TestClassifyData(t *testing.T) {
	tests := []struct {
		name      string
		record    map[string]any
		wantLevel models.Classification
		wantScore int
	}{
		{
			name:      "personal identifiers",
			record:    map[string]any{"email": "a@b.com", "phone": "555-1111"},
			wantLevel: models.ClassificationPersonal,
			wantScore: 100,
		},
		{
			name:      "personal wins over financial",
			record:    map[string]any{"ssn": "078-05-1120", "balance": 1500.0},
			wantLevel: models.ClassificationPersonal,
			wantScore: 100,
		},
		{
			name:      "financial only",
			record:    map[string]any{"account_number": "12345678", "balance": 1500.0},
			wantLevel: models.ClassificationConfidential,
			wantScore: 70,
		},
		{
			name:      "plain business data",
			record:    map[string]any{"report_title": "Q2 review", "notes": "internal"},
			wantLevel: models.ClassificationInternal,
			wantScore: 30,
		},
		{
			name:      "public reference data",
			record:    map[string]any{"ticker": "AAPL", "currency": "USD", "exchange": "NASDAQ"},
			wantLevel: models.ClassificationPublic,
			wantScore: 0,
		},
		{
			name:      "empty record",
			record:    map[string]any{},
			wantLevel: models.ClassificationInternal,
			wantScore: 30,
		},
		{
			name:      "camel case field names",
			record:    map[string]any{"dateOfBirth": "1990-03-14"},
			wantLevel: models.ClassificationPersonal,
			wantScore: 100,
		},
		{
			name:      "prefixed field names",
			record:    map[string]any{"user_email": "a@b.com"},
			wantLevel: models.ClassificationPersonal,
			wantScore: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyData(tt.record)
			if got.Level != tt.wantLevel {
				t.Errorf("Level = %s, want %s", got.Level, tt.wantLevel)
			}
			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", got.Score, tt.wantScore)
			}
		})
	}
}

func TestClassifyDataPolicy(t *testing.T) {
	personal := ClassifyData(map[string]any{"email": "a@b.com"})
	if !personal.Policy.EncryptionRequired {
		t.Error("personal data policy should require encryption")
	}
	if personal.Policy.RetentionDays == 0 {
		t.Error("personal data policy should carry a retention period")
	}

	public := ClassifyData(map[string]any{"ticker": "AAPL"})
	if public.Policy.EncryptionRequired {
		t.Error("public data policy should not require encryption")
	}
}

func TestClassifyDataOrderIndependent(t *testing.T) {
	// Maps iterate in random order; classify the same record many times
	// and require identical output each round.
	record := map[string]any{
		"email":          "a@b.com",
		"account_number": "12345678",
		"ticker":         "AAPL",
		"notes":          "x",
		"phone":          "555-1111",
	}
	first := ClassifyData(record)
	for i := 0; i < 50; i++ {
		got := ClassifyData(record)
		if got.Level != first.Level || got.Score != first.Score {
			t.Fatalf("run %d: got %s/%d, want %s/%d", i, got.Level, got.Score, first.Level, first.Score)
		}
		if len(got.MatchedFields) != len(first.MatchedFields) {
			t.Fatalf("run %d: matched fields changed", i)
		}
		for j := range got.MatchedFields {
			if got.MatchedFields[j] != first.MatchedFields[j] {
				t.Fatalf("run %d: matched field order changed", i)
			}
		}
	}
}
