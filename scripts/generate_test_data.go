// Generates synthetic customer and transaction fixtures for exercising
// the classification and masking pipeline. Output goes to
// /tmp/securecore-test-data as CSV and JSON.
//
// Run with: go run scripts/generate_test_data.go
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	firstNames = []string{"John", "Jane", "Michael", "Emily", "David", "Sarah", "Robert", "Lisa", "William", "Jennifer"}
	lastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Wilson", "Taylor"}
	cities     = []string{"New York", "Los Angeles", "Chicago", "Houston", "Phoenix", "Philadelphia", "Dallas", "San Jose"}
	states     = []string{"NY", "CA", "IL", "TX", "AZ", "PA", "FL", "OH"}
	tickers    = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "TSLA", "JPM", "V", "JNJ", "WMT"}
)

type customer struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	SSN       string  `json:"ssn"`
	City      string  `json:"city"`
	State     string  `json:"state"`
	CardPAN   string  `json:"card_pan"`
	IBAN      string  `json:"iban"`
	Balance   float64 `json:"balance"`
	RiskScore int     `json:"risk_score"`
}

type transaction struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Ticker     string    `json:"ticker"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	outputDir := "/tmp/securecore-test-data"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating output dir: %v\n", err)
		os.Exit(1)
	}

	customers := make([]customer, 100)
	for i := range customers {
		customers[i] = randomCustomer(rng, i)
	}

	transactions := make([]transaction, 500)
	for i := range transactions {
		transactions[i] = randomTransaction(rng, i, customers)
	}

	writeJSON(filepath.Join(outputDir, "customers.json"), customers)
	writeCustomersCSV(filepath.Join(outputDir, "customers.csv"), customers)
	writeJSON(filepath.Join(outputDir, "transactions.json"), transactions)

	fmt.Printf("wrote %d customers and %d transactions to %s\n", len(customers), len(transactions), outputDir)
}

func randomCustomer(rng *rand.Rand, i int) customer {
	first := firstNames[rng.Intn(len(firstNames))]
	last := lastNames[rng.Intn(len(lastNames))]
	return customer{
		ID:        fmt.Sprintf("CUST-%05d", i+1),
		Name:      first + " " + last,
		Email:     fmt.Sprintf("%s.%s%d@example.com", first, last, i),
		Phone:     fmt.Sprintf("+1-555-%03d-%04d", rng.Intn(1000), rng.Intn(10000)),
		SSN:       fmt.Sprintf("%03d-%02d-%04d", rng.Intn(900)+100, rng.Intn(100), rng.Intn(10000)),
		City:      cities[rng.Intn(len(cities))],
		State:     states[rng.Intn(len(states))],
		CardPAN:   fmt.Sprintf("4%015d", rng.Int63n(1e15)),
		IBAN:      fmt.Sprintf("DE%02d%018d", rng.Intn(100), rng.Int63n(1e18)),
		Balance:   float64(rng.Intn(50000000)) / 100,
		RiskScore: rng.Intn(100),
	}
}

func randomTransaction(rng *rand.Rand, i int, customers []customer) transaction {
	side := "buy"
	if rng.Intn(2) == 1 {
		side = "sell"
	}
	return transaction{
		ID:         fmt.Sprintf("TXN-%06d", i+1),
		CustomerID: customers[rng.Intn(len(customers))].ID,
		Ticker:     tickers[rng.Intn(len(tickers))],
		Side:       side,
		Quantity:   rng.Intn(1000) + 1,
		Price:      float64(rng.Intn(100000)) / 100,
		ExecutedAt: time.Now().Add(-time.Duration(rng.Intn(720)) * time.Hour),
	}
}

func writeJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
		os.Exit(1)
	}
}

func writeCustomersCSV(path string, customers []customer) {
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", path, err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"id", "name", "email", "phone", "ssn", "city", "state", "card_pan", "iban", "balance"})
	for _, c := range customers {
		_ = w.Write([]string{
			c.ID, c.Name, c.Email, c.Phone, c.SSN, c.City, c.State, c.CardPAN, c.IBAN,
			fmt.Sprintf("%.2f", c.Balance),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s: %v\n", path, err)
		os.Exit(1)
	}
}
