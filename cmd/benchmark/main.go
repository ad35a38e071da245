// Benchmark replays PaySim fraud data against a running Kestrel.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/paysim.csv -url http://localhost:8080
//
// Each row becomes a POST /fraud/check; a raised alert counts as a fraud
// prediction and is compared with the isFraud label.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// PaySimTransaction is one labelled row of the PaySim dataset.
type PaySimTransaction struct {
	Step     int
	Type     string
	Amount   decimal.Decimal
	NameOrig string
	NameDest string
	IsFraud  bool
}

// paySimTypes maps PaySim transaction types onto Kestrel's.
var paySimTypes = map[string]domain.TransactionType{
	"CASH_IN":  domain.TxDeposit,
	"CASH_OUT": domain.TxWithdrawal,
	"DEBIT":    domain.TxWithdrawal,
	"PAYMENT":  domain.TxPayment,
	"TRANSFER": domain.TxTransfer,
}

// Confusion tracks benchmark results.
type Confusion struct {
	TruePositives  atomic.Int64
	FalsePositives atomic.Int64
	TrueNegatives  atomic.Int64
	FalseNegatives atomic.Int64

	Errors      atomic.Int64
	Processed   atomic.Int64
	LatencyMsec atomic.Int64
}

func (c *Confusion) add(predicted, actual bool) {
	switch {
	case predicted && actual:
		c.TruePositives.Add(1)
	case predicted:
		c.FalsePositives.Add(1)
	case actual:
		c.FalseNegatives.Add(1)
	default:
		c.TrueNegatives.Add(1)
	}
}

// Precision is the share of alerts that were fraud.
func (c *Confusion) Precision() float64 {
	return ratio(c.TruePositives.Load(), c.TruePositives.Load()+c.FalsePositives.Load())
}

// Recall is the share of fraud that raised an alert.
func (c *Confusion) Recall() float64 {
	return ratio(c.TruePositives.Load(), c.TruePositives.Load()+c.FalseNegatives.Load())
}

// F1 is the harmonic mean of precision and recall.
func (c *Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func main() {
	csvPath := flag.String("csv", "", "Path to PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only replay fraud transactions")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/paysim.csv [-url http://localhost:8080]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		os.Exit(1)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	transactions, err := readPaySim(file, *limit, *fraudOnly)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions from %s\n", len(transactions), *csvPath)

	start := time.Now()
	result := run(transactions, *baseURL, *tenantID, *workers, *verbose)
	printResults(result, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readPaySim parses PaySim rows by header name, skipping malformed rows.
func readPaySim(r io.Reader, limit int, fraudOnly bool) ([]PaySimTransaction, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(name)] = i
	}
	for _, required := range []string{"step", "type", "amount", "nameorig", "namedest", "isfraud"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var transactions []PaySimTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		isFraud := record[col["isfraud"]] == "1"
		if fraudOnly && !isFraud {
			continue
		}

		amount, err := decimal.NewFromString(record[col["amount"]])
		if err != nil {
			continue
		}
		step, _ := strconv.Atoi(record[col["step"]])

		transactions = append(transactions, PaySimTransaction{
			Step:     step,
			Type:     record[col["type"]],
			Amount:   amount,
			NameOrig: record[col["nameorig"]],
			NameDest: record[col["namedest"]],
			IsFraud:  isFraud,
		})

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}
	return transactions, nil
}

// toFraudCheck builds the request body for one PaySim row.
func toFraudCheck(tx PaySimTransaction) domain.FraudCheckRequest {
	txType, ok := paySimTypes[tx.Type]
	if !ok {
		txType = domain.TxTransfer
	}
	amount := tx.Amount
	return domain.FraudCheckRequest{
		UserID: tx.NameOrig,
		Signal: domain.TransactionSignal{
			Amount: &amount,
			Type:   txType,
		},
	}
}

func run(transactions []PaySimTransaction, baseURL, tenantID string, workers int, verbose bool) *Confusion {
	result := &Confusion{}
	work := make(chan PaySimTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				check, err := fraudCheck(client, baseURL, tenantID, tx)
				result.LatencyMsec.Add(time.Since(start).Milliseconds())
				result.Processed.Add(1)

				if err != nil {
					result.Errors.Add(1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.NameOrig, err)
					}
					continue
				}
				result.add(check.Alert, tx.IsFraud)

				if verbose {
					fmt.Printf("%-12s | %-8s | %14s | fraud=%-5v | alert=%-5v score=%d\n",
						tx.NameOrig, tx.Type, tx.Amount.StringFixed(2), tx.IsFraud, check.Alert, check.Fraud.RiskScore)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)
	wg.Wait()

	return result
}

func fraudCheck(client *http.Client, baseURL, tenantID string, tx PaySimTransaction) (*domain.FraudCheckResult, error) {
	body, err := json.Marshal(toFraudCheck(tx))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/fraud/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.FraudCheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Fraud == nil {
		return nil, fmt.Errorf("response without fraud assessment")
	}
	return &result, nil
}

func printResults(c *Confusion, duration time.Duration) {
	fmt.Println()
	fmt.Println("CONFUSION MATRIX")
	fmt.Println("                 alert     no alert")
	fmt.Printf("   fraud     %9d %12d\n", c.TruePositives.Load(), c.FalseNegatives.Load())
	fmt.Printf("   legit     %9d %12d\n", c.FalsePositives.Load(), c.TrueNegatives.Load())

	fmt.Println()
	fmt.Printf("   Precision:  %.4f\n", c.Precision())
	fmt.Printf("   Recall:     %.4f\n", c.Recall())
	fmt.Printf("   F1-Score:   %.4f\n", c.F1())
	fmt.Printf("   Errors:     %d\n", c.Errors.Load())

	fmt.Println()
	fmt.Printf("   Duration:   %v\n", duration.Round(time.Millisecond))
	if n := c.Processed.Load(); n > 0 {
		fmt.Printf("   Avg latency: %.2f ms\n", float64(c.LatencyMsec.Load())/float64(n))
		fmt.Printf("   Throughput:  %.2f checks/sec\n", float64(n)/duration.Seconds())
	}
	fmt.Println()
}
