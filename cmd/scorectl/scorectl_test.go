package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeHistory(t *testing.T) string {
	t.Helper()
	type txn struct {
		Date        string `json:"date"`
		AmountCents int64  `json:"amount_cents"`
		Type        string `json:"type"`
	}
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	var txns []txn
	for day := 0; day < 90; day++ {
		date := start.AddDate(0, 0, day).Format("2006-01-02")
		if day%14 == 0 {
			txns = append(txns, txn{date, 200000, "credit"})
		}
		if day%2 == 0 {
			txns = append(txns, txn{date, 5000, "debit"})
		}
	}
	data, err := json.Marshal(map[string]any{"transactions": txns})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestScore_JSONHistory(t *testing.T) {
	out, err := run(t, "score", writeHistory(t), "--amount", "40000")
	require.NoError(t, err)
	assert.Contains(t, out, "Decision: APPROVED ($600 limit)")
	assert.Contains(t, out, "Risk Score: 100/100")
	assert.Contains(t, out, "Amount granted: 40000 cents of 40000 requested")
}

func TestScore_JSONOutput(t *testing.T) {
	out, err := run(t, "score", writeHistory(t), "--amount", "10000", "--json")
	require.NoError(t, err)

	var d map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, true, d["Approved"])
	assert.Equal(t, 10000.0, d["AmountGrantedCents"])
}

func TestScore_CamtStatement(t *testing.T) {
	statement := `<Document><BkToCstmrStmt><Stmt>
		<Ntry><Amt>500.00</Amt><CdtDbtInd>CRDT</CdtDbtInd><BookgDt><Dt>2024-03-01</Dt></BookgDt></Ntry>
		<Ntry><Amt>20.00</Amt><CdtDbtInd>DBIT</CdtDbtInd><BookgDt><Dt>2024-03-04</Dt></BookgDt></Ntry>
	</Stmt></BkToCstmrStmt></Document>`
	path := filepath.Join(t.TempDir(), "statement.txt")
	require.NoError(t, os.WriteFile(path, []byte(statement), 0o600))

	out, err := run(t, "score", path, "--amount", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: thin_file_clean")
}

func TestScore_Errors(t *testing.T) {
	_, err := run(t, "score", filepath.Join(t.TempDir(), "missing.json"), "--amount", "100")
	assert.Error(t, err)

	_, err = run(t, "score", writeHistory(t))
	assert.Error(t, err, "--amount is required")

	_, err = run(t, "score", writeHistory(t), "--amount", "-1")
	assert.Error(t, err)
}

func TestConfigDefaultsRoundTrip(t *testing.T) {
	out, err := run(t, "config", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "approval_threshold:")

	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))

	out, err = run(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "scoring config OK")
}

func TestConfigValidate_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: {adb: 0.9, ratio: 0.9, nsf: 0.9}\n"), 0o600))

	_, err := run(t, "config", "validate", "--config", path)
	assert.Error(t, err)
}
