package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/posrecon/internal/auth"
	"github.com/mmynk/posrecon/internal/export"
)

const dataset = `{
  "statements": [
    {"id": "s1", "transaction_date": "2024-01-05", "description": "TRF QRIS", "credit_amount": "100000"},
    {"id": "s2", "transaction_date": "2024-01-09", "description": "TRF EDC", "credit_amount": "42000"}
  ],
  "aggregates": [
    {"id": "a1", "transaction_date": "2024-01-05", "payment_method": "QRIS", "gross_amount": "100000", "nett_amount": "100000"}
  ]
}`

// setupEnv points the CLI at a fresh ledger and returns the dataset path.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "recon.db"))
	t.Setenv("JOURNAL_PATH", filepath.Join(dir, "journal.db"))
	t.Setenv("MATCHING_CONFIG", "")
	t.Setenv("JWT_SECRET", "cli-secret")

	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o600))
	return path
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--company", "c1"))
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestWorkflow(t *testing.T) {
	data := setupEnv(t)

	out := run(t, "load", data)
	assert.Contains(t, out, "Loaded 2 statements and 1 aggregates")

	out = run(t, "preview", "--from", "2024-01-01", "--to", "2024-01-31")
	assert.Contains(t, out, "EXACT_AMOUNT_DATE")
	assert.Contains(t, out, "1 of 2 statements matched, 1 unmatched")
	assert.NotContains(t, out, "Confirmed")

	out = run(t, "preview", "--from", "2024-01-01", "--to", "2024-01-31", "--confirm")
	assert.Contains(t, out, "Confirmed 1 matches")

	out = run(t, "summary", "--from", "2024-01-01", "--to", "2024-01-31")
	assert.Contains(t, out, "Auto matched:      1")
	assert.Contains(t, out, "Unreconciled:      1")
	assert.Contains(t, out, "Reconciled:        50.00%")

	out = run(t, "discrepancies", "--from", "2024-01-01", "--to", "2024-01-31")
	assert.Contains(t, out, "NO_MATCH")
	assert.Contains(t, out, "s2")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "1 discrepancies"), out)

	xlsx := filepath.Join(t.TempDir(), "report.xlsx")
	out = run(t, "discrepancies", "--from", "2024-01-01", "--to", "2024-01-31", "--xlsx", xlsx)
	assert.Contains(t, out, "Wrote 1 discrepancies")
	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.DiscrepanciesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "s2", rows[1][0])
}

func TestPreview_RequiresRange(t *testing.T) {
	setupEnv(t)
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"preview", "--from", "2024-01-31", "--to", "2024-01-01"})
	assert.Error(t, root.Execute())

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"summary"})
	assert.Error(t, root.Execute(), "--from and --to are required")
}

func TestToken(t *testing.T) {
	setupEnv(t)

	out := run(t, "token", "--operator", "alice", "--branch", "b9", "--ttl", "1h")
	claims, err := auth.NewJWTManager("cli-secret", time.Hour).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "c1", claims.CompanyID)
	assert.Equal(t, "b9", claims.BranchID)

	t.Setenv("JWT_SECRET", "")
	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	assert.Error(t, root.Execute())
}
