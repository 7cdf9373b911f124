package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Dan9191/bnpl-service/internal/config"
	"github.com/Dan9191/bnpl-service/internal/integrations/bank"
	"github.com/Dan9191/bnpl-service/internal/models"
	"github.com/Dan9191/bnpl-service/internal/scoring"
)

func newScoreCmd() *cobra.Command {
	var (
		amount int64
		asJSON bool
		userID string
	)
	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Score a transaction history file",
		Long: `Score a bank transaction history and print the decision.

FILE is either the bank API's JSON format ({"transactions":[...]}) or an
ISO 20022 camt.053 statement. XML is detected by a .xml extension or a
leading '<'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txns, err := readHistory(args[0])
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("config")
			engine, err := loadEngine(path)
			if err != nil {
				return err
			}

			scoringTxns := make([]scoring.Transaction, len(txns))
			for i, t := range txns {
				scoringTxns[i] = t.ToScoring()
			}
			d, err := engine.Decide(scoring.Request{
				UserID:               userID,
				AmountRequestedCents: amount,
				Transactions:         scoringTxns,
				OpeningBalanceCents:  models.OpeningBalanceCents(txns),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			fmt.Fprint(out, scoring.Explain(d))
			if d.Approved {
				fmt.Fprintf(out, "\nAmount granted: %d cents of %d requested\n", d.AmountGrantedCents, amount)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "Requested amount in cents")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the decision as JSON")
	cmd.Flags().StringVar(&userID, "user", "cli", "User id recorded on the decision")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func readHistory(path string) ([]models.BankTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".xml") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("<")) {
		return bank.ParseStatement(data)
	}
	return bank.ParseTransactions(data)
}

func loadEngine(path string) (*scoring.Engine, error) {
	cfg, err := config.LoadScoring(path)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(cfg)
}
