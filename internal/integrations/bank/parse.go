package bank

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/bnpl-service/internal/models"
)

// ErrInvalidData is returned when a bank response cannot be turned into
// transactions
var ErrInvalidData = errors.New("invalid bank data")

// nsfReturnReason is the ISO 20022 return reason for insufficient funds
const nsfReturnReason = "AM04"

var hundred = decimal.NewFromInt(100)

type transactionsResponse struct {
	Transactions []wireTransaction `json:"transactions"`
}

type wireTransaction struct {
	Date         string       `json:"date"`
	AmountCents  *json.Number `json:"amount_cents"`
	Amount       *json.Number `json:"amount"`
	BalanceCents *json.Number `json:"balance_cents"`
	Balance      *json.Number `json:"balance"`
	Type         string       `json:"type"`
	NSF          bool         `json:"nsf"`
	Description  string       `json:"description"`
}

// ParseTransactions decodes the JSON body of the bank transactions endpoint.
// Amounts are taken from amount_cents, or from amount in currency units.
// The sign follows type when it is given, otherwise the amount's own sign.
func ParseTransactions(data []byte) ([]models.BankTransaction, error) {
	var resp transactionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode transactions: %v", ErrInvalidData, err)
	}

	txns := make([]models.BankTransaction, 0, len(resp.Transactions))
	for i, w := range resp.Transactions {
		t, err := w.toModel()
		if err != nil {
			return nil, fmt.Errorf("%w: transactions[%d]: %v", ErrInvalidData, i, err)
		}
		txns = append(txns, t)
	}
	markImplicitNSF(txns)
	return txns, nil
}

func (w wireTransaction) toModel() (models.BankTransaction, error) {
	date, err := parseDate(w.Date)
	if err != nil {
		return models.BankTransaction{}, err
	}

	amount, err := pickCents(w.AmountCents, w.Amount)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("amount: %w", err)
	}
	if amount == nil {
		return models.BankTransaction{}, errors.New("amount is required")
	}
	balance, err := pickCents(w.BalanceCents, w.Balance)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("balance: %w", err)
	}

	t := models.BankTransaction{
		Date:         date,
		BalanceCents: balance,
		NSF:          w.NSF,
		Description:  w.Description,
	}
	t.Type, t.AmountCents = signed(strings.ToLower(w.Type), *amount)
	return t, nil
}

func signed(typ string, cents int64) (models.TransactionType, int64) {
	abs := cents
	if abs < 0 {
		abs = -abs
	}
	switch models.TransactionType(typ) {
	case models.TransactionCredit:
		return models.TransactionCredit, abs
	case models.TransactionDebit:
		return models.TransactionDebit, -abs
	}
	if cents > 0 {
		return models.TransactionCredit, cents
	}
	return models.TransactionDebit, cents
}

func pickCents(cents, units *json.Number) (*int64, error) {
	var v decimal.Decimal
	switch {
	case cents != nil:
		d, err := decimal.NewFromString(cents.String())
		if err != nil {
			return nil, err
		}
		v = d
	case units != nil:
		d, err := decimal.NewFromString(units.String())
		if err != nil {
			return nil, err
		}
		v = d.Mul(hundred)
	default:
		return nil, nil
	}
	n := v.Round(0).IntPart()
	return &n, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	if strings.Contains(s, "T") {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", s)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// ParseStatement reads an ISO 20022 camt.053 bank-to-customer statement.
// Pending entries are skipped. When the statement carries an opening booked
// balance (OPBD) the running balance is filled in for each entry in
// document order.
func ParseStatement(data []byte) ([]models.BankTransaction, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: failed to parse XML: %v", ErrInvalidData, err)
	}

	stmts := doc.FindElements("//BkToCstmrStmt/Stmt")
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: no statement found in XML", ErrInvalidData)
	}

	var txns []models.BankTransaction
	for _, stmt := range stmts {
		running, hasBalance, err := openingBalance(stmt)
		if err != nil {
			return nil, err
		}

		for i, ntry := range stmt.FindElements("./Ntry") {
			if status := elementText(ntry, "./Sts/Cd", "./Sts"); status == "PDNG" {
				continue
			}
			t, err := parseEntry(ntry)
			if err != nil {
				return nil, fmt.Errorf("%w: Ntry[%d]: %v", ErrInvalidData, i, err)
			}
			if hasBalance {
				running += t.AmountCents
				bal := running
				t.BalanceCents = &bal
			}
			txns = append(txns, t)
		}
	}
	markImplicitNSF(txns)
	return txns, nil
}

// markImplicitNSF flags debits that overdrew the account. Some banks report
// the negative balance but never set an NSF flag or return reason.
func markImplicitNSF(txns []models.BankTransaction) {
	for i := range txns {
		t := &txns[i]
		if t.NSF || t.BalanceCents == nil || t.AmountCents >= 0 {
			continue
		}
		after := *t.BalanceCents
		if after < 0 && after-t.AmountCents >= 0 {
			t.NSF = true
		}
	}
}

func parseEntry(ntry *etree.Element) (models.BankTransaction, error) {
	amt := ntry.FindElement("./Amt")
	if amt == nil {
		return models.BankTransaction{}, errors.New("amount element not found")
	}
	cents, err := toCents(amt.Text())
	if err != nil {
		return models.BankTransaction{}, err
	}

	var typ models.TransactionType
	switch ind := elementText(ntry, "./CdtDbtInd"); ind {
	case "CRDT":
		typ = models.TransactionCredit
	case "DBIT":
		typ = models.TransactionDebit
		cents = -cents
	default:
		return models.BankTransaction{}, fmt.Errorf("unknown credit/debit indicator %q", ind)
	}

	var date time.Time
	if d := elementText(ntry, "./BookgDt/Dt", "./ValDt/Dt"); d != "" {
		date, err = parseDate(d)
	} else {
		date, err = parseDate(elementText(ntry, "./BookgDt/DtTm", "./ValDt/DtTm"))
	}
	if err != nil {
		return models.BankTransaction{}, err
	}

	nsf := false
	for _, cd := range ntry.FindElements(".//RtrInf/Rsn/Cd") {
		if strings.TrimSpace(cd.Text()) == nsfReturnReason {
			nsf = true
		}
	}

	return models.BankTransaction{
		Date:        date,
		AmountCents: cents,
		Type:        typ,
		NSF:         nsf,
		Description: elementText(ntry, "./AddtlNtryInf", ".//RmtInf/Ustrd"),
	}, nil
}

func openingBalance(stmt *etree.Element) (int64, bool, error) {
	for _, bal := range stmt.FindElements("./Bal") {
		if elementText(bal, "./Tp/CdOrPrtry/Cd") != "OPBD" {
			continue
		}
		amt := bal.FindElement("./Amt")
		if amt == nil {
			return 0, false, fmt.Errorf("%w: opening balance without amount", ErrInvalidData)
		}
		cents, err := toCents(amt.Text())
		if err != nil {
			return 0, false, fmt.Errorf("%w: opening balance: %v", ErrInvalidData, err)
		}
		if elementText(bal, "./CdtDbtInd") == "DBIT" {
			cents = -cents
		}
		return cents, true, nil
	}
	return 0, false, nil
}

func toCents(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q must not be negative", s)
	}
	return d.Mul(hundred).Round(0).IntPart(), nil
}

// elementText returns the trimmed text of the first path that matches
func elementText(e *etree.Element, paths ...string) string {
	for _, p := range paths {
		if el := e.FindElement(p); el != nil {
			return strings.TrimSpace(el.Text())
		}
	}
	return ""
}
