package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// An SGML opening tag alone on its line with its closing bracket missing.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Common card-network prefixes banks put in front of the merchant.
var descriptionPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// OFX reads OFX/QFX statement files.
type OFX struct {
	logger *slog.Logger
}

// NewOFX creates an OFX reader.
func NewOFX(logger *slog.Logger) *OFX {
	return &OFX{logger: common.ComponentLogger(logger, "ofx")}
}

// Parse returns one statement per bank or credit card account in the file.
func (o *OFX) Parse(ctx context.Context, r io.Reader) ([]Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var statements []Statement
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			statements = append(statements, o.statement(string(stmt.BankAcctFrom.AcctID), stmt.BankTranList))
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			statements = append(statements, o.statement(string(stmt.CCAcctFrom.AcctID), stmt.BankTranList))
		}
	}

	total := 0
	for _, s := range statements {
		total += len(s.Candidates)
	}
	o.logger.Info("parsed OFX file", "statements", len(statements), "transactions", total)
	return statements, nil
}

func (o *OFX) statement(accountID string, list *ofxgo.TransactionList) Statement {
	stmt := Statement{AccountID: accountID, Candidates: []model.Candidate{}}
	if list == nil {
		return stmt
	}
	for i, txn := range list.Transactions {
		stmt.Candidates = append(stmt.Candidates, ofxCandidate(txn, i))
	}
	return stmt
}

// ofxCandidate keeps the bank's sign: OFX amounts are negative for debits.
func ofxCandidate(txn ofxgo.Transaction, ordinal int) model.Candidate {
	c := model.Candidate{
		Date:        txn.DtPosted.Time.Format("2006-01-02"),
		Description: ofxDescription(txn),
		Amount:      txn.TrnAmt.Rat.FloatString(2),
		Ordinal:     ordinal,
		Confidence:  structuredConfidence,
	}

	// OFX has no categories; a few transaction types imply one.
	switch txn.TrnType.String() {
	case "INT":
		c.Category = "Interest"
	case "FEE", "SRVCHG":
		c.Category = "Bank Fees"
	case "ATM":
		c.Category = "Cash & ATM"
	}
	return c
}

// ofxDescription prefers PAYEE, then NAME, then MEMO when NAME is generic, and strips
// card-network prefixes and a leading MM/DD.
func ofxDescription(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return strings.TrimSpace(string(txn.Payee.Name))
	}

	name := string(txn.Name)
	if txn.Memo != "" && isGenericDescription(name) {
		name = string(txn.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE", "":
		return true
	}
	return false
}

// preprocessOFX fixes formatting problems that real bank exports have and ofxgo rejects.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}
