// Package ofx imports bank and credit card statements (OFX/QFX) as
// transactions for scoring.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/Veraticus/phishnet/internal/generator"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// Payment methods recorded for imported transactions.
const (
	PaymentDebitCard  = "Debit Card"
	PaymentCreditCard = "Credit Card"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags on their own line that are missing the closing bracket.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

var namePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// Parser converts OFX statements into transactions owned by one user.
type Parser struct {
	userID    string
	merchants generator.MerchantTable
}

// NewParser creates a parser. Imported transactions belong to userID and
// take their base risk from merchants when the payee matches a known name.
func NewParser(userID string, merchants generator.MerchantTable) *Parser {
	if merchants == nil {
		merchants = generator.DefaultMerchants()
	}
	return &Parser{userID: userID, merchants: merchants}
}

// preprocessOFX fixes common formatting issues in OFX files.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX file and returns its debits and credits as
// pending transactions.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		bankStmts++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			transactions = append(transactions, p.convertTransaction(ofxTx, PaymentDebitCard))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		ccStmts++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			transactions = append(transactions, p.convertTransaction(ofxTx, PaymentCreditCard))
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

// convertTransaction converts an OFX transaction to our model.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, paymentMethod string) model.Transaction {
	merchant := extractMerchantName(ofxTx)
	baseRisk := 0.0
	if known, ok := p.matchMerchant(merchant); ok {
		merchant = known.Name
		baseRisk = known.Weight
	}

	// OFX uses negative amounts for debits; the score only cares about size.
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		slog.Warn("Unreadable OFX amount", "fitid", ofxTx.FiTID, "error", err)
		amount = decimal.Zero
	}

	location := model.UnknownValue
	if ofxTx.Payee != nil && ofxTx.Payee.City != "" {
		location = strings.TrimSpace(string(ofxTx.Payee.City))
	}

	return model.Transaction{
		ID:                "ofx_" + string(ofxTx.FiTID),
		UserID:            p.userID,
		Timestamp:         ofxTx.DtPosted.Time,
		Amount:            amount.Abs(),
		Merchant:          merchant,
		Category:          category(ofxTx),
		PaymentMethod:     paymentMethod,
		Location:          location,
		BaseRiskIndicator: baseRisk,
		Status:            model.StatusPending,
	}.Normalize()
}

// matchMerchant finds a table merchant whose name appears in the
// description, ignoring case and punctuation.
func (p *Parser) matchMerchant(description string) (generator.Merchant, bool) {
	desc := squash(description)
	if desc == "" {
		return generator.Merchant{}, false
	}
	for _, m := range p.merchants {
		if name := squash(m.Name); name != "" && strings.Contains(desc, name) {
			return m, true
		}
	}
	return generator.Merchant{}, false
}

func squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

// category maps the OFX transaction type onto a spending category.
func category(tx ofxgo.Transaction) string {
	switch tx.TrnType {
	case ofxgo.TrnTypeATM, ofxgo.TrnTypeCash:
		return "Cash"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "Fees"
	case ofxgo.TrnTypeCheck:
		return "Check"
	case ofxgo.TrnTypeInt, ofxgo.TrnTypeDiv, ofxgo.TrnTypeDep, ofxgo.TrnTypeDirectDep:
		return "Income"
	case ofxgo.TrnTypePayment, ofxgo.TrnTypeRepeatPmt, ofxgo.TrnTypeDirectDebit:
		return "Utilities"
	default:
		return "Shopping"
	}
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)

	// Sometimes MEMO has better merchant info.
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}

	name = strings.TrimSpace(name)

	for _, prefix := range namePrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " date stamps.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
