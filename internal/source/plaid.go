package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

// Plaid's maximum page size for /transactions/get.
const plaidPageSize = int32(500)

// PlaidConfig holds Plaid API configuration.
type PlaidConfig struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
	AccessToken string
}

// Validate ensures all required fields are present.
func (c PlaidConfig) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig)
	case c.Secret == "":
		return fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig)
	case c.AccessToken == "":
		return fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig)
	case c.Environment != "sandbox" && c.Environment != "production":
		return fmt.Errorf("%w: plaid environment must be sandbox or production", common.ErrInvalidConfig)
	}
	return nil
}

// transactionPager fetches one page of /transactions/get.
type transactionPager interface {
	page(ctx context.Context, start, end string, offset int32) (txns []plaid.Transaction, total int32, err error)
}

// Plaid fetches posted transactions through the Plaid API.
type Plaid struct {
	pager  transactionPager
	logger *slog.Logger
}

// NewPlaid creates a Plaid source.
func NewPlaid(cfg PlaidConfig, logger *slog.Logger) (*Plaid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &Plaid{
		pager: &plaidAPI{
			client:      plaid.NewAPIClient(configuration),
			accessToken: cfg.AccessToken,
		},
		logger: common.ComponentLogger(logger, "plaid"),
	}, nil
}

// Fetch returns posted transactions between start and end inclusive, grouped by
// account in account ID order. Pending transactions are left out; they are
// re-reported with a new ID once they post. Each page is requested once.
func (p *Plaid) Fetch(ctx context.Context, start, end time.Time) ([]Statement, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start date %s is after end date %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	from, to := start.Format("2006-01-02"), end.Format("2006-01-02")
	p.logger.Info("fetching transactions from Plaid", "start_date", from, "end_date", to)

	byAccount := make(map[string]*Statement)
	var offset int32
	for {
		txns, total, err := p.pager.page(ctx, from, to, offset)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("fetched transaction page", "count", len(txns), "offset", offset, "total", total)

		for _, pt := range txns {
			if pt.GetPending() {
				continue
			}
			accountID := pt.GetAccountId()
			stmt, ok := byAccount[accountID]
			if !ok {
				stmt = &Statement{AccountID: accountID, Candidates: []model.Candidate{}}
				byAccount[accountID] = stmt
			}
			stmt.Candidates = append(stmt.Candidates, plaidCandidate(pt, len(stmt.Candidates)))
		}

		offset += int32(len(txns))
		if len(txns) == 0 || offset >= total {
			break
		}
	}

	statements := make([]Statement, 0, len(byAccount))
	for _, stmt := range byAccount {
		statements = append(statements, *stmt)
	}
	sort.Slice(statements, func(i, j int) bool { return statements[i].AccountID < statements[j].AccountID })

	p.logger.Info("fetched Plaid transactions", "accounts", len(statements), "offset", offset)
	return statements, nil
}

// plaidCandidate flips Plaid's sign convention, where positive amounts leave the
// account, to the sign-bearing form used everywhere else.
func plaidCandidate(pt plaid.Transaction, ordinal int) model.Candidate {
	description := pt.GetMerchantName()
	if description == "" {
		description = pt.GetName()
	}

	c := model.Candidate{
		Date:        pt.GetDate(),
		Description: description,
		Amount:      decimal.NewFromFloat(pt.GetAmount()).Neg().StringFixed(2),
		Ordinal:     ordinal,
		Confidence:  structuredConfidence,
	}
	if cats := pt.GetCategory(); len(cats) > 0 {
		c.Category = cats[len(cats)-1]
	}
	return c
}

type plaidAPI struct {
	client      *plaid.APIClient
	accessToken string
}

func (a *plaidAPI) page(ctx context.Context, start, end string, offset int32) ([]plaid.Transaction, int32, error) {
	request := plaid.NewTransactionsGetRequest(a.accessToken, start, end)
	request.SetOptions(plaid.TransactionsGetRequestOptions{
		Count:  plaid.PtrInt32(plaidPageSize),
		Offset: plaid.PtrInt32(offset),
	})

	resp, _, err := a.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	if err != nil {
		if plaidErr, convErr := plaid.ToPlaidError(err); convErr == nil {
			return nil, 0, fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage)
		}
		return nil, 0, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return resp.GetTransactions(), resp.GetTotalTransactions(), nil
}
