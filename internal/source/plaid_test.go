package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-harvest/internal/common"
)

type fakePager struct {
	err     error
	pages   [][]plaid.Transaction
	offsets []int32
	total   int32
}

func (f *fakePager) page(_ context.Context, _, _ string, offset int32) ([]plaid.Transaction, int32, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, 0, f.err
	}
	i := len(f.offsets) - 1
	if i >= len(f.pages) {
		return nil, f.total, nil
	}
	return f.pages[i], f.total, nil
}

func plaidTxn(account, date, name, merchant string, amount float64, pending bool, category ...string) plaid.Transaction {
	var pt plaid.Transaction
	pt.SetAccountId(account)
	pt.SetDate(date)
	pt.SetName(name)
	if merchant != "" {
		pt.SetMerchantName(merchant)
	}
	pt.SetAmount(amount)
	pt.SetPending(pending)
	if len(category) > 0 {
		pt.SetCategory(category)
	}
	return pt
}

func TestPlaidConfig_Validate(t *testing.T) {
	valid := PlaidConfig{ClientID: "id", Secret: "s", Environment: "sandbox", AccessToken: "tok"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		mutate  func(*PlaidConfig)
		wantErr error
		name    string
	}{
		{name: "missing client ID", mutate: func(c *PlaidConfig) { c.ClientID = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing secret", mutate: func(c *PlaidConfig) { c.Secret = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing access token", mutate: func(c *PlaidConfig) { c.AccessToken = "" }, wantErr: common.ErrMissingConfig},
		{name: "invalid environment", mutate: func(c *PlaidConfig) { c.Environment = "development" }, wantErr: common.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
			_, err := NewPlaid(cfg, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlaid_Fetch(t *testing.T) {
	pager := &fakePager{
		total: 4,
		pages: [][]plaid.Transaction{
			{
				plaidTxn("chk", "2024-03-01", "STARBUCKS 1234", "Starbucks", 4.5, false, "Food and Drink", "Coffee Shop"),
				plaidTxn("sav", "2024-03-01", "INTEREST", "", -0.12, false),
				plaidTxn("chk", "2024-03-02", "PENDING THING", "", 10, true),
			},
			{
				plaidTxn("chk", "2024-03-03", "PAYROLL", "", -2500, false),
			},
		},
	}
	p := &Plaid{pager: pager, logger: common.ComponentLogger(nil, "plaid")}

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	statements, err := p.Fetch(context.Background(), start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	assert.Equal(t, []int32{0, 3}, pager.offsets)
	require.Len(t, statements, 2)

	chk := statements[0]
	assert.Equal(t, "chk", chk.AccountID)
	require.Len(t, chk.Candidates, 2)
	assert.Equal(t, "Starbucks", chk.Candidates[0].Description)
	assert.Equal(t, "-4.50", chk.Candidates[0].Amount)
	assert.Equal(t, "Coffee Shop", chk.Candidates[0].Category)
	assert.Equal(t, "2024-03-01", chk.Candidates[0].Date)
	assert.Equal(t, "2500.00", chk.Candidates[1].Amount)
	assert.Equal(t, 1, chk.Candidates[1].Ordinal)

	sav := statements[1]
	assert.Equal(t, "sav", sav.AccountID)
	require.Len(t, sav.Candidates, 1)
	assert.Equal(t, "INTEREST", sav.Candidates[0].Description)
	assert.Equal(t, "0.12", sav.Candidates[0].Amount)
}

func TestPlaid_FetchErrors(t *testing.T) {
	boom := errors.New("boom")
	pager := &fakePager{err: boom}
	p := &Plaid{pager: pager, logger: common.ComponentLogger(nil, "plaid")}
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := p.Fetch(context.Background(), start, start)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pager.offsets, 1, "pages are requested once")

	_, err = p.Fetch(context.Background(), start, start.AddDate(0, 0, -1))
	assert.Error(t, err)
}
