package source

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-harvest/internal/model"
)

func TestCSV_Parse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		comma   rune
		want    []model.Candidate
		wantErr error
	}{
		{
			name: "signed amount column",
			input: "Date,Description,Amount,Balance,Category\n" +
				"03/01/2024,Coffee   Shop,-4.50,995.50,Dining\n" +
				"03/02/2024,Payroll,\"2,500.00\",\"3,495.50\",\n",
			want: []model.Candidate{
				{Date: "03/01/2024", Description: "Coffee Shop", Amount: "-4.50", Balance: "995.50", Category: "Dining", Ordinal: 0, Confidence: 100},
				{Date: "03/02/2024", Description: "Payroll", Amount: "2,500.00", Balance: "3,495.50", Ordinal: 1, Confidence: 100},
			},
		},
		{
			name: "debit and credit columns after a preamble",
			input: "Account Name: Checking\n" +
				"Account Number: ****1234\n" +
				"\n" +
				"Posted Date,Payee,Debit,Credit,Running Balance\n" +
				"2024-03-01,Grocer,32.10,,967.90\n" +
				"2024-03-02,Refund,0.00,12.00,979.90\n" +
				",,,,\n" +
				"2024-03-03,Fee,-1.00,,978.90\n",
			want: []model.Candidate{
				{Date: "2024-03-01", Description: "Grocer", Amount: "-32.10", Balance: "967.90", Ordinal: 0, Confidence: 100},
				{Date: "2024-03-02", Description: "Refund", Amount: "12.00", Balance: "979.90", Ordinal: 1, Confidence: 100},
				{Date: "2024-03-03", Description: "Fee", Amount: "-1.00", Balance: "978.90", Ordinal: 2, Confidence: 100},
			},
		},
		{
			name:  "semicolon separated",
			comma: ';',
			input: "Booking Date;Details;Amount\n" +
				"01.03.2024;Rent;-900,00\n",
			want: []model.Candidate{
				{Date: "01.03.2024", Description: "Rent", Amount: "-900,00", Ordinal: 0, Confidence: 100},
			},
		},
		{
			name:  "short rows keep their position",
			input: "date,amount,description\n2024-03-01,5.00\n",
			want: []model.Candidate{
				{Date: "2024-03-01", Amount: "5.00", Ordinal: 0, Confidence: 100},
			},
		},
		{
			name:    "no header",
			input:   "2024-03-01,Coffee,-4.50\n",
			wantErr: ErrNoHeader,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: ErrNoHeader,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CSV{Comma: tt.comma}.Parse(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCSV_HeaderOnly(t *testing.T) {
	got, err := CSV{}.Parse(strings.NewReader("Date,Description,Amount\n"))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetectLayout_ByteOrderMark(t *testing.T) {
	layout := detectLayout([]string{"\ufeffDate", "Description", "Amount"})
	require.NotNil(t, layout)
	assert.Equal(t, 0, layout[colDate])
	assert.Equal(t, 2, layout[colAmount])
}
