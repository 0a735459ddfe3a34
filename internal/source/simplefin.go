package source

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
)

const simpleFINTimeout = 30 * time.Second

// SimpleFIN API response types.
type sfinAccountSet struct {
	Errors   []string      `json:"errors"`
	Accounts []sfinAccount `json:"accounts"`
}

type sfinAccount struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Transactions []sfinTransaction `json:"transactions"`
}

type sfinTransaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// SimpleFIN fetches posted transactions through a SimpleFIN bridge access URL.
type SimpleFIN struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessURL  string
}

// NewSimpleFIN creates a SimpleFIN source for accessURL, which carries its own
// credentials.
func NewSimpleFIN(accessURL string, logger *slog.Logger) (*SimpleFIN, error) {
	if accessURL == "" {
		return nil, fmt.Errorf("%w: simplefin access URL is required; claim a setup token first", common.ErrMissingConfig)
	}
	if err := checkHTTPURL(accessURL); err != nil {
		return nil, fmt.Errorf("%w: simplefin access URL: %v", common.ErrInvalidConfig, err)
	}
	return &SimpleFIN{
		accessURL:  strings.TrimRight(accessURL, "/"),
		httpClient: &http.Client{Timeout: simpleFINTimeout},
		logger:     common.ComponentLogger(logger, "simplefin"),
	}, nil
}

// Fetch returns posted transactions between start and end inclusive, grouped by
// account in account ID order.
func (s *SimpleFIN) Fetch(ctx context.Context, start, end time.Time) ([]Statement, error) {
	if start.After(end) {
		return nil, fmt.Errorf("start date %s is after end date %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	u, err := url.Parse(s.accessURL + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("start-date", strconv.FormatInt(start.Unix(), 10))
	// end-date is exclusive.
	q.Set("end-date", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.logger.Info("fetching transactions from SimpleFIN",
		"start_date", start.Format("2006-01-02"),
		"end_date", end.Format("2006-01-02"))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("SimpleFIN API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var set sfinAccountSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	for _, msg := range set.Errors {
		s.logger.Warn("SimpleFIN reported a problem", "message", msg)
	}

	statements := make([]Statement, 0, len(set.Accounts))
	for _, acct := range set.Accounts {
		stmt := Statement{AccountID: acct.ID, Candidates: []model.Candidate{}}
		for _, txn := range acct.Transactions {
			if txn.Pending {
				continue
			}
			posted := time.Unix(txn.Posted, 0).UTC()
			if posted.Before(start) || !posted.Before(end.AddDate(0, 0, 1)) {
				continue
			}
			stmt.Candidates = append(stmt.Candidates, simpleFINCandidate(txn, posted, len(stmt.Candidates)))
		}
		statements = append(statements, stmt)
	}
	sort.Slice(statements, func(i, j int) bool { return statements[i].AccountID < statements[j].AccountID })

	s.logger.Info("fetched SimpleFIN transactions", "accounts", len(statements))
	return statements, nil
}

// simpleFINCandidate keeps SimpleFIN's sign: negative amounts leave the account.
// Unparseable amounts pass through raw so reconciliation reports the row.
func simpleFINCandidate(txn sfinTransaction, posted time.Time, ordinal int) model.Candidate {
	description := strings.TrimSpace(txn.Payee)
	if description == "" {
		description = strings.TrimSpace(txn.Description)
	}

	amount := txn.Amount
	if d, err := decimal.NewFromString(txn.Amount); err == nil {
		amount = d.StringFixed(2)
	}

	return model.Candidate{
		Date:        posted.Format("2006-01-02"),
		Description: description,
		Amount:      amount,
		Ordinal:     ordinal,
		Confidence:  structuredConfidence,
	}
}

// SimpleFINAuth is the saved result of claiming a setup token.
type SimpleFINAuth struct {
	ClaimedAt time.Time `json:"claimed_at"`
	AccessURL string    `json:"access_url"`
}

// ClaimSimpleFIN exchanges a base64 setup token for an access URL. A setup token can
// be claimed once.
func ClaimSimpleFIN(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		if decoded, err = base64.StdEncoding.DecodeString(token); err != nil {
			return "", fmt.Errorf("%w: setup token is not base64: %v", common.ErrInvalidConfig, err)
		}
	}

	claimURL := string(decoded)
	if err := checkHTTPURL(claimURL); err != nil {
		return "", fmt.Errorf("%w: setup token: %v", common.ErrInvalidConfig, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claimURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create claim request: %w", err)
	}

	client := &http.Client{Timeout: simpleFINTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to claim access URL: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read access URL: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to claim SimpleFIN access: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	accessURL := strings.TrimSpace(string(body))
	if err := checkHTTPURL(accessURL); err != nil {
		return "", fmt.Errorf("invalid access URL received: %w", err)
	}
	return accessURL, nil
}

// LoadSimpleFINAuth reads saved auth from path. A missing file is not an error.
func LoadSimpleFINAuth(path string) (*SimpleFINAuth, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var auth SimpleFINAuth
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &auth, nil
}

// SaveSimpleFINAuth writes auth to path, readable by the owner only.
func SaveSimpleFINAuth(path string, auth SimpleFINAuth) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an http(s) URL")
	}
	return nil
}
