package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-harvest/internal/browser"
	browsermocks "github.com/Veraticus/spice-harvest/internal/browser/mocks"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/extract"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/vision"
	visionmocks "github.com/Veraticus/spice-harvest/internal/vision/mocks"
)

const activityPage = `<html><body><table>
	<thead><tr><th>Date</th><th>Description</th><th>Amount</th></tr></thead>
	<tbody>
		<tr><td>03/02/2024</td><td>Coffee Shop</td><td>-4.50</td></tr>
		<tr><td>03/01/2024</td><td>Payroll</td><td>2,000.00</td></tr>
	</tbody>
</table>
<ul><li><span>03/02/2024</span><span>Coffee Shop</span><span>-4.50</span></li></ul>
</body></html>`

var visionConfig = vision.Config{Provider: "anthropic", APIKey: "k"}

func factoryFor(p vision.Provider) ProviderFactory {
	return func(context.Context, vision.Config) (vision.Provider, error) {
		return p, nil
	}
}

func directExtraction(t *testing.T, extractor *extract.Extractor) []model.Candidate {
	t.Helper()
	dom, err := extract.SnapshotFromHTML("https://bank.example", activityPage)
	require.NoError(t, err)
	return extract.Dedupe(extractor.Extract(dom, extract.DefaultStrategies()))
}

func TestScrapeSnapshot_FallbackMatchesDirectExtraction(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	extractor := extract.NewExtractor(extract.Config{}, nil)
	want := directExtraction(t, extractor)
	require.Len(t, want, 2)

	snap := model.PageSnapshot{URL: "https://bank.example", HTML: activityPage, Screenshot: []byte("png")}

	tests := []struct {
		name  string
		setup func(p *visionmocks.MockProvider)
	}{
		{
			name: "provider errors",
			setup: func(p *visionmocks.MockProvider) {
				p.EXPECT().Extract(gomock.Any(), snap).Return(nil, errors.New("boom")).Times(1)
			},
		},
		{
			name: "provider returns nothing",
			setup: func(p *visionmocks.MockProvider) {
				p.EXPECT().Extract(gomock.Any(), snap).Return([]model.Candidate{}, nil).Times(1)
			},
		},
		{
			name: "provider returns only unusable rows",
			setup: func(p *visionmocks.MockProvider) {
				p.EXPECT().Extract(gomock.Any(), snap).Return([]model.Candidate{{Description: "Ending balance", Amount: "1.00"}}, nil).Times(1)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := visionmocks.NewMockProvider(ctrl)
			tt.setup(provider)

			scraper := New(extractor, nil, WithProviderFactory(factoryFor(provider)))
			got, err := scraper.ScrapeSnapshot(context.Background(), snap, visionConfig)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestScrapeSnapshot_FactoryErrorFallsBack(t *testing.T) {
	extractor := extract.NewExtractor(extract.Config{}, nil)
	scraper := New(extractor, nil, WithProviderFactory(func(context.Context, vision.Config) (vision.Provider, error) {
		return nil, common.ErrInvalidConfig
	}))

	got, err := scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{HTML: activityPage, URL: "https://bank.example"}, visionConfig)
	require.NoError(t, err)
	assert.Equal(t, directExtraction(t, extractor), got)
}

func TestScrapeSnapshot_VisionWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	provider := visionmocks.NewMockProvider(ctrl)
	provider.EXPECT().Extract(gomock.Any(), gomock.Any()).Return([]model.Candidate{
		{Date: "Mar 2, 2024Mar 2, 2024", Description: "Coffee Shop, Seattle", Amount: "-4.50", Confidence: 90},
		{Date: "Mar 2, 2024", Description: "Coffee Shop", Amount: "-4.50", Confidence: 90},
		{Date: "Mar 1, 2024", Description: "Payroll", Amount: "2000.00", Confidence: 85},
	}, nil)

	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil, WithProviderFactory(factoryFor(provider)))
	got, err := scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{Screenshot: []byte("png")}, visionConfig)
	require.NoError(t, err)

	assert.Equal(t, []model.Candidate{
		{Date: "Mar 2, 2024", Description: "Coffee Shop", Amount: "-4.50", Category: "Dining", Ordinal: 0, Confidence: 90},
		{Date: "Mar 1, 2024", Description: "Payroll", Amount: "2000.00", Category: "Income", Ordinal: 2, Confidence: 85},
	}, got)
}

func TestScrapeSnapshot_VisionDisabledSkipsProvider(t *testing.T) {
	called := false
	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil, WithProviderFactory(func(context.Context, vision.Config) (vision.Provider, error) {
		called = true
		return nil, nil
	}))

	got, err := scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{HTML: activityPage}, vision.Config{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.False(t, called)
}

func TestScrapeSnapshot_CustomStrategies(t *testing.T) {
	listItems := extract.Strategy{
		Name:        "list items",
		RowSelector: "li",
		Fields: func(row extract.Row) (model.Candidate, bool) {
			cells := row.Cells("span")
			if len(cells) != 3 {
				return model.Candidate{}, false
			}
			return model.Candidate{Date: cells[0], Description: cells[1], Amount: cells[2]}, true
		},
	}
	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil, WithStrategies([]extract.Strategy{listItems}))

	got, err := scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{HTML: activityPage}, vision.Config{})
	require.NoError(t, err)
	require.Len(t, got, 1, "table rows are ignored when only the list strategy runs")
	assert.Equal(t, "Coffee Shop", got[0].Description)
}

func TestScrapeSnapshot_NoSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil)
	_, err := scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{}, vision.Config{})
	require.ErrorIs(t, err, common.ErrNoSnapshot)

	// Vision failed and there is no DOM to fall back on.
	provider := visionmocks.NewMockProvider(ctrl)
	provider.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))
	scraper = New(extract.NewExtractor(extract.Config{}, nil), nil, WithProviderFactory(factoryFor(provider)))
	_, err = scraper.ScrapeSnapshot(context.Background(), model.PageSnapshot{Screenshot: []byte("png")}, visionConfig)
	require.ErrorIs(t, err, common.ErrNoSnapshot)
}

func TestScrape_CapturesPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	page := browsermocks.NewMockPage(ctrl)
	page.EXPECT().URL(gomock.Any()).Return("https://bank.example/activity", nil)
	page.EXPECT().OuterHTML(gomock.Any()).Return(activityPage, nil)

	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil)
	got, err := scraper.Scrape(context.Background(), page, vision.Config{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestScrape_PageNotLoaded(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	page := browsermocks.NewMockPage(ctrl)
	page.EXPECT().URL(gomock.Any()).Return("", errors.New("no target"))
	page.EXPECT().OuterHTML(gomock.Any()).Return("", errors.New("no target"))
	page.EXPECT().Screenshot(gomock.Any()).Return(nil, errors.New("no target"))

	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil)
	_, err := scraper.Scrape(context.Background(), page, visionConfig)
	require.ErrorIs(t, err, common.ErrNoSnapshot)
}

func TestScrapeSession_RejectsBusySession(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	session := browser.NewSession("s1", browsermocks.NewMockDriver(ctrl))
	require.NoError(t, session.Acquire(browser.OwnerRecorder))

	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil)
	_, err := scraper.ScrapeSession(context.Background(), session, vision.Config{})
	require.ErrorIs(t, err, common.ErrSessionBusy)
	assert.Equal(t, browser.OwnerRecorder, session.Owner())
}

func TestScrapeSession_ReleasesAfterScrape(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	driver := browsermocks.NewMockDriver(ctrl)
	driver.EXPECT().URL(gomock.Any()).Return("https://bank.example", nil)
	driver.EXPECT().OuterHTML(gomock.Any()).Return(activityPage, nil)

	session := browser.NewSession("s1", driver)
	scraper := New(extract.NewExtractor(extract.Config{}, nil), nil)
	got, err := scraper.ScrapeSession(context.Background(), session, vision.Config{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, browser.OwnerNone, session.Owner())
}
