package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/browser/mocks"
	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/extract"
	"github.com/Veraticus/spice-harvest/internal/importer"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/reconcile"
	"github.com/Veraticus/spice-harvest/internal/recipe"
	"github.com/Veraticus/spice-harvest/internal/scrape"
	"github.com/Veraticus/spice-harvest/internal/testutil"
	"github.com/Veraticus/spice-harvest/internal/testutil/history"
	"github.com/Veraticus/spice-harvest/internal/vision"
)

const activityPage = `<html><body><table>
	<thead><tr><th>Date</th><th>Description</th><th>Amount</th></tr></thead>
	<tbody>
		<tr><td>03/02/2024</td><td>Coffee Shop</td><td>-4.50</td></tr>
		<tr><td>03/01/2024</td><td>Payroll</td><td>2,000.00</td></tr>
	</tbody>
</table></body></html>`

type staticScraper struct {
	candidates []model.Candidate
}

func (s staticScraper) Scrape(context.Context, browser.Page, vision.Config) ([]model.Candidate, error) {
	return s.candidates, nil
}

func loginRecipe() model.Recipe {
	return model.Recipe{
		ID:   "first-federal",
		Name: "First Federal",
		Steps: []model.RecordingStep{
			{Type: model.StepInput, Selector: "#pw", Label: "Password", IsSensitive: true},
			{Type: model.StepClick, Selector: "#login"},
		},
	}
}

type harness struct {
	srv      *Server
	http     *httptest.Server
	db       *testutil.TestDB
	attached []browser.ChromeConfig
}

func newHarness(t *testing.T, driver browser.Driver, seed testutil.TestDBOptions) *harness {
	t.Helper()
	db := testutil.SetupTestDBWithOptions(t, seed)
	h := &harness{db: db}

	player := recipe.NewPlayer(staticScraper{candidates: []model.Candidate{
		{Date: "2024-03-02", Description: "Coffee Shop", Amount: "-4.50"},
	}}, recipe.Options{}, nil)

	deps := Deps{
		Sessions: browser.NewRegistry(nil),
		Recorder: recipe.NewRecorder(nil),
		Player:   player,
		Scraper:  scrape.New(extract.NewExtractor(extract.Config{}, nil), nil),
		Recipes:  db.Storage,
		Importer: importer.New(db.Storage, reconcile.NewMatcher(), nil),
		Attach: func(_ context.Context, cfg browser.ChromeConfig) (browser.Driver, error) {
			h.attached = append(h.attached, cfg)
			return driver, nil
		},
	}
	h.srv = New(Config{Browser: browser.ChromeConfig{Headless: true}}, deps, nil)
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		h.srv.cancel()
	})
	return h
}

func (h *harness) addSession(driver browser.Driver) *browser.Session {
	return h.srv.deps.Sessions.Add(driver)
}

func (h *harness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// playbackStatus fetches a playback without failing the test, for use in Eventually.
func (h *harness) playbackStatus(id string) (playbackResponse, error) {
	var out playbackResponse
	resp, err := http.Get(h.http.URL + "/api/playbacks/" + id)
	if err != nil {
		return out, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("status %d", resp.StatusCode)
	}
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func (h *harness) waitForState(t *testing.T, id string, want recipe.State) playbackResponse {
	t.Helper()
	var got playbackResponse
	require.Eventually(t, func() bool {
		status, err := h.playbackStatus(id)
		if err != nil {
			return false
		}
		got = status
		return status.State == want
	}, 2*time.Second, 10*time.Millisecond, "playback never reached %s", want)
	return got
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil, testutil.TestDBOptions{})
	resp := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessions_AttachListClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().Close().Return(nil)

	h := newHarness(t, driver, testutil.TestDBOptions{})

	resp := h.do(t, http.MethodPost, "/api/sessions", map[string]string{"remoteUrl": "http://127.0.0.1:9222"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created sessionResponse
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	require.Len(t, h.attached, 1)
	assert.Equal(t, "http://127.0.0.1:9222", h.attached[0].RemoteURL)
	assert.True(t, h.attached[0].Headless, "server default applies when the request omits it")

	resp = h.do(t, http.MethodGet, "/api/sessions", nil)
	var listed []sessionResponse
	decodeBody(t, resp, &listed)
	assert.Equal(t, []sessionResponse{{ID: created.ID, Owner: browser.OwnerNone}}, listed)

	resp = h.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessions_CloseHeldSessionConflicts(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)

	h := newHarness(t, driver, testutil.TestDBOptions{})
	session := h.addSession(driver)
	require.NoError(t, session.Acquire(browser.OwnerRecorder))

	resp := h.do(t, http.MethodDelete, "/api/sessions/"+session.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestScrape(t *testing.T) {
	tests := []struct {
		name       string
		holder     browser.Owner
		wantStatus int
		wantRows   int
	}{
		{name: "idle session", wantStatus: http.StatusOK, wantRows: 2},
		{name: "session being recorded", holder: browser.OwnerRecorder, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			driver := mocks.NewMockDriver(ctrl)
			if tt.holder == browser.OwnerNone {
				driver.EXPECT().URL(gomock.Any()).Return("https://bank.example/activity", nil)
				driver.EXPECT().OuterHTML(gomock.Any()).Return(activityPage, nil)
			}

			h := newHarness(t, driver, testutil.TestDBOptions{})
			session := h.addSession(driver)
			if tt.holder != browser.OwnerNone {
				require.NoError(t, session.Acquire(tt.holder))
			}

			resp := h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/scrape", nil)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus != http.StatusOK {
				var body errorResponse
				decodeBody(t, resp, &body)
				assert.Equal(t, common.Remediation(common.ErrSessionBusy), body.Message)
				assert.Equal(t, tt.holder, session.Owner(), "a refused scrape leaves the holder in place")
				return
			}

			var candidates []model.Candidate
			decodeBody(t, resp, &candidates)
			require.Len(t, candidates, tt.wantRows)
			descriptions := []string{candidates[0].Description, candidates[1].Description}
			assert.ElementsMatch(t, []string{"Coffee Shop", "Payroll"}, descriptions)
			assert.Equal(t, browser.OwnerNone, session.Owner())
		})
	}
}

func TestScrape_UnknownSession(t *testing.T) {
	h := newHarness(t, nil, testutil.TestDBOptions{})
	resp := h.do(t, http.MethodPost, "/api/sessions/nope/scrape", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecording(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)

	events := make(chan browser.Event, 8)
	driver.EXPECT().URL(gomock.Any()).Return("https://bank.example/login", nil)
	driver.EXPECT().StartEvents(gomock.Any()).Return((<-chan browser.Event)(events), nil)
	driver.EXPECT().StopEvents(gomock.Any()).DoAndReturn(func(context.Context) error {
		close(events)
		return nil
	})

	h := newHarness(t, driver, testutil.TestDBOptions{})
	session := h.addSession(driver)
	base := "/api/sessions/" + session.ID + "/recording"

	resp := h.do(t, http.MethodPost, base, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, browser.OwnerRecorder, session.Owner())

	resp = h.do(t, http.MethodPost, base, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "a second recording is refused")

	events <- browser.Event{Type: browser.EventClick, Selector: "#statements", Label: "Statements"}
	require.Eventually(t, func() bool {
		steps, err := h.srv.deps.Recorder.Steps(session)
		return err == nil && len(steps) == 1
	}, time.Second, 5*time.Millisecond)

	resp = h.do(t, http.MethodPost, base+"/wait", waitRequest{DelayMs: 1500})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var draft model.Recipe
	decodeBody(t, resp, &draft)

	assert.Equal(t, "https://bank.example/login", draft.StartURL)
	require.Len(t, draft.Steps, 2)
	assert.Equal(t, model.StepClick, draft.Steps[0].Type)
	assert.Equal(t, "#statements", draft.Steps[0].Selector)
	assert.Equal(t, model.RecordingStep{Type: model.StepWait, DelayMs: 1500}, draft.Steps[1])
	assert.Equal(t, browser.OwnerNone, session.Owner())

	resp = h.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "stopping twice reports the session is not recording")
}

func TestRecipes_CRUD(t *testing.T) {
	h := newHarness(t, nil, testutil.TestDBOptions{})

	draft := loginRecipe()
	draft.ID = ""
	draft.Steps[0].Value = "hunter2"

	resp := h.do(t, http.MethodPost, "/api/recipes", draft)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var saved model.Recipe
	decodeBody(t, resp, &saved)
	require.NotEmpty(t, saved.ID)
	assert.Empty(t, saved.Steps[0].Value, "sensitive value is never stored")

	resp = h.do(t, http.MethodGet, "/api/recipes/"+saved.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched model.Recipe
	decodeBody(t, resp, &fetched)
	assert.Equal(t, saved, fetched)

	resp = h.do(t, http.MethodGet, "/api/recipes", nil)
	var listed []model.Recipe
	decodeBody(t, resp, &listed)
	assert.Len(t, listed, 1)

	resp = h.do(t, http.MethodDelete, "/api/recipes/"+saved.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/recipes/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecipes_Invalid(t *testing.T) {
	h := newHarness(t, nil, testutil.TestDBOptions{})

	resp := h.do(t, http.MethodPost, "/api/recipes", model.Recipe{Name: " "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, h.http.URL+"/api/recipes", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = raw.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestPlayback_SensitiveInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)
	gomock.InOrder(
		driver.EXPECT().Exists(gomock.Any(), "#pw").Return(true, nil),
		driver.EXPECT().SetValue(gomock.Any(), "#pw", "hunter2").Return(nil),
		driver.EXPECT().Exists(gomock.Any(), "#login").Return(true, nil),
		driver.EXPECT().Click(gomock.Any(), "#login").Return(nil),
	)

	h := newHarness(t, driver, testutil.TestDBOptions{Recipes: []model.Recipe{loginRecipe()}})
	session := h.addSession(driver)

	resp := h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/playbacks", playRequest{RecipeID: "first-federal"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started recipe.Status
	decodeBody(t, resp, &started)
	require.NotEmpty(t, started.ID)

	paused := h.waitForState(t, started.ID, recipe.StatePaused)
	require.NotNil(t, paused.Pending)
	assert.Equal(t, recipe.SensitiveRequest{Label: "Password", StepIndex: 0, TotalSteps: 2}, *paused.Pending)

	resp = h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/scrape", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "a paused playback still owns the window")

	resp = h.do(t, http.MethodPost, "/api/playbacks/"+started.ID+"/input", inputRequest{Value: "hunter2"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	done := h.waitForState(t, started.ID, recipe.StateCompleted)
	require.Len(t, done.Candidates, 1)
	assert.Equal(t, "Coffee Shop", done.Candidates[0].Description)
	assert.Nil(t, done.Pending)

	resp = h.do(t, http.MethodPost, "/api/playbacks/"+started.ID+"/input", inputRequest{Value: "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPlayback_StartErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)

	h := newHarness(t, driver, testutil.TestDBOptions{Recipes: []model.Recipe{loginRecipe()}})
	idle := h.addSession(driver)
	held := h.addSession(driver)
	require.NoError(t, held.Acquire(browser.OwnerScraper))

	tests := []struct {
		name       string
		session    string
		body       playRequest
		wantStatus int
	}{
		{name: "unknown recipe", session: idle.ID, body: playRequest{RecipeID: "nope"}, wantStatus: http.StatusNotFound},
		{name: "missing recipe id", session: idle.ID, wantStatus: http.StatusBadRequest},
		{name: "unknown session", session: "nope", body: playRequest{RecipeID: "first-federal"}, wantStatus: http.StatusNotFound},
		{name: "held session", session: held.ID, body: playRequest{RecipeID: "first-federal"}, wantStatus: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/api/sessions/"+tt.session+"/playbacks", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
	assert.Equal(t, browser.OwnerNone, idle.Owner())
}

func TestPlayback_CancelWhilePaused(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)
	// No Close: cancelling leaves the window open for the user.
	driver.EXPECT().Exists(gomock.Any(), "#pw").Return(true, nil)

	h := newHarness(t, driver, testutil.TestDBOptions{Recipes: []model.Recipe{loginRecipe()}})
	session := h.addSession(driver)

	resp := h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/playbacks", playRequest{RecipeID: "first-federal"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started recipe.Status
	decodeBody(t, resp, &started)
	h.waitForState(t, started.ID, recipe.StatePaused)

	resp = h.do(t, http.MethodDelete, "/api/playbacks/"+started.ID, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	final := h.waitForState(t, started.ID, recipe.StateCancelled)
	assert.Equal(t, common.ErrPlaybackCancelled.Error(), final.Error)
	assert.Equal(t, browser.OwnerNone, session.Owner())

	resp = h.do(t, http.MethodGet, "/api/playbacks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPlayback_EventStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	driver := mocks.NewMockDriver(ctrl)
	driver.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	driver.EXPECT().SetValue(gomock.Any(), "#pw", "hunter2").Return(nil)
	driver.EXPECT().Click(gomock.Any(), "#login").Return(nil)

	h := newHarness(t, driver, testutil.TestDBOptions{Recipes: []model.Recipe{loginRecipe()}})
	session := h.addSession(driver)

	resp := h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/playbacks", playRequest{RecipeID: "first-federal"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var started recipe.Status
	decodeBody(t, resp, &started)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/api/playbacks/" + started.ID + "/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var seen []recipe.State
	for {
		var status recipe.Status
		err := wsjson.Read(ctx, conn, &status)
		if err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		seen = append(seen, status.State)
		if status.State == recipe.StatePaused {
			// A value sent over HTTP resumes the stream.
			r := h.do(t, http.MethodPost, "/api/playbacks/"+started.ID+"/input", inputRequest{Value: "hunter2"})
			require.Equal(t, http.StatusNoContent, r.StatusCode)
		}
	}

	require.NotEmpty(t, seen)
	assert.Equal(t, recipe.StateCompleted, seen[len(seen)-1])
}

func TestImport_PreviewAndExecute(t *testing.T) {
	seed := history.New("acc1").Add("2024-03-01", "Coffee Shop", "-4.50").Build(t)
	h := newHarness(t, nil, testutil.TestDBOptions{History: seed})

	candidates := []model.Candidate{
		{Date: "2024-03-01", Description: "Coffee Shop", Amount: "-4.50"},
		{Date: "2024-03-02", Description: "Bookstore", Amount: "-12.00"},
		{Date: "someday", Description: "Broken", Amount: "-1.00"},
	}

	resp := h.do(t, http.MethodPost, "/api/import/preview", importRequest{AccountID: "acc1", Candidates: candidates})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var preview model.Preview
	decodeBody(t, resp, &preview)
	assert.Len(t, preview.Rows, 1)
	assert.Len(t, preview.Duplicates, 1)
	assert.Len(t, preview.Errors, 1)
	assert.Equal(t, 1, h.db.MustCount("acc1"), "preview writes nothing")

	resp = h.do(t, http.MethodPost, "/api/import/execute", importRequest{AccountID: "acc1", Candidates: candidates})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var executed executeResponse
	decodeBody(t, resp, &executed)
	assert.Equal(t, model.ImportResult{Imported: 1, Skipped: 1}, executed.ImportResult)
	assert.Equal(t, 2, h.db.MustCount("acc1"))

	resp = h.do(t, http.MethodPost, "/api/import/preview", importRequest{Candidates: candidates})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "account is required")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("session x: %w", common.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: held by playing", common.ErrSessionBusy), http.StatusConflict},
		{common.ErrSessionNotHeld, http.StatusConflict},
		{model.ErrInvalidRecipe, http.StatusBadRequest},
		{common.ErrEmptyRecipe, http.StatusBadRequest},
		{common.ErrNoSnapshot, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"http://localhost:*", "https://harvest.example", "127.0.0.1:8765"})
	assert.Equal(t, []string{"localhost:*", "harvest.example", "127.0.0.1:8765"}, got)
}
