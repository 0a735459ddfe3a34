package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Veraticus/spice-harvest/internal/browser"
	"github.com/Veraticus/spice-harvest/internal/importer"
	"github.com/Veraticus/spice-harvest/internal/model"
)

type attachRequest struct {
	RemoteURL string `json:"remoteUrl"`
	TargetID  string `json:"targetId"`
	Headless  *bool  `json:"headless"`
}

type sessionResponse struct {
	ID    string        `json:"id"`
	Owner browser.Owner `json:"owner"`
}

type waitRequest struct {
	DelayMs int `json:"delayMs"`
}

type importRequest struct {
	AccountID      string            `json:"accountId"`
	Source         string            `json:"source"`
	Candidates     []model.Candidate `json:"candidates"`
	SkipDuplicates *bool             `json:"skipDuplicates"`
}

func (s *Server) session(r *http.Request) (*browser.Session, error) {
	return s.deps.Sessions.Get(chi.URLParam(r, "id"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.deps.Sessions.IDs()
	out := make([]sessionResponse, 0, len(ids))
	for _, id := range ids {
		session, err := s.deps.Sessions.Get(id)
		if err != nil {
			continue // closed between IDs and Get
		}
		out = append(out, sessionResponse{ID: id, Owner: session.Owner()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAttachSession(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cfg := s.cfg.Browser
	if req.RemoteURL != "" {
		cfg.RemoteURL = req.RemoteURL
	}
	if req.TargetID != "" {
		cfg.TargetID = req.TargetID
	}
	if req.Headless != nil {
		cfg.Headless = *req.Headless
	}

	driver, err := s.deps.Attach(s.ctx, cfg)
	if err != nil {
		s.logger.Error("failed to attach browser", "remote", cfg.RemoteURL, "error", err)
		writeError(w, err)
		return
	}
	session := s.deps.Sessions.Add(driver)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: session.ID, Owner: session.Owner()})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	candidates, err := s.deps.Scraper.ScrapeSession(r.Context(), session, s.cfg.Vision)
	if err != nil {
		writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// The event stream outlives this request.
	if err := s.deps.Recorder.Start(s.ctx, session); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordingSteps(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	steps, err := s.deps.Recorder.Steps(session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

func (s *Server) handleMarkWait(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req waitRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Recorder.Mark(session, time.Duration(req.DelayMs)*time.Millisecond); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStopRecording returns the draft. Saving it is a separate POST /api/recipes.
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	draft, err := s.deps.Recorder.Stop(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	if draft.Steps == nil {
		draft.Steps = []model.RecordingStep{}
	}
	writeJSON(w, http.StatusOK, draft)
}

func (s *Server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	recipes, err := s.deps.Recipes.ListRecipes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipes)
}

func (s *Server) handleSaveRecipe(w http.ResponseWriter, r *http.Request) {
	var rec model.Recipe
	if err := decode(r, &rec); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Recipes.SaveRecipe(r.Context(), &rec); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Info("recipe saved", "recipe", rec.ID, "steps", len(rec.Steps))
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Recipes.GetRecipe(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecipe(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Recipes.DeleteRecipe(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	preview, err := s.deps.Importer.Preview(r.Context(), req.Candidates, req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type executeResponse struct {
	Preview model.Preview `json:"preview"`
	model.ImportResult
}

func (s *Server) handleImportExecute(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	opts := importer.ExecuteOptions{Source: req.Source, SkipDuplicates: true}
	if req.SkipDuplicates != nil {
		opts.SkipDuplicates = *req.SkipDuplicates
	}

	preview, result, err := s.deps.Importer.Import(r.Context(), req.Candidates, req.AccountID, opts)
	if err != nil {
		writeError(w, fmt.Errorf("import into %s: %w", req.AccountID, err))
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Preview: preview, ImportResult: result})
}
