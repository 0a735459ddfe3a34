package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/Veraticus/spice-harvest/internal/common"
	"github.com/Veraticus/spice-harvest/internal/model"
	"github.com/Veraticus/spice-harvest/internal/recipe"
)

var errNoPendingInput = errors.New("playback is not waiting for input")

// activePlayback bridges a pending sensitive request to POST .../input.
type activePlayback struct {
	pb    *recipe.Playback
	input chan string
}

func (a *activePlayback) supply(ctx context.Context, _ recipe.SensitiveRequest) (string, error) {
	select {
	case v := <-a.input:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type playRequest struct {
	RecipeID string `json:"recipeId"`
}

type inputRequest struct {
	Value string `json:"value"`
}

type playbackResponse struct {
	recipe.Status
	Candidates []model.Candidate `json:"candidates,omitempty"`
}

func (s *Server) playback(r *http.Request) (*activePlayback, error) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	active, ok := s.playbacks[id]
	if !ok {
		return nil, fmt.Errorf("playback %s: %w", id, common.ErrNotFound)
	}
	return active, nil
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req playRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RecipeID == "" {
		writeError(w, fmt.Errorf("%w: recipeId is required", errBadRequest))
		return
	}
	rec, err := s.deps.Recipes.GetRecipe(r.Context(), req.RecipeID)
	if err != nil {
		writeError(w, err)
		return
	}

	active := &activePlayback{input: make(chan string, 1)}
	pb, err := s.deps.Player.Play(s.ctx, session, *rec, active.supply)
	if err != nil {
		writeError(w, err)
		return
	}
	active.pb = pb

	s.mu.Lock()
	s.playbacks[pb.ID] = active
	s.mu.Unlock()

	s.logger.Info("playback started", "playback", pb.ID, "recipe", rec.ID, "session", session.ID)
	writeJSON(w, http.StatusAccepted, pb.Status())
}

func (s *Server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	active, err := s.playback(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := playbackResponse{Status: active.pb.Status()}
	select {
	case <-active.pb.Done():
		result, _ := active.pb.Wait(r.Context())
		resp.Candidates = result.Candidates
	default:
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlaybackInput(w http.ResponseWriter, r *http.Request) {
	active, err := s.playback(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req inputRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == "" {
		writeError(w, fmt.Errorf("%w: value is required", errBadRequest))
		return
	}
	if active.pb.Status().Pending == nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: errNoPendingInput.Error(), Message: errNoPendingInput.Error()})
		return
	}

	select {
	case active.input <- req.Value:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusConflict, errorResponse{Error: "input already supplied", Message: "A value for this step was already sent."})
	}
}

// handleCancelPlayback stops the playback at the next step boundary and leaves the
// browser window as it is.
func (s *Server) handleCancelPlayback(w http.ResponseWriter, r *http.Request) {
	active, err := s.playback(r)
	if err != nil {
		writeError(w, err)
		return
	}
	active.pb.Cancel()
	writeJSON(w, http.StatusAccepted, active.pb.Status())
}

// handlePlaybackEvents streams status changes until the playback ends or the client
// goes away.
func (s *Server) handlePlaybackEvents(w http.ResponseWriter, r *http.Request) {
	active, err := s.playback(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originHosts(s.cfg.AllowedOrigins)})
	if err != nil {
		s.logger.Warn("websocket accept failed", "playback", active.pb.ID, "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusInternalError, "unexpected close") }()

	ctx := conn.CloseRead(r.Context())
	updates, unsubscribe := active.pb.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "playback finished")
				return
			}
			if err := wsjson.Write(ctx, conn, status); err != nil {
				s.logger.Debug("websocket write failed", "playback", active.pb.ID, "error", err)
				return
			}
		}
	}
}

// originHosts turns CORS origins into the host patterns websocket.Accept matches.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if _, host, ok := strings.Cut(origin, "://"); ok {
			origin = host
		}
		hosts = append(hosts, origin)
	}
	return hosts
}
