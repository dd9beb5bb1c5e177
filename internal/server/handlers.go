package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/szaher/mdtboard/internal/discussion"
	"github.com/szaher/mdtboard/internal/intervention"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type createSessionRequest struct {
	OwnerID     string            `json:"owner_id"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	id := s.store.Create(req.OwnerID, req.Preferences)
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.store.Stats().Count)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if !s.store.Destroy(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if s.metrics != nil {
		s.metrics.SetActiveSessions(s.store.Stats().Count)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

type startDiscussionRequest struct {
	SessionID   string            `json:"session_id"`
	CaseText    string            `json:"case_text"`
	Question    string            `json:"question,omitempty"`
	Specialties []string          `json:"specialties"`
	Custom      map[string]string `json:"custom,omitempty"`
}

func (s *Server) handleStartDiscussion(w http.ResponseWriter, r *http.Request) {
	var req startDiscussionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CaseText == "" {
		writeError(w, http.StatusBadRequest, "case_text is required")
		return
	}

	participants, err := s.build(req.Specialties, req.Custom)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.engine.Start(discussion.StartRequest{
		SessionID:    req.SessionID,
		CaseText:     req.CaseText,
		Question:     req.Question,
		Participants: participants,
	})
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"discussion_id": id})
}

func (s *Server) handleDiscussionStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDiscussionRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Record(r.PathValue("id"))
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type interveneRequest struct {
	Kind        string `json:"kind"`
	Target      string `json:"target,omitempty"`
	Question    string `json:"question,omitempty"`
	Information string `json:"information,omitempty"`
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request) {
	var req interveneRequest
	if !decode(w, r, &req) {
		return
	}
	kind, err := intervention.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	iv, err := s.engine.Intervene(r.PathValue("id"), kind, intervention.Payload{
		Target:      req.Target,
		Question:    req.Question,
		Information: req.Information,
	})
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, iv)
}

func (s *Server) handleInterventionStatus(w http.ResponseWriter, r *http.Request) {
	iv, err := s.engine.InterventionStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// engineStatus maps engine errors onto HTTP status codes.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, discussion.ErrUnknownDiscussion),
		errors.Is(err, discussion.ErrUnknownIntervention),
		errors.Is(err, intervention.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, discussion.ErrInvalidSession):
		return http.StatusUnauthorized
	case errors.Is(err, discussion.ErrSessionBusy),
		errors.Is(err, discussion.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, discussion.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
