package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/chat-triage/backend/db"
	"github.com/onnwee/chat-triage/backend/telemetry"
	"github.com/onnwee/chat-triage/backend/tts"
)

// Handlers carries the dependencies the HTTP endpoints read.
type Handlers struct {
	Store  *db.Store
	Stats  *telemetry.Stats
	Budget func() (tokens, spent, dailyCap float64)
	TTS    tts.Client // nil when synthesis is disabled
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleHealthz reports process liveness.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadyz reports readiness: the database must answer a ping.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil || h.Store.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "db": "disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.DB.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus serves the telemetry snapshot for the dashboard.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.Stats.Snapshot()
	if h.Budget != nil {
		tokens, spent, dailyCap := h.Budget()
		snap.TokensRemaining = tokens
		snap.DailySpend = spent
		snap.DailyCap = dailyCap
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleReplies lists recent generated replies. Query param: limit.
func (h *Handlers) HandleReplies(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeJSON(w, http.StatusOK, []db.Reply{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	replies, err := h.Store.RecentReplies(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if replies == nil {
		replies = []db.Reply{}
	}
	writeJSON(w, http.StatusOK, replies)
}

type adminReplyRequest struct {
	Text string `json:"text"`
}

// HandleAdminReply speaks an operator-supplied line through the synthesis
// client, bypassing the pipeline.
func (h *Handlers) HandleAdminReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req adminReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text required"})
		return
	}
	audioPath := ""
	if h.TTS != nil {
		path, err := h.TTS.Synthesize(r.Context(), req.Text)
		if err != nil {
			telemetry.SynthesisFailures.Inc()
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		audioPath = path
	}
	if h.Store != nil {
		if err := h.Store.InsertReply(r.Context(), "", req.Text, 1.0, false, audioPath); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	h.Stats.RecordReply()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "audio_path": audioPath})
}
