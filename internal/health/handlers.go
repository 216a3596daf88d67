package health

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"watchbot/internal/action"
	"watchbot/internal/format"
	rtsup "watchbot/internal/runtime/supervisor"
	"watchbot/internal/storage"
	"watchbot/pkg/logx"
)

const (
	maxBodyBytes        = 64 << 10
	defaultHistoryLimit = 50
)

type healthResponse struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version,omitempty"`
	Uptime      string                    `json:"uptime"`
	Notifier    notifierStatus            `json:"notifier"`
	Storage     storageStatus             `json:"storage"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors,omitempty"`
}

type notifierStatus struct {
	Enabled   bool     `json:"enabled"`
	Providers []string `json:"providers"`
}

type storageStatus struct {
	Enabled bool   `json:"enabled"`
	Driver  string `json:"driver,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.deps.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
	}
	if n := s.deps.Notifier; n != nil {
		resp.Notifier = notifierStatus{Enabled: n.Enabled(), Providers: n.Providers()}
	}
	if len(resp.Notifier.Providers) == 0 {
		resp.Status = "degraded"
	}
	if st := s.deps.Store; st != nil {
		resp.Storage = storageStatus{Enabled: true, Driver: st.Driver()}
	}
	if s.deps.Supervisors != nil {
		resp.Supervisors = map[string]rtsup.Snapshot{}
		for name, sup := range s.deps.Supervisors() {
			if sup == nil {
				continue
			}
			snap := sup.Snapshot()
			if snap.FirstError != "" {
				resp.Status = "degraded"
			}
			resp.Supervisors[name] = snap
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type colorEntry struct {
	Action     action.Type `json:"action"`
	Hex        string      `json:"hex"`
	Value      int         `json:"value"`
	Overridden bool        `json:"overridden"`
}

type warningEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (s *Server) handleColors(w http.ResponseWriter, r *http.Request) {
	res := s.deps.Colors
	out := struct {
		Colors   []colorEntry   `json:"colors"`
		Warnings []warningEntry `json:"warnings"`
	}{Colors: []colorEntry{}, Warnings: []warningEntry{}}
	for _, t := range action.All() {
		c := res.Resolve(t)
		out.Colors = append(out.Colors, colorEntry{Action: t, Hex: c.Hex(), Value: c.Int(), Overridden: res.Overridden(t)})
	}
	for _, wn := range res.Warnings() {
		out.Warnings = append(out.Warnings, warningEntry{Key: wn.Key, Value: wn.Value, Reason: wn.Reason})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if st := s.deps.Store; st != nil {
		items, err := st.RecentDeliveries(r.Context(), limit)
		if err != nil {
			s.log.Warn("history query failed", logx.Err(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if items == nil {
			items = []storage.Delivery{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"source": st.Driver(), "items": items})
		return
	}

	var items []storage.Delivery
	if n := s.deps.Notifier; n != nil {
		hist := n.History()
		slices.Reverse(hist)
		for _, h := range hist[:min(limit, len(hist))] {
			items = append(items, storage.Delivery{
				ID: h.ID, At: h.At, Provider: h.Provider, Recipient: h.Recipient, Action: h.Action,
				Status: h.Status, Attempts: h.Attempts, Error: h.Error, Preview: h.Preview,
			})
		}
	}
	if items == nil {
		items = []storage.Delivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"source": "memory", "items": items})
}

type previewResponse struct {
	Action   action.Type            `json:"action"`
	Telegram format.TelegramMessage `json:"telegram"`
	Discord  format.Embed           `json:"discord"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req format.Request
	if !decodeBody(w, r, &req) {
		return
	}
	if isBlank(req.Message) {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Action:   req.ResolvedAction(),
		Telegram: format.Telegram(req),
		Discord:  format.Discord(req, s.deps.Colors),
	})
}

type notifyRequest struct {
	format.Request
	// Targets maps provider to recipient; empty uses the configured defaults.
	Targets map[string]string `json:"targets,omitempty"`
}

type notifyResult struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "notifier unavailable")
		return
	}
	var body notifyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if isBlank(body.Message) {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	targets := body.Targets
	if len(targets) == 0 && s.deps.Recipients != nil {
		targets = s.deps.Recipients()
	}
	if len(targets) == 0 {
		writeError(w, http.StatusBadRequest, "no targets and no default recipients configured")
		return
	}

	results := s.deps.Notifier.NotifyAll(r.Context(), targets, body.Request)
	out := make(map[string]notifyResult, len(results))
	accepted := 0
	for name, res := range results {
		nr := notifyResult{ID: res.ID}
		if res.Err != nil {
			nr.Error = res.Err.Error()
		} else {
			accepted++
		}
		out[name] = nr
	}
	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"action": body.ResolvedAction(), "results": out})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
