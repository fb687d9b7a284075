package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telhawk-systems/flowhawk/common/httputil"
	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/service"
)

// createAlertRequest is the body of POST /api/v1/alerts.
type createAlertRequest struct {
	Timestamp  *time.Time     `json:"timestamp"`
	Severity   string         `json:"severity"`
	AttackType string         `json:"attack_type"`
	SrcIP      string         `json:"src_ip"`
	SrcPort    int            `json:"src_port"`
	DstIP      string         `json:"dst_ip"`
	DstPort    int            `json:"dst_port"`
	Protocol   string         `json:"protocol"`
	RuleID     string         `json:"rule_id"`
	RuleName   string         `json:"rule_name"`
	ModelScore float64        `json:"model_score"`
	ModelLabel string         `json:"model_label"`
	Meta       map[string]any `json:"meta"`
}

func (req createAlertRequest) toAlert(now time.Time) (models.Alert, error) {
	sev, ok := models.ParseSeverity(req.Severity)
	if !ok {
		return models.Alert{}, fmt.Errorf("invalid severity %q", req.Severity)
	}
	attack, ok := models.ParseAttackType(req.AttackType)
	if !ok {
		return models.Alert{}, fmt.Errorf("invalid attack_type %q", req.AttackType)
	}
	if req.SrcIP == "" || req.DstIP == "" {
		return models.Alert{}, fmt.Errorf("src_ip and dst_ip are required")
	}
	if req.ModelScore < 0 || req.ModelScore > 1 {
		return models.Alert{}, fmt.Errorf("model_score must be between 0 and 1")
	}

	label := models.LabelMalicious
	switch strings.ToLower(req.ModelLabel) {
	case string(models.LabelBenign):
		label = models.LabelBenign
	case "", string(models.LabelMalicious):
	default:
		return models.Alert{}, fmt.Errorf("invalid model_label %q", req.ModelLabel)
	}

	ts := now
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	return models.Alert{
		Timestamp:  ts,
		Severity:   sev,
		AttackType: attack,
		SrcIP:      req.SrcIP,
		SrcPort:    req.SrcPort,
		DstIP:      req.DstIP,
		DstPort:    req.DstPort,
		Protocol:   models.ProtocolFromValue(req.Protocol),
		RuleID:     req.RuleID,
		RuleName:   req.RuleName,
		ModelScore: req.ModelScore,
		ModelLabel: label,
		Meta:       req.Meta,
	}, nil
}

// CreateAlert handles POST /api/v1/alerts
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := req.toAlert(time.Now().UTC())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.alerts.CreateAlert(r.Context(), a, service.SourceAPI)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// ListAlerts handles GET /api/v1/alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.alerts.ListAlerts(r.Context(), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.alerts.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

// ExportAlerts handles GET /api/v1/alerts/export.csv. Filters apply, paging
// does not.
func (h *Handler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)
	if err := h.alerts.ExportCSV(r.Context(), f, w); err != nil {
		// Headers are gone once rows are written.
		h.logger.ErrorContext(r.Context(), "alert export failed", logging.Error(err))
	}
}

// AlertStats handles GET /api/v1/alerts/stats
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	o, err := h.alerts.Last24h(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

// Dashboard handles GET /api/v1/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := h.alerts.Overview(ctx, models.TimeWindow{})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	recent, err := h.alerts.Last24h(ctx)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"overview": all,
		"last24h":  recent,
		"service":  h.alerts.Health(),
	}
	if h.synthetic != nil {
		resp["synthetic"] = h.synthetic.Status()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ReportSummary handles GET /api/v1/reports/summary?from=&to=
func (h *Handler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		httputil.WriteError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	o, err := h.alerts.Overview(r.Context(), models.TimeWindow{Since: from, Until: to})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"from":    from,
		"to":      to,
		"summary": o,
	})
}

// ModelPerformance handles GET /api/v1/model/performance?since=
func (h *Handler) ModelPerformance(w http.ResponseWriter, r *http.Request) {
	since, err := parseTime(r.URL.Query().Get("since"))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var t time.Time
	if since != nil {
		t = *since
	}
	perf, err := h.alerts.ModelPerformance(r.Context(), t)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, perf)
}

// StreamAlerts handles GET /api/v1/alerts/stream as server-sent events. Each
// alert is one "alert" event; idle connections get a comment line every
// keep-alive interval.
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.alerts.Subscribe()
	defer h.alerts.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case a, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(a)
			if err != nil {
				h.logger.WarnContext(r.Context(), "failed to encode streamed alert", logging.AlertID(a.ID), logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: alert\nid: %s\ndata: %s\n\n", a.ID, data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
