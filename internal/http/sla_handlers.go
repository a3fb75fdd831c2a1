package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/service/sla"
)

const defaultHistoryDays = 30

type definitionResponse struct {
	ID         string     `json:"id"`
	ServiceID  *string    `json:"serviceId"`
	Name       string     `json:"name"`
	Version    int        `json:"version"`
	Target     float64    `json:"target"`
	Window     string     `json:"window"`
	MetricType string     `json:"metricType"`
	ActiveFrom time.Time  `json:"activeFrom"`
	ActiveTo   *time.Time `json:"activeTo"`
}

func newDefinitionResponse(def *domain.SLADefinition) definitionResponse {
	return definitionResponse{
		ID:         def.ID,
		ServiceID:  def.ServiceID,
		Name:       def.Name,
		Version:    def.Version,
		Target:     def.Target,
		Window:     string(def.Window),
		MetricType: string(def.MetricType),
		ActiveFrom: def.ActiveFrom,
		ActiveTo:   def.ActiveTo,
	}
}

type snapshotResponse struct {
	ID               string          `json:"id"`
	Date             string          `json:"date"`
	SLADefinitionID  string          `json:"slaDefinitionId"`
	TotalEvents      int64           `json:"totalEvents"`
	ErrorEvents      int64           `json:"errorEvents"`
	UptimePercentage float64         `json:"uptimePercentage"`
	BreachCount      int             `json:"breachCount"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func newSnapshotResponse(snap domain.SLASnapshot) snapshotResponse {
	return snapshotResponse{
		ID:               snap.ID,
		Date:             snap.Date.UTC().Format(dateLayout),
		SLADefinitionID:  snap.SLADefinitionID,
		TotalEvents:      snap.TotalEvents,
		ErrorEvents:      snap.ErrorEvents,
		UptimePercentage: snap.UptimePercentage,
		BreachCount:      snap.BreachCount,
		Metadata:         snap.Metadata,
		UpdatedAt:        snap.UpdatedAt,
	}
}

func (r *Router) handleDefinitionSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/sla-definitions/"), "/")
	if trimmed == "default" {
		r.handleCreateDefaultSLA(w, req)
		return
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" {
		r.notFound(w)
		return
	}
	definitionID := parts[0]
	switch parts[1] {
	case "supersede":
		r.handleSupersede(w, req, definitionID)
	case "snapshots":
		r.handleDefinitionSnapshots(w, req, definitionID)
	case "report":
		r.handleReport(w, req, definitionID)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleCreateDefaultSLA(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.svc.Definitions == nil {
		r.notFound(w)
		return
	}
	var payload struct {
		ServiceID string `json:"serviceId"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	def, err := r.svc.Definitions.CreateDefaultSLA(req.Context(), payload.ServiceID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDefinitionResponse(def))
}

func (r *Router) handleSupersede(w http.ResponseWriter, req *http.Request, definitionID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.svc.Definitions == nil {
		r.notFound(w)
		return
	}
	var payload struct {
		Name   string   `json:"name"`
		Target *float64 `json:"target"`
		Window string   `json:"window"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	def, err := r.svc.Definitions.Supersede(req.Context(), definitionID, sla.SupersedeInput{
		Name:   payload.Name,
		Target: payload.Target,
		Window: domain.ComplianceWindow(strings.TrimSpace(payload.Window)),
	})
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newDefinitionResponse(def))
}

func (r *Router) handleDefinitionSnapshots(w http.ResponseWriter, req *http.Request, definitionID string) {
	switch req.Method {
	case http.MethodPost:
		if r.svc.Snapshots == nil {
			r.notFound(w)
			return
		}
		day, err := parseDay(req.URL.Query().Get("date"), r.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		snap, err := r.svc.Snapshots.GenerateDailySnapshot(req.Context(), definitionID, day)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		if snap == nil {
			r.notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, newSnapshotResponse(*snap))
	case http.MethodGet:
		if r.svc.History == nil {
			r.notFound(w)
			return
		}
		query := req.URL.Query()
		to, err := parseDay(query.Get("to"), r.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from, err := parseDay(query.Get("from"), to.AddDate(0, 0, -(defaultHistoryDays-1)))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		window := domain.TimeRange{Start: domain.DayRange(from).Start, End: domain.DayRange(to).End}
		if window.End.Before(window.Start) {
			writeError(w, http.StatusBadRequest, "from must not be after to")
			return
		}
		snapshots, err := r.svc.History.ListSLASnapshots(req.Context(), definitionID, window)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		out := make([]snapshotResponse, 0, len(snapshots))
		for _, snap := range snapshots {
			out = append(out, newSnapshotResponse(snap))
		}
		writeJSON(w, http.StatusOK, out)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleReport(w http.ResponseWriter, req *http.Request, definitionID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.svc.Reports == nil {
		r.notFound(w)
		return
	}
	asOf, err := parseDay(req.URL.Query().Get("as_of"), r.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := r.svc.Reports.Report(req.Context(), definitionID, asOf)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (r *Router) handleRunSnapshots(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if r.svc.Snapshots == nil {
		r.notFound(w)
		return
	}
	day, err := parseDay(req.URL.Query().Get("date"), r.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcomes, err := r.svc.Snapshots.GenerateForDate(req.Context(), day)
	if err != nil && outcomes == nil {
		r.writeServiceError(w, err)
		return
	}
	type outcomeResponse struct {
		DefinitionID string            `json:"definitionId"`
		Snapshot     *snapshotResponse `json:"snapshot,omitempty"`
		Error        string            `json:"error,omitempty"`
	}
	out := make([]outcomeResponse, 0, len(outcomes))
	failed := 0
	for _, outcome := range outcomes {
		item := outcomeResponse{DefinitionID: outcome.DefinitionID}
		if outcome.Snapshot != nil {
			snap := newSnapshotResponse(*outcome.Snapshot)
			item.Snapshot = &snap
		}
		if outcome.Err != nil {
			item.Error = outcome.Err.Error()
			failed++
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     domain.DayRange(day).Start.Format(dateLayout),
		"outcomes": out,
		"failed":   failed,
	})
}
