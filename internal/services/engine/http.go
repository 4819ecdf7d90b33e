package engine

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plantio/irrigation-engine/internal/model/entities"
	"github.com/plantio/irrigation-engine/internal/model/messages"
	"github.com/plantio/irrigation-engine/internal/services/eventlog"
	"github.com/plantio/irrigation-engine/internal/services/schedules"
	"github.com/plantio/irrigation-engine/internal/services/zonecontrol"
)

// scheduleView decorates a schedule with its derived next execution for
// listings.
type scheduleView struct {
	entities.Schedule
	NextExecution *time.Time `json:"next_execution,omitempty"`
}

// NewHTTPMux builds the daemon's HTTP surface: health, metrics and the JSON
// API backing the dashboard.
func NewHTTPMux(e *Engine) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if e.Healthy != nil {
			if err := e.Healthy(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/zones", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, e.Registry.List())
	})

	mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list, err := e.Schedules.List(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			now := time.Now()
			views := make([]scheduleView, 0, len(list))
			for _, sch := range list {
				v := scheduleView{Schedule: sch}
				if next, ok := e.Schedules.NextExecution(sch, now); ok {
					v.NextExecution = &next
				}
				views = append(views, v)
			}
			writeJSON(w, views)
		case http.MethodPost:
			var sch entities.Schedule
			if err := json.NewDecoder(r.Body).Decode(&sch); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			created, err := e.Schedules.Create(r.Context(), sch)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, created)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/schedules/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitSchedulePath(r.URL.Path)
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			sch, err := e.Schedules.Get(r.Context(), id)
			if err != nil {
				scheduleError(w, err)
				return
			}
			writeJSON(w, sch)
		case action == "" && r.Method == http.MethodPut:
			var sch entities.Schedule
			if err := json.NewDecoder(r.Body).Decode(&sch); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			sch.ID = id
			if err := e.Schedules.Update(r.Context(), sch); err != nil {
				scheduleError(w, err)
				return
			}
			writeJSON(w, sch)
		case action == "" && r.Method == http.MethodDelete:
			if err := e.Schedules.Delete(r.Context(), id); err != nil {
				scheduleError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case action == "toggle" && r.Method == http.MethodPost:
			var body struct {
				Enabled bool `json:"enabled"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := e.Schedules.Toggle(r.Context(), id, body.Enabled); err != nil {
				scheduleError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case action == "duplicate" && r.Method == http.MethodPost:
			dup, err := e.Schedules.Duplicate(r.Context(), id)
			if err != nil {
				scheduleError(w, err)
				return
			}
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, dup)
		case action == "run" && r.Method == http.MethodPost:
			if err := e.Dispatcher.RunNow(r.Context(), id); err != nil {
				scheduleError(w, err)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		f := eventlog.Filter{
			ScheduleID: q.Get("schedule"),
			ZoneID:     q.Get("zone"),
		}
		if s := q.Get("status"); s != "" {
			f.Status = messages.EventStatus(s)
		}
		list, err := e.Events.List(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if e.History == nil {
			http.Error(w, "history backend not configured", http.StatusNotImplemented)
			return
		}
		entries, err := e.History.Recent(r.Context(), 7*24*time.Hour, 100)
		if err != nil {
			log.Printf("engine: history query: %v", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, entries)
	})

	mux.HandleFunc("/manual/open", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Zone    string `json:"zone"`
			Minutes int    `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := e.Manual.RequestOpen(body.Zone, body.Minutes); err != nil {
			manualError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/manual/close", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Zone string `json:"zone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := e.Manual.RequestClose(body.Zone); err != nil {
			manualError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func scheduleError(w http.ResponseWriter, err error) {
	if errors.Is(err, schedules.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func manualError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, zonecontrol.ErrUnknownZone):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, zonecontrol.ErrZoneUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

// splitSchedulePath parses "/schedules/{id}" and "/schedules/{id}/{action}".
func splitSchedulePath(path string) (id, action string) {
	rest := strings.TrimPrefix(path, "/schedules/")
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}
