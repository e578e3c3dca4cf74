package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/matryer/way"
	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/transport/observer"
)

type api struct {
	cats    *catalogs.Catalogs
	results resultsQuery
	log     logrus.FieldLogger
}

func (a *api) handleMaps() http.HandlerFunc {
	type mapInfo struct {
		ID         string `json:"id"`
		Orders     int    `json:"orders"`
		Inventory  int    `json:"inventory_slots"`
		PlateSlots int    `json:"plate_slots"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ids := a.cats.Maps.IDs()
		out := make([]mapInfo, 0, len(ids))
		for _, id := range ids {
			m := a.cats.Maps.ByID[id]
			out = append(out, mapInfo{
				ID:         id,
				Orders:     len(m.Orders),
				Inventory:  m.InventorySlotAmount,
				PlateSlots: m.PlateSlotAmount,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"maps": out})
	}
}

func (a *api) handleBest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mapID := way.Param(r.Context(), "map")
		if _, ok := a.cats.Maps.ByID[mapID]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown map"})
			return
		}
		if a.results == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "results index disabled"})
			return
		}
		best, ok, err := a.results.BestTime(r.Context(), mapID)
		if err != nil {
			a.log.WithError(err).WithField("map", mapID).Warn("best time query failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
			return
		}
		resp := map[string]any{"map_id": mapID, "found": ok}
		if ok {
			resp["best_time"] = best
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (a *api) handleResults() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mapID := way.Param(r.Context(), "map")
		if _, ok := a.cats.Maps.ByID[mapID]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown map"})
			return
		}
		if a.results == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "results index disabled"})
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 500 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad limit"})
				return
			}
			limit = n
		}
		rows, err := a.results.Results(r.Context(), mapID, limit)
		if err != nil {
			a.log.WithError(err).WithField("map", mapID).Warn("results query failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"map_id": mapID, "results": rows})
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC().Format(time.RFC3339)})
}

// loopbackOnly rejects requests that do not originate on this host.
func loopbackOnly(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
