package api

import (
	"Go2CrossCount/internal/query"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handler holds the dependencies for API handlers.
type Handler struct {
	querier query.Querier
}

// NewRouter registers the API routes on a new router.
func NewRouter(querier query.Querier) *mux.Router {
	h := &Handler{querier: querier}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/runs", h.runsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{run_id}/buckets", h.bucketsHandler).Methods("GET")
	r.HandleFunc("/api/v1/runs/{run_id}/totals", h.totalsHandler).Methods("GET")
	return r
}

// runsHandler lists the stored runs.
func (h *Handler) runsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := h.querier.Runs(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query runs: %v", err), http.StatusInternalServerError)
		return
	}

	list := make([]interface{}, 0, len(runs))
	for _, run := range runs {
		list = append(list, map[string]interface{}{
			"run_id":     run.RunID,
			"started_at": run.StartedAt.UTC().Format(time.RFC3339),
			"buckets":    run.Buckets,
		})
	}
	writeJSON(w, map[string]interface{}{"runs": list})
}

// bucketsHandler returns the rows of one run, grouped by bucket.
func (h *Handler) bucketsHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	rows, err := h.querier.Buckets(r.Context(), runID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query buckets: %v", err), http.StatusInternalServerError)
		return
	}
	if len(rows) == 0 {
		http.Error(w, fmt.Sprintf("run '%s' not found", runID), http.StatusNotFound)
		return
	}

	var buckets []interface{}
	var current map[string]interface{}
	var classes map[string]interface{}
	for i, row := range rows {
		if i == 0 || row.Bucket != rows[i-1].Bucket {
			classes = make(map[string]interface{})
			current = map[string]interface{}{
				"bucket":  row.Bucket,
				"partial": row.Partial,
				"frames":  row.Frames,
				"classes": classes,
			}
			buckets = append(buckets, current)
		}
		classes[row.Class] = map[string]interface{}{
			"total":    row.Total,
			"interval": row.Interval,
		}
	}
	writeJSON(w, map[string]interface{}{"run_id": runID, "buckets": buckets})
}

// totalsHandler returns the latest cumulative total of every class in a run.
func (h *Handler) totalsHandler(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["run_id"]
	summaries, err := h.querier.Totals(r.Context(), runID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query totals: %v", err), http.StatusInternalServerError)
		return
	}
	if len(summaries) == 0 {
		http.Error(w, fmt.Sprintf("run '%s' not found", runID), http.StatusNotFound)
		return
	}

	totals := make(map[string]interface{}, len(summaries))
	for _, s := range summaries {
		totals[s.Class] = s.Total
	}
	writeJSON(w, map[string]interface{}{"run_id": runID, "totals": totals})
}

func writeJSON(w http.ResponseWriter, payload map[string]interface{}) {
	msg, err := structpb.NewStruct(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build response: %v", err), http.StatusInternalServerError)
		return
	}
	jsonBytes, err := protojson.Marshal(msg)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
