package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/kwv/roomplan/plan"
	"github.com/kwv/roomplan/store"
)

// maxUploadBytes limits snapshot uploads.
const maxUploadBytes = 50 << 20

// newHTTPServer creates an HTTP server with all endpoints. rooms and
// publisher may be nil.
func newHTTPServer(stateTracker *plan.StateTracker, rooms store.Store, publisher *plan.Publisher) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasRooms  bool      `json:"hasRooms"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasRooms:  stateTracker.HasRooms(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /rooms", func(w http.ResponseWriter, r *http.Request) {
		type roomInfo struct {
			Name      string           `json:"name"`
			UpdatedAt time.Time        `json:"updatedAt"`
			Summary   plan.RoomSummary `json:"summary"`
		}
		infos := []roomInfo{}
		for _, name := range stateTracker.RoomNames() {
			room, ok := stateTracker.GetRoom(name)
			if !ok {
				continue
			}
			updated, _ := stateTracker.UpdatedAt(name)
			infos = append(infos, roomInfo{Name: name, UpdatedAt: updated, Summary: plan.Summarize(room)})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": infos})
	})

	// Upload a snapshot (raw, zlib or gzip JSON)
	mux.HandleFunc("POST /rooms/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
		if err != nil {
			http.Error(w, fmt.Sprintf("reading body: %v", err), http.StatusBadRequest)
			return
		}
		room, err := plan.DecodeRoomData(data)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid room snapshot: %v", err), http.StatusBadRequest)
			return
		}

		resp := struct {
			Room       string   `json:"room"`
			FileName   string   `json:"fileName,omitempty"`
			Primitives int      `json:"primitives"`
			Dimensions []string `json:"dimensions"`
		}{Room: name, Dimensions: []string{}}

		if rooms != nil {
			rec, err := rooms.Save(r.Context(), name, room)
			if err != nil {
				log.Printf("[HTTP] Error storing %s: %v", name, err)
				http.Error(w, "failed to store room", http.StatusInternalServerError)
				return
			}
			resp.FileName = rec.FileName
		}

		fp := stateTracker.UpdateRoom(name, room)
		publishPlan(publisher, name, fp)

		resp.Primitives = len(fp.Primitives)
		for _, d := range fp.Dimensions() {
			resp.Dimensions = append(resp.Dimensions, d.Label)
		}
		log.Printf("[HTTP] Uploaded %s: %d primitives", name, resp.Primitives)
		writeJSON(w, http.StatusCreated, resp)
	})

	// Floor plan endpoints
	floorplan := func(format, contentType string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			name := r.PathValue("name")
			fp, ok := stateTracker.GetFloorPlan(name)
			if !ok {
				http.Error(w, fmt.Sprintf("room %q not found", name), http.StatusNotFound)
				return
			}

			var buf bytes.Buffer
			var err error
			if format == "json" {
				err = json.NewEncoder(&buf).Encode(fp)
			} else {
				err = encodePlan(&buf, fp, format)
			}
			if err != nil {
				log.Printf("[HTTP] Error rendering %s as %s: %v", name, format, err)
				http.Error(w, "render failed", http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Cache-Control", "no-cache")
			if _, err := w.Write(buf.Bytes()); err != nil {
				log.Printf("[HTTP] Error writing %s: %v", name, err)
			}
		}
	}
	mux.HandleFunc("GET /rooms/{name}/floorplan.svg", floorplan("svg", "image/svg+xml"))
	mux.HandleFunc("GET /rooms/{name}/floorplan.png", floorplan("png", "image/png"))
	mux.HandleFunc("GET /rooms/{name}/floorplan.geojson", floorplan("geojson", "application/geo+json"))
	mux.HandleFunc("GET /rooms/{name}/floorplan.json", floorplan("json", "application/json"))

	// Measurement endpoints
	m := &measurementHandlers{state: stateTracker, publisher: publisher}
	mux.HandleFunc("GET /rooms/{name}/measurements", m.list)
	mux.HandleFunc("POST /rooms/{name}/measurements", m.add)
	mux.HandleFunc("DELETE /rooms/{name}/measurements", m.clear)
	mux.HandleFunc("DELETE /rooms/{name}/measurements/last", m.removeLast)
	mux.HandleFunc("DELETE /rooms/{name}/measurements/{id}", m.removeByID)
	mux.HandleFunc("PUT /rooms/{name}/measurements/unit", m.setUnit)

	return mux
}

// measurementResponse is the body of every measurement endpoint.
type measurementResponse struct {
	Room         string                  `json:"room"`
	Unit         plan.Unit               `json:"unit"`
	Measurements []plan.MeasurementGroup `json:"measurements"`
	Pending      *r3.Vec                 `json:"pending,omitempty"`
}

// measurementRequest adds a full measurement (start and end) or a single
// tap (point).
type measurementRequest struct {
	Start *[3]float64 `json:"start,omitempty"`
	End   *[3]float64 `json:"end,omitempty"`
	Point *[3]float64 `json:"point,omitempty"`
	Scale float64     `json:"scale,omitempty"`
}

type measurementHandlers struct {
	state     *plan.StateTracker
	publisher *plan.Publisher
}

func vec(v [3]float64) r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// respond writes the current measurement state of a room with status.
func (h *measurementHandlers) respond(w http.ResponseWriter, name string, status int, ms *plan.MeasurementSet) {
	resp := measurementResponse{Room: name, Unit: ms.Unit(), Measurements: ms.Groups()}
	if p, ok := ms.Pending(); ok {
		resp.Pending = &p
	}
	writeJSON(w, status, resp)
}

// mutate runs fn under the room's measurement lock, publishes the result
// and responds. fn returns the status to send.
func (h *measurementHandlers) mutate(w http.ResponseWriter, r *http.Request, fn func(*plan.MeasurementSet) (int, error)) {
	name := r.PathValue("name")
	err := h.state.WithMeasurements(name, func(ms *plan.MeasurementSet) error {
		status, err := fn(ms)
		if err != nil {
			return err
		}
		if h.publisher != nil {
			if err := h.publisher.PublishMeasurements(name, ms.Groups(), ms.Unit()); err != nil {
				log.Printf("[HTTP] Error publishing measurements for %s: %v", name, err)
			}
		}
		if status == http.StatusNoContent {
			w.WriteHeader(status)
			return nil
		}
		h.respond(w, name, status, ms)
		return nil
	})
	writeMeasurementError(w, name, err)
}

func (h *measurementHandlers) list(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	err := h.state.WithMeasurements(name, func(ms *plan.MeasurementSet) error {
		h.respond(w, name, http.StatusOK, ms)
		return nil
	})
	writeMeasurementError(w, name, err)
}

func (h *measurementHandlers) add(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	switch {
	case req.Point != nil && req.Start == nil && req.End == nil:
	case req.Point == nil && req.Start != nil && req.End != nil:
	default:
		http.Error(w, "send either start and end, or a single point", http.StatusBadRequest)
		return
	}

	h.mutate(w, r, func(ms *plan.MeasurementSet) (int, error) {
		if req.Point != nil {
			if _, done := ms.Tap(vec(*req.Point), req.Scale); !done {
				return http.StatusAccepted, nil
			}
			return http.StatusCreated, nil
		}
		ms.Add(vec(*req.Start), vec(*req.End), req.Scale)
		return http.StatusCreated, nil
	})
}

func (h *measurementHandlers) clear(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ms *plan.MeasurementSet) (int, error) {
		ms.Clear()
		return http.StatusNoContent, nil
	})
}

func (h *measurementHandlers) removeLast(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ms *plan.MeasurementSet) (int, error) {
		if _, ok := ms.RemoveLast(); !ok {
			return 0, errNoMeasurement
		}
		return http.StatusOK, nil
	})
}

func (h *measurementHandlers) removeByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	h.mutate(w, r, func(ms *plan.MeasurementSet) (int, error) {
		i := ms.IndexOfID(id)
		if i < 0 {
			return 0, errNoMeasurement
		}
		ms.RemoveAt(i)
		return http.StatusOK, nil
	})
}

func (h *measurementHandlers) setUnit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Unit string `json:"unit"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	unit, err := plan.ParseUnit(req.Unit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mutate(w, r, func(ms *plan.MeasurementSet) (int, error) {
		ms.SetUnit(unit)
		return http.StatusOK, nil
	})
}

var errNoMeasurement = errors.New("measurement not found")

func writeMeasurementError(w http.ResponseWriter, name string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, plan.ErrRoomNotFound):
		http.Error(w, fmt.Sprintf("room %q not found", name), http.StatusNotFound)
	case errors.Is(err, errNoMeasurement):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// publishPlan publishes fp when a publisher is configured.
func publishPlan(publisher *plan.Publisher, name string, fp *plan.FloorPlan) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishFloorPlan(name, fp); err != nil {
		log.Printf("[HTTP] Error publishing floor plan for %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[HTTP] Error encoding response: %v", err)
	}
}
