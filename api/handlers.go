package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"sessioncore/activity"
)

const (
	// maxAuthBodySize bounds credential and profile payloads.
	maxAuthBodySize = 64 << 10
	// maxSignalBodySize bounds the tiny activity/visibility beacons.
	maxSignalBodySize = 1 << 10
)

// decodeJSON reads and decodes a JSON request body into T, enforcing a size
// limit and rejecting trailing garbage. On failure it writes the error
// response itself and returns ok=false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
		}
		return v, false
	}
	if dec.More() {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return v, false
	}
	return v, true
}

// GetSession handles GET /session. It runs a validation pass first so a
// session that went stale while nobody was asking is rejected here rather
// than reported as live.
func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	a.core.Revalidate(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{
		State:    string(a.core.CurrentState()),
		Snapshot: a.core.Snapshot(),
	})
}

// Refresh handles POST /session/refresh. The attempt is guarded by the
// scheduler's minimum interval, so hammering this endpoint cannot stampede
// the identity provider; a skipped attempt is still a 202.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	a.core.RequestRefresh(r.Context())
	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "refresh requested"})
}

// ReportActivity handles POST /session/activity. The signal is published on
// the activity bus; whether it stamps anything depends on whether the
// tracker is armed.
func (a *API) ReportActivity(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ActivityRequest](w, r, maxSignalBodySize)
	if !ok {
		return
	}
	sig := activity.Signal(req.Signal)
	if !validSignal(sig) {
		writeError(w, http.StatusBadRequest, "unknown activity signal")
		return
	}
	a.bus.Publish(sig)
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// ReportVisibility handles POST /session/visibility.
func (a *API) ReportVisibility(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[VisibilityRequest](w, r, maxSignalBodySize)
	if !ok {
		return
	}
	a.core.ReportVisibility(req.Visible)
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func validSignal(sig activity.Signal) bool {
	for _, s := range activity.Signals {
		if s == sig {
			return true
		}
	}
	return false
}
