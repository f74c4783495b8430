package trigger

import (
	"encoding/json"
	"net/http"
)

// ServeHTTP implements http.Handler: method check, JSON body decode,
// status/body write. cmd/server mounts this at a single catch-all path
// (e.g. "/webhooks/"); routing to the right workflow happens here via the
// method+path lookup registered by AddWorkflow, not via the host router,
// since the set of valid paths changes as workflows are added and removed.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.routeMu.RLock()
	route, ok := d.webhookRoutes[routeKey(r.Method, r.URL.Path)]
	if !ok {
		route, ok = d.webhookRoutes[routeKey("", r.URL.Path)]
	}
	d.routeMu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var payload map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["nodeId"] = route.nodeID.String()

	select {
	case d.fires <- fireRequest{workflowID: route.workflowID, triggerKind: "webhook", input: payload}:
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "accepted"})
}
