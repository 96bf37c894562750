package handler

import "net/http"

// HandleHealth reports that the process is up. It does not touch the store,
// so a slow database never makes the orchestrator restart the pod.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
