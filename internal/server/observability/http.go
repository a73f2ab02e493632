package observability

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// StatusInfo is the JSON body GET /status serves: a machine-readable
// mirror of INFO replication's fields plus the store's key count.
type StatusInfo struct {
	Role              string `json:"role"` // master | slave
	ReplID            string `json:"repl_id,omitempty"`
	ReplOffset        int64  `json:"repl_offset"`
	ConnectedReplicas int    `json:"connected_replicas"`
	Keys              int    `json:"keys"`
}

// ReplicaInfo is one entry in GET /replicas' JSON array.
type ReplicaInfo struct {
	Addr          string `json:"addr"`
	ListeningPort int    `json:"listening_port,omitempty"`
	AckOffset     int64  `json:"ack_offset"`
}

// StatusProvider decouples this package from internal/primary,
// internal/replica and internal/store: the server wires a concrete
// implementation in, so the admin surface never imports replication or
// storage types directly.
type StatusProvider interface {
	Status() StatusInfo
	ReplicaList() []ReplicaInfo
}

// NewRouter builds the admin HTTP surface: /status, /replicas and
// /events, all gated by acl.Middleware.
func NewRouter(provider StatusProvider, events *EventRing, acl *ACL) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", makeStatusHandler(provider))
	mux.HandleFunc("/replicas", makeReplicasHandler(provider))
	mux.HandleFunc("/events", makeEventsHandler(events))

	return acl.Middleware(mux)
}

func makeStatusHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, provider.Status())
	}
}

func makeReplicasHandler(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		replicas := provider.ReplicaList()
		if replicas == nil {
			replicas = []ReplicaInfo{}
		}
		writeJSON(w, http.StatusOK, replicas)
	}
}

func makeEventsHandler(events *EventRing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseInt(r.URL.Query().Get("limit"), 50)
		writeJSON(w, http.StatusOK, events.Recent(limit))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func parseInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return defaultVal
	}
	return v
}
