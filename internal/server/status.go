package server

import (
	"github.com/nishisan-dev/redistore/internal/primary"
	"github.com/nishisan-dev/redistore/internal/replica"
	"github.com/nishisan-dev/redistore/internal/server/observability"
	"github.com/nishisan-dev/redistore/internal/store"
)

// nodeStatus adapts this node's live replication/store state to
// observability.StatusProvider, keeping the admin HTTP package free of
// any dependency on internal/primary, internal/replica or
// internal/store.
type nodeStatus struct {
	store   *store.Store
	primary *primary.Primary // non-nil only when acting as primary
	replica *replica.Client  // non-nil only when acting as replica
}

func (n *nodeStatus) Status() observability.StatusInfo {
	info := observability.StatusInfo{Keys: n.store.Len()}
	switch {
	case n.primary != nil:
		info.Role = "master"
		info.ReplID = n.primary.ReplID()
		info.ReplOffset = n.primary.Offset()
		info.ConnectedReplicas = len(n.primary.Replicas())
	case n.replica != nil:
		info.Role = "slave"
		info.ReplOffset = n.replica.Offset()
	}
	return info
}

func (n *nodeStatus) ReplicaList() []observability.ReplicaInfo {
	if n.primary == nil {
		return nil
	}
	replicas := n.primary.Replicas()
	out := make([]observability.ReplicaInfo, len(replicas))
	for i, r := range replicas {
		out[i] = observability.ReplicaInfo{
			Addr:          r.Addr,
			ListeningPort: r.ListeningPort,
			AckOffset:     r.AckOffset(),
		}
	}
	return out
}
