// Package directory is an in-memory collab.Directory: agent discovery by
// capability and network-health reporting for the mesh router's auto
// decision and the peer node's DiscoverPeers.
package directory

import (
	"context"
	"sync"

	"github.com/agentmesh/core/internal/meshtypes"
)

// entry is one directory-tracked agent.
type entry struct {
	info      meshtypes.AgentInfo
	connected bool
}

// Directory is a thread-safe in-memory agent directory.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]*entry
	selfID string
}

// New constructs an empty directory. selfID is excluded from discovery
// results.
func New(selfID string) *Directory {
	return &Directory{agents: make(map[string]*entry), selfID: selfID}
}

// Register adds or replaces an agent's directory entry.
func (d *Directory) Register(info meshtypes.AgentInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.agents[info.ID] = &entry{info: info}
}

// MarkConnected records that the mesh already has a live connection to id,
// so DiscoverAgents callers can skip it (the peer node filters connected
// peers itself, but tests and callers may consult this directly).
func (d *Directory) MarkConnected(id string, connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.agents[id]; ok {
		e.connected = connected
	}
}

// Remove deletes an agent from the directory.
func (d *Directory) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, id)
}

// DiscoverAgents returns every registered agent (other than selfID) whose
// capability set intersects capabilities. An empty capabilities filter
// returns every known agent.
func (d *Directory) DiscoverAgents(ctx context.Context, capabilities []string) ([]meshtypes.AgentInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	wanted := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		wanted[c] = true
	}

	var out []meshtypes.AgentInfo
	for id, e := range d.agents {
		if id == d.selfID {
			continue
		}
		if len(wanted) > 0 && !hasAny(e.info.Capabilities, wanted) {
			continue
		}
		out = append(out, e.info)
	}
	return out, nil
}

func hasAny(have []string, wanted map[string]bool) bool {
	for _, c := range have {
		if wanted[c] {
			return true
		}
	}
	return false
}

// NetworkHealth reports total known nodes (including self) and whether the
// mesh looks partitioned. A partition is reported only when at least two
// peers are known (three nodes counting self) and none of them is
// connected; a single-node mesh, or self plus one unconnected peer, is
// never flagged.
func (d *Directory) NetworkHealth(ctx context.Context) (meshtypes.NetworkHealth, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	total := len(d.agents) + 1 // +1 for self, which is never in the map
	connected := 0
	for _, e := range d.agents {
		if e.connected {
			connected++
		}
	}
	partition := total > 2 && connected == 0
	return meshtypes.NetworkHealth{TotalNodes: total, PartitionDetected: partition}, nil
}
