package mcpclient

import (
	"sync/atomic"
)

// Server is one registered MCP tool server.
type Server struct {
	Name      string
	URL       string
	AuthToken string
}

// Registry is the process-wide catalog of tool servers. Reads are lock-free;
// Replace swaps the whole catalog atomically so a future hot-reload never
// mutates what in-flight workers observe.
type Registry struct {
	servers atomic.Value // map[string]Server
}

// NewRegistry builds a registry from the given servers.
func NewRegistry(servers ...Server) *Registry {
	r := &Registry{}
	r.Replace(servers)
	return r
}

// Lookup returns the server registration by name.
func (r *Registry) Lookup(name string) (Server, bool) {
	m := r.servers.Load().(map[string]Server)
	s, ok := m[name]
	return s, ok
}

// Names returns all registered server names.
func (r *Registry) Names() []string {
	m := r.servers.Load().(map[string]Server)
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// Replace installs a new catalog atomically.
func (r *Registry) Replace(servers []Server) {
	m := make(map[string]Server, len(servers))
	for _, s := range servers {
		m[s.Name] = s
	}
	r.servers.Store(m)
}
