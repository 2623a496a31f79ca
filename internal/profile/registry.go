package profile

import "sync"

// Registry holds every configured profile in declaration order. Profiles are
// created once at startup and never removed; only their stats mutate. All
// access goes through the registry lock so the supervisor loop and the
// status endpoint can read concurrently.
type Registry struct {
	mu       sync.RWMutex
	profiles []*Profile
	byName   map[string]*Profile
}

// NewRegistry builds a registry from configured profiles. Declaration order
// is preserved; it breaks scoring ties.
func NewRegistry(profiles []Profile) *Registry {
	r := &Registry{
		byName: make(map[string]*Profile, len(profiles)),
	}
	for i := range profiles {
		p := profiles[i]
		if _, dup := r.byName[p.Name]; dup {
			continue
		}
		cp := &p
		r.profiles = append(r.profiles, cp)
		r.byName[p.Name] = cp
	}
	return r
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// Names returns profile names in declaration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.profiles))
	for i, p := range r.profiles {
		names[i] = p.Name
	}
	return names
}

// View returns a copy of all profiles in declaration order.
func (r *Registry) View() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Profile, len(r.profiles))
	for i, p := range r.profiles {
		out[i] = *p
	}
	return out
}

// Get returns a copy of the named profile.
func (r *Registry) Get(name string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[name]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// UpdateStats applies fn to the named profile's stats under the lock.
// Unknown names are ignored.
func (r *Registry) UpdateStats(name string, fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.byName[name]; ok {
		fn(&p.Stats)
	}
}

// ApplyStats merges persisted stats into the registry at startup. Profiles
// absent from the snapshot keep zero-valued stats; snapshot entries for
// unconfigured profiles are dropped.
func (r *Registry) ApplyStats(saved map[string]Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, st := range saved {
		if p, ok := r.byName[name]; ok {
			p.Stats = st
		}
	}
}

// Snapshot returns a copy of every profile's stats keyed by name, for
// persistence.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.profiles))
	for _, p := range r.profiles {
		out[p.Name] = p.Stats
	}
	return out
}
