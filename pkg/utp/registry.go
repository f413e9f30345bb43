package utp

// handle refers to an endpoint through a registry.  A handle goes stale when
// its endpoint is released; slot reuse bumps the generation so stale handles
// never resolve to a newer endpoint.
type handle struct {
	idx uint32
	gen uint32
}

type slot struct {
	gen uint32
	ep  *Endpoint
}

// registry is shared by a listener and every endpoint it accepts.
type registry struct {
	slots []slot
	free  []uint32
	live  int
}

func newRegistry() *registry { return new(registry) }

func (r *registry) register(e *Endpoint) handle {
	r.live++

	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].ep = e
		return handle{idx: idx, gen: r.slots[idx].gen}
	}

	r.slots = append(r.slots, slot{gen: 1, ep: e})
	return handle{idx: uint32(len(r.slots) - 1), gen: 1}
}

func (r *registry) resolve(h handle) (*Endpoint, bool) {
	if int(h.idx) >= len(r.slots) {
		return nil, false
	}

	s := r.slots[h.idx]
	if s.gen != h.gen || s.ep == nil {
		return nil, false
	}

	return s.ep, true
}

func (r *registry) release(h handle) {
	if _, ok := r.resolve(h); !ok {
		return
	}

	r.slots[h.idx].ep = nil
	r.slots[h.idx].gen++
	r.free = append(r.free, h.idx)
	r.live--
}

func (r *registry) Len() int { return r.live }
