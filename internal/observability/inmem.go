package observability

import "sync"

// Observation is one recorded event.
type Observation struct {
	Kind    string
	Source  string
	Method  string
	Route   string
	Status  int
	Dur     float64
	OK      bool
	Outcome string
}

// Totals is a snapshot of the Inmem counters.
type Totals struct {
	CacheHits, CacheMiss, CacheStale int
	Admissions                       map[string]int
	Rebuilds, RebuildFailures        int
	Materialized, MaterializeFailed  int
}

// Inmem keeps the last max observations and running totals.
type Inmem struct {
	mu     sync.Mutex
	last   []*Observation
	max    int
	totals struct {
		cacheHits, cacheMiss, cacheStale int
		admissions                       map[string]int
		rebuilds, rebuildFailures        int
		materialized, materializeFailed  int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v *Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushLocked(v)
}

func (m *Inmem) pushLocked(v *Observation) {
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[1:]
	}
}

func (m *Inmem) ObserveLookup(mode string, durMs float64, found bool) {
	m.push(&Observation{Kind: "lookup", Source: mode, Dur: durMs, OK: found})
}

func (m *Inmem) ObserveRebuild(durMs float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.totals.rebuilds++
	} else {
		m.totals.rebuildFailures++
	}
	m.pushLocked(&Observation{Kind: "rebuild", Dur: durMs, OK: ok})
}

func (m *Inmem) ObserveAdmission(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totals.admissions == nil {
		m.totals.admissions = make(map[string]int)
	}
	m.totals.admissions[outcome]++
	m.pushLocked(&Observation{Kind: "admission", Outcome: outcome})
}

func (m *Inmem) ObserveMaterialize(durMs float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.totals.materialized++
	} else {
		m.totals.materializeFailed++
	}
	m.pushLocked(&Observation{Kind: "materialize", Dur: durMs, OK: ok})
}

func (m *Inmem) ObserveHTTP(method, route string, status int, durMs float64) {
	m.push(&Observation{Kind: "http", Method: method, Route: route, Status: status, Dur: durMs})
}

func (m *Inmem) ObserveKafka(processMs float64, ok bool) {
	m.push(&Observation{Kind: "kafka", Dur: processMs, OK: ok})
}

func (m *Inmem) IncCacheHit() {
	m.mu.Lock()
	m.totals.cacheHits++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheMiss() {
	m.mu.Lock()
	m.totals.cacheMiss++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheStale() {
	m.mu.Lock()
	m.totals.cacheStale++
	m.mu.Unlock()
}

// Last returns copies of the retained observations, oldest first.
func (m *Inmem) Last() []Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Observation, len(m.last))
	for i, v := range m.last {
		out[i] = *v
	}
	return out
}

func (m *Inmem) Totals() Totals {
	m.mu.Lock()
	defer m.mu.Unlock()
	adm := make(map[string]int, len(m.totals.admissions))
	for k, v := range m.totals.admissions {
		adm[k] = v
	}
	return Totals{
		CacheHits:         m.totals.cacheHits,
		CacheMiss:         m.totals.cacheMiss,
		CacheStale:        m.totals.cacheStale,
		Admissions:        adm,
		Rebuilds:          m.totals.rebuilds,
		RebuildFailures:   m.totals.rebuildFailures,
		Materialized:      m.totals.materialized,
		MaterializeFailed: m.totals.materializeFailed,
	}
}
