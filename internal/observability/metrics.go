package observability

type Metrics interface {
	ObserveLookup(mode string, durMs float64, found bool)
	ObserveRebuild(durMs float64, ok bool)
	ObserveAdmission(outcome string)
	ObserveMaterialize(durMs float64, ok bool)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveKafka(processMs float64, ok bool)
	IncCacheHit()
	IncCacheMiss()
	IncCacheStale()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveLookup(string, float64, bool)      {}
func (Noop) ObserveRebuild(float64, bool)             {}
func (Noop) ObserveAdmission(string)                  {}
func (Noop) ObserveMaterialize(float64, bool)         {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) ObserveKafka(float64, bool)               {}
func (Noop) IncCacheHit()                             {}
func (Noop) IncCacheMiss()                            {}
func (Noop) IncCacheStale()                           {}
