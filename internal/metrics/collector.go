package metrics

import (
	"github.com/procurepro/tbe/internal/cache"
	"github.com/procurepro/tbe/internal/store"
)

// Stats is the operational snapshot served by the stats endpoint.
type Stats struct {
	Evaluations       map[string]int64       `json:"evaluations"`
	BidsEvaluated     int64                  `json:"bids_evaluated"`
	BidsDisqualified  int64                  `json:"bids_disqualified"`
	NoCompliantVendor int64                  `json:"no_compliant_vendor"`
	Previews          int64                  `json:"previews"`
	StoredRecords     int                    `json:"stored_records"`
	Cache             cache.Stats            `json:"cache"`
	Series            map[string][]DataPoint `json:"series"`
	RedisPersisted    bool                   `json:"redis_persisted"`
	UptimeSeconds     float64                `json:"uptime_seconds"`
}

// Collector refreshes gauges from the store and cache and assembles Stats.
type Collector struct {
	metrics *Metrics
	records *store.Service
	cache   cache.Cache
}

// NewCollector creates a collector. records and c may be nil.
func NewCollector(m *Metrics, records *store.Service, c cache.Cache) *Collector {
	return &Collector{metrics: m, records: records, cache: c}
}

// Collect updates the stored-record and cache gauges and returns a
// snapshot.
func (c *Collector) Collect() Stats {
	m := c.metrics
	s := Stats{
		Evaluations:       map[string]int64{},
		BidsEvaluated:     m.BidsEvaluated.Value(),
		BidsDisqualified:  m.BidsDisqualified.Value(),
		NoCompliantVendor: m.NoCompliantVendor.Value(),
		Previews:          m.Previews.Value(),
		Series:            m.TimeSeries.Snapshot(),
		RedisPersisted:    m.IsRedisPersisted(),
		UptimeSeconds:     m.UptimeSeconds(),
	}
	for _, ctr := range m.Evaluations.GetAll() {
		s.Evaluations[ctr.Labels()["status"]] = ctr.Value()
	}

	if c.records != nil {
		s.StoredRecords = c.records.Count()
		m.UpdateStoredCount(s.StoredRecords)
	}
	if c.cache != nil {
		s.Cache = c.cache.Stats()
		m.UpdateCacheSize(s.Cache.Type, s.Cache.Size)
	}
	return s
}
