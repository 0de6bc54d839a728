package wow

import (
	"sort"
	"time"

	"github.com/matchlog/matchlog/internal/aggregation"
	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/reports"
)

// statBucket is the timeline resolution. Throughput values are rates per
// second over each bucket.
const statBucket = 5 * time.Second

// metric names the throughput families.
type metric string

const (
	metricDPS  metric = "dps"  // damage dealt per second, by source
	metricHPS  metric = "hps"  // effective healing per second, by source
	metricDRPS metric = "drps" // damage received per second, by dest
)

var allMetrics = []metric{metricDPS, metricHPS, metricDRPS}

type seriesKey struct {
	metric metric
	guid   string
}

// Totals is the whole-match summary per unit.
type Totals struct {
	DamageDealt    int64     `json:"damageDealt"`
	HealsDealt     int64     `json:"healsDealt"`
	Overheal       int64     `json:"overheal"`
	DamageReceived int64     `json:"damageReceived"`
	Hits           *HitStats `json:"hits,omitempty"`
}

// HitStats describes the distribution of a unit's individual damage hits.
type HitStats struct {
	Count  int64   `json:"count"`
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdDev"`
}

// StatsSummary is the static JSON artifact next to the timelines.
type StatsSummary struct {
	PartitionID string             `json:"partitionId"`
	Units       map[string]*Totals `json:"units"`
	AllHits     *HitStats          `json:"allHits,omitempty"`
}

// StatsGenerator aggregates per-unit throughput into aligned 5 second
// buckets plus whole-match totals. Healing counts net of overheal. All
// windows share the first event's timestamp as their bucket grid reference,
// so the per-unit timelines line up.
type StatsGenerator struct {
	partitionID string
	workDir     string

	refStart time.Time
	windows  map[seriesKey]*aggregation.SlidingWindow
	series   map[metric]*timeline
	totals   map[string]*Totals
	hits     map[string]*aggregation.AggregatedField

	finished []reports.Report
}

// timeline accumulates closed buckets of one metric across all units.
type timeline struct {
	times  []int64
	guids  []string
	values []float64
}

func (t *timeline) add(guid string, b aggregation.Bucket) {
	t.times = append(t.times, b.Start.UnixMilli())
	t.guids = append(t.guids, guid)
	t.values = append(t.values, b.Value)
}

func NewStatsGenerator(partitionID, workDir string) *StatsGenerator {
	series := make(map[metric]*timeline, len(allMetrics))
	for _, m := range allMetrics {
		series[m] = &timeline{}
	}
	return &StatsGenerator{
		partitionID: partitionID,
		workDir:     workDir,
		windows:     make(map[seriesKey]*aggregation.SlidingWindow),
		series:      series,
		totals:      make(map[string]*Totals),
		hits:        make(map[string]*aggregation.AggregatedField),
	}
}

func (g *StatsGenerator) Name() string { return "stats" }

func (g *StatsGenerator) Handle(p *wowlog.Packet) error {
	ev := p.Event
	if ev == nil {
		return nil
	}
	if g.refStart.IsZero() {
		g.refStart = ev.Timestamp
	}

	switch ev.Type {
	case wowlog.EventDamage:
		amount := float64(ev.Damage.Amount)
		if guid := unitGUID(ev.Source); guid != "" {
			g.ingest(metricDPS, guid, ev.Timestamp, amount)
			g.unitTotals(guid).DamageDealt += ev.Damage.Amount
			g.recordHit(guid, amount)
		}
		if guid := unitGUID(ev.Dest); guid != "" {
			g.ingest(metricDRPS, guid, ev.Timestamp, amount)
			g.unitTotals(guid).DamageReceived += ev.Damage.Amount
		}
	case wowlog.EventHeal:
		guid := unitGUID(ev.Source)
		if guid == "" {
			return nil
		}
		effective := ev.Heal.Amount - ev.Heal.Overheal
		if effective < 0 {
			effective = 0
		}
		g.ingest(metricHPS, guid, ev.Timestamp, float64(effective))
		t := g.unitTotals(guid)
		t.HealsDealt += effective
		t.Overheal += ev.Heal.Overheal
	}
	return nil
}

func unitGUID(u *wowlog.UnitRef) string {
	if u == nil || u.GUID == wowlog.NilGUID {
		return ""
	}
	return u.GUID
}

func (g *StatsGenerator) unitTotals(guid string) *Totals {
	t, ok := g.totals[guid]
	if !ok {
		t = &Totals{}
		g.totals[guid] = t
	}
	return t
}

func (g *StatsGenerator) ingest(m metric, guid string, tm time.Time, value float64) {
	key := seriesKey{metric: m, guid: guid}
	w, ok := g.windows[key]
	if !ok {
		w = aggregation.NewPerUnitTimeWindow(g.refStart, statBucket, time.Second)
		g.windows[key] = w
	}
	if b, closed := w.Ingest(tm, value); closed {
		g.series[m].add(guid, b)
	}
}

func (g *StatsGenerator) recordHit(guid string, amount float64) {
	if f, ok := g.hits[guid]; ok {
		f.AddValue(amount)
		return
	}
	g.hits[guid] = aggregation.NewAggregatedField(amount)
}

func (g *StatsGenerator) Finalize() error {
	// Flush open buckets in a stable order so recompiling the same log
	// produces an identical artifact.
	keys := make([]seriesKey, 0, len(g.windows))
	for key := range g.windows {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].guid < keys[j].guid
	})
	for _, key := range keys {
		if b, ok := g.windows[key].Flush(); ok {
			g.series[key.metric].add(key.guid, b)
		}
	}

	var out []reports.Report
	for _, m := range allMetrics {
		tl := g.series[m]
		if len(tl.times) == 0 {
			continue
		}
		static, err := reports.WriteColumnarReport(g.workDir, "stats", string(m)+".mlcr", []reports.Column{
			{Name: "tm", Type: reports.ColumnInt64, Ints: tl.times},
			{Name: "guid", Type: reports.ColumnString, Strings: tl.guids},
			{Name: "value", Type: reports.ColumnFloat64, Floats: tl.values},
		})
		if err != nil {
			return err
		}
		out = append(out, static)
	}

	// Per-unit hit distributions, merged into one match-wide distribution.
	guids := make([]string, 0, len(g.hits))
	for guid := range g.hits {
		guids = append(guids, guid)
	}
	sort.Strings(guids)

	var all *aggregation.AggregatedField
	for _, guid := range guids {
		f := g.hits[guid]
		g.unitTotals(guid).Hits = hitStats(f)
		if all == nil {
			merged := *f
			all = &merged
			continue
		}
		all.Merge(f)
	}
	var allHits *HitStats
	if all != nil {
		allHits = hitStats(all)
	}

	summary, err := reports.WriteJSONReport(g.workDir, "stats", "summary.json", &StatsSummary{
		PartitionID: g.partitionID,
		Units:       g.totals,
		AllHits:     allHits,
	})
	if err != nil {
		return err
	}

	g.finished = append(out, summary)
	return nil
}

func hitStats(f *aggregation.AggregatedField) *HitStats {
	return &HitStats{Count: f.Count, Avg: f.Avg, Max: f.Max, StdDev: f.StdDev()}
}

func (g *StatsGenerator) Reports() []reports.Report { return g.finished }
