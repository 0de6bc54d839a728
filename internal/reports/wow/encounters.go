package wow

import (
	"context"
	"database/sql"
	"time"

	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/reports"
)

// Encounter is one boss attempt bounded by start/end events. An attempt cut
// off by the end of the log has no end time and counts as a wipe.
type Encounter struct {
	ID         int64
	Name       string
	Difficulty int32
	GroupSize  int32
	Success    bool
	Start      time.Time
	End        *time.Time
}

// EncountersGenerator pairs encounter boundaries into rows for the
// relational store.
type EncountersGenerator struct {
	partitionID string

	open       *Encounter
	encounters []Encounter

	finished []reports.Report
}

func NewEncountersGenerator(partitionID string) *EncountersGenerator {
	return &EncountersGenerator{partitionID: partitionID}
}

func (g *EncountersGenerator) Name() string { return "encounters" }

func (g *EncountersGenerator) Handle(p *wowlog.Packet) error {
	ev := p.Event
	if ev == nil {
		return nil
	}

	switch ev.Type {
	case wowlog.EventEncounterStart:
		// A start while another attempt is open means the previous end
		// event was lost; close it as a wipe.
		if g.open != nil {
			g.encounters = append(g.encounters, *g.open)
		}
		g.open = &Encounter{
			ID:         ev.Encounter.ID,
			Name:       ev.Encounter.Name,
			Difficulty: ev.Encounter.Difficulty,
			GroupSize:  ev.Encounter.GroupSize,
			Start:      ev.Timestamp,
		}

	case wowlog.EventEncounterEnd:
		if g.open == nil || g.open.ID != ev.Encounter.ID {
			return nil
		}
		end := ev.Timestamp
		g.open.End = &end
		g.open.Success = ev.Encounter.Success
		g.encounters = append(g.encounters, *g.open)
		g.open = nil
	}
	return nil
}

func (g *EncountersGenerator) Finalize() error {
	if g.open != nil {
		g.encounters = append(g.encounters, *g.open)
		g.open = nil
	}

	g.finished = []reports.Report{
		&encounterRows{partitionID: g.partitionID, encounters: g.encounters},
	}
	return nil
}

func (g *EncountersGenerator) Reports() []reports.Report { return g.finished }

type encounterRows struct {
	partitionID string
	encounters  []Encounter
}

func (r *encounterRows) Kind() reports.Kind { return reports.Dynamic }
func (r *encounterRows) Canonical() string  { return "encounters" }
func (r *encounterRows) Name() string       { return "rows" }

func (r *encounterRows) Apply(ctx context.Context, tx *sql.Tx) error {
	const stmt = `
		INSERT INTO wow_match_encounters
			(partition_id, encounter_id, name, difficulty, group_size, success, start_tm, end_tm)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_id, encounter_id, start_tm) DO UPDATE SET
			name = excluded.name,
			difficulty = excluded.difficulty,
			group_size = excluded.group_size,
			success = excluded.success,
			end_tm = excluded.end_tm`

	for _, e := range r.encounters {
		var end interface{}
		if e.End != nil {
			end = *e.End
		}
		if _, err := tx.ExecContext(ctx, stmt,
			r.partitionID, e.ID, e.Name, e.Difficulty, e.GroupSize, e.Success, e.Start, end); err != nil {
			return err
		}
	}
	return nil
}
