package wow

import (
	"fmt"
	"time"

	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/recap"
	"github.com/matchlog/matchlog/internal/reports"
)

// recapWindow is how far back a death recap reaches.
const recapWindow = 5 * time.Second

// RecapHit is one damage event leading up to a death.
type RecapHit struct {
	SourceGUID string `json:"sourceGuid"`
	SourceName string `json:"sourceName"`
	SpellID    int64  `json:"spellId,omitempty"`
	SpellName  string `json:"spellName,omitempty"`
	Amount     int64  `json:"amount"`
	Swing      bool   `json:"swing,omitempty"`
}

// Death is one death with its trailing damage recap.
type Death struct {
	ID        string                      `json:"id"`
	GUID      string                      `json:"guid"`
	Name      string                      `json:"name"`
	Timestamp time.Time                   `json:"timestamp"`
	Recap     []recap.Snapshotted[RecapHit] `json:"recap"`
}

// DeathReport is the static artifact listing every death in order.
type DeathReport struct {
	PartitionID string  `json:"partitionId"`
	Deaths      []Death `json:"deaths"`
}

// DeathsGenerator buffers incoming damage per unit and snapshots the buffer
// when the unit dies. Each death gets a stable sequence-derived identifier
// so recompilation produces the same artifact.
type DeathsGenerator struct {
	partitionID string
	workDir     string

	buffer *recap.Buffer[RecapHit]
	deaths []Death

	finished []reports.Report
}

func NewDeathsGenerator(partitionID, workDir string) *DeathsGenerator {
	return &DeathsGenerator{
		partitionID: partitionID,
		workDir:     workDir,
		buffer:      recap.NewBuffer[RecapHit](recapWindow),
	}
}

func (g *DeathsGenerator) Name() string { return "deaths" }

func (g *DeathsGenerator) Handle(p *wowlog.Packet) error {
	ev := p.Event
	if ev == nil {
		return nil
	}

	switch ev.Type {
	case wowlog.EventDamage:
		guid := unitGUID(ev.Dest)
		if guid == "" {
			return nil
		}
		hit := RecapHit{Amount: ev.Damage.Amount, Swing: ev.Damage.Swing}
		if ev.Source != nil {
			hit.SourceGUID = ev.Source.GUID
			hit.SourceName = ev.Source.Name
		}
		if ev.Spell != nil {
			hit.SpellID = ev.Spell.ID
			hit.SpellName = ev.Spell.Name
		}
		g.buffer.Push(guid, ev.Timestamp, hit)

	case wowlog.EventUnitDied:
		guid := unitGUID(ev.Dest)
		if guid == "" {
			return nil
		}
		g.deaths = append(g.deaths, Death{
			ID:        fmt.Sprintf("%s-death-%d", g.partitionID, len(g.deaths)),
			GUID:      guid,
			Name:      ev.Dest.Name,
			Timestamp: ev.Timestamp,
			Recap:     g.buffer.Snapshot(guid, ev.Timestamp),
		})
	}
	return nil
}

func (g *DeathsGenerator) Finalize() error {
	static, err := reports.WriteJSONReport(g.workDir, "deaths", "deaths.json", &DeathReport{
		PartitionID: g.partitionID,
		Deaths:      g.deaths,
	})
	if err != nil {
		return err
	}
	g.finished = []reports.Report{static}
	return nil
}

func (g *DeathsGenerator) Reports() []reports.Report { return g.finished }
