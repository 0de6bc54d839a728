package wow

import (
	"context"
	"database/sql"
	"sort"

	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/reports"
)

// Character is one roster entry of the match.
type Character struct {
	GUID    string `json:"guid"`
	Name    string `json:"name"`
	SpecID  int32  `json:"specId"`
	Team    int32  `json:"team"`
	Rating  int32  `json:"rating"`
	Ilvl    int32  `json:"ilvl"`
	IsOwner bool   `json:"isOwner"`
}

// Pet links a summoned unit to its owner.
type Pet struct {
	GUID      string `json:"guid"`
	Name      string `json:"name"`
	OwnerGUID string `json:"ownerGuid"`
}

// CharacterReport is the static roster artifact.
type CharacterReport struct {
	PartitionID string      `json:"partitionId"`
	Characters  []Character `json:"characters"`
	Pets        []Pet       `json:"pets"`
}

// CharactersGenerator builds the match roster: every combatant announced by
// the log plus the pet ownership map. Ownership comes from summon events and
// from the advanced owner field when the client logs it.
type CharactersGenerator struct {
	partitionID string
	workDir     string

	combatants map[string]*wowlog.Combatant
	unitNames  map[string]string
	owners     map[string]string

	finished []reports.Report
}

func NewCharactersGenerator(partitionID, workDir string) *CharactersGenerator {
	return &CharactersGenerator{
		partitionID: partitionID,
		workDir:     workDir,
		combatants:  make(map[string]*wowlog.Combatant),
		unitNames:   make(map[string]string),
		owners:      make(map[string]string),
	}
}

func (g *CharactersGenerator) Name() string { return "characters" }

func (g *CharactersGenerator) Handle(p *wowlog.Packet) error {
	ev := p.Event
	if ev == nil {
		return nil
	}

	g.noteUnit(ev.Source)
	g.noteUnit(ev.Dest)

	switch ev.Type {
	case wowlog.EventCombatantAdded:
		g.combatants[ev.Combatant.GUID] = ev.Combatant
	case wowlog.EventSpellSummon:
		if ev.Source != nil && ev.Dest != nil {
			g.owners[ev.Dest.GUID] = ev.Source.GUID
		}
	}

	if adv := ev.Advanced; adv != nil && adv.OwnerGUID != "" && adv.OwnerGUID != wowlog.NilGUID {
		g.owners[adv.UnitGUID] = adv.OwnerGUID
	}
	return nil
}

func (g *CharactersGenerator) noteUnit(u *wowlog.UnitRef) {
	if u == nil || u.GUID == wowlog.NilGUID || u.GUID == "" {
		return
	}
	if u.Name != "" {
		g.unitNames[u.GUID] = u.Name
	}
}

func (g *CharactersGenerator) Finalize() error {
	report := &CharacterReport{PartitionID: g.partitionID}

	for _, c := range g.combatants {
		report.Characters = append(report.Characters, Character{
			GUID:    c.GUID,
			Name:    g.characterName(c),
			SpecID:  c.SpecID,
			Team:    c.Team,
			Rating:  c.Rating,
			Ilvl:    c.Ilvl,
			IsOwner: c.Flags&wowlog.FilterMe == wowlog.FilterMe,
		})
	}
	sort.Slice(report.Characters, func(i, j int) bool {
		return report.Characters[i].GUID < report.Characters[j].GUID
	})

	for pet, owner := range g.owners {
		// Only keep pets whose owner is an actual roster member.
		if _, ok := g.combatants[owner]; !ok {
			continue
		}
		report.Pets = append(report.Pets, Pet{
			GUID:      pet,
			Name:      g.unitNames[pet],
			OwnerGUID: owner,
		})
	}
	sort.Slice(report.Pets, func(i, j int) bool { return report.Pets[i].GUID < report.Pets[j].GUID })

	static, err := reports.WriteJSONReport(g.workDir, "characters", "characters.json", report)
	if err != nil {
		return err
	}

	g.finished = []reports.Report{
		static,
		&combatantRows{partitionID: g.partitionID, characters: report.Characters},
	}
	return nil
}

// characterName prefers the combatant announcement's name, falling back to
// the name seen on event lines. Arena logs announce combatants before any
// unit name appears, so both sources matter.
func (g *CharactersGenerator) characterName(c *wowlog.Combatant) string {
	if c.Name != "" {
		return c.Name
	}
	return g.unitNames[c.GUID]
}

func (g *CharactersGenerator) Reports() []reports.Report { return g.finished }

// combatantRows is the dynamic half of the roster: one upserted row per
// combatant, keyed by partition and GUID so recompilation overwrites.
type combatantRows struct {
	partitionID string
	characters  []Character
}

func (r *combatantRows) Kind() reports.Kind { return reports.Dynamic }
func (r *combatantRows) Canonical() string  { return "characters" }
func (r *combatantRows) Name() string       { return "rows" }

func (r *combatantRows) Apply(ctx context.Context, tx *sql.Tx) error {
	const stmt = `
		INSERT INTO wow_match_combatants
			(partition_id, guid, name, spec_id, team, rating, ilvl, is_owner)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition_id, guid) DO UPDATE SET
			name = excluded.name,
			spec_id = excluded.spec_id,
			team = excluded.team,
			rating = excluded.rating,
			ilvl = excluded.ilvl,
			is_owner = excluded.is_owner`

	for _, c := range r.characters {
		if _, err := tx.ExecContext(ctx, stmt,
			r.partitionID, c.GUID, c.Name, c.SpecID, c.Team, c.Rating, c.Ilvl, c.IsOwner); err != nil {
			return err
		}
	}
	return nil
}
