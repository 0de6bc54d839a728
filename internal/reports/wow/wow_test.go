package wow

import (
	"math"
	"os"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog/wowlog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/reports"
)

const testPartition = "wow_abc"

func parsePacket(t *testing.T, line string) *wowlog.Packet {
	t.Helper()

	enc, err := wowlog.NewGrammar().ParseLine(testPartition, line, nil)
	if err != nil {
		t.Fatalf("ParseLine(%q) error = %v", line, err)
	}
	p, err := wowlog.DecodePacket(enc.Data)
	if err != nil {
		t.Fatalf("DecodePacket() error = %v", err)
	}
	return p
}

func feed(t *testing.T, g reports.Generator[wowlog.Packet], lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := g.Handle(parsePacket(t, line)); err != nil {
			t.Fatalf("Handle(%q) error = %v", line, err)
		}
	}
}

func readJSONReport(t *testing.T, reps []reports.Report, canonical, name string, v interface{}) {
	t.Helper()
	for _, rep := range reps {
		if rep.Kind() != reports.Static || rep.Canonical() != canonical || rep.Name() != name {
			continue
		}
		data, err := os.ReadFile(rep.(*reports.StaticReport).Path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		return
	}
	t.Fatalf("report %s/%s not found", canonical, name)
}

func TestCharactersGeneratorRoster(t *testing.T) {
	g := NewCharactersGenerator(testPartition, t.TempDir())

	feed(t, g,
		"1700000000|COMBATANT_ADDED|p1|Alice|0x511|62|0|1800|250",
		"1700000000|COMBATANT_ADDED|p2|Bob|0x512|105|1|1750|248",
		"1700000001|SPELL_SUMMON|p1|Alice|0x511|pet1|Imp|0x1111|688|Summon Imp",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var report CharacterReport
	readJSONReport(t, g.Reports(), "characters", "characters.json", &report)

	if len(report.Characters) != 2 {
		t.Fatalf("characters = %d, want 2", len(report.Characters))
	}
	alice := report.Characters[0]
	if alice.Name != "Alice" || alice.SpecID != 62 || alice.Rating != 1800 {
		t.Errorf("alice = %+v", alice)
	}
	if !alice.IsOwner {
		t.Errorf("alice.IsOwner = false, want true for flags 0x511")
	}
	if report.Characters[1].IsOwner {
		t.Errorf("bob.IsOwner = true, want false for flags 0x512")
	}

	if len(report.Pets) != 1 || report.Pets[0].OwnerGUID != "p1" || report.Pets[0].Name != "Imp" {
		t.Errorf("pets = %+v", report.Pets)
	}
}

func TestCharactersGeneratorAdvancedOwnership(t *testing.T) {
	g := NewCharactersGenerator(testPartition, t.TempDir())

	feed(t, g, "1700000000|COMBATANT_ADDED|p1|Alice|0x511|62|0|1800|250")

	// Advanced damage line carries the pet and owner pair directly.
	state := &wowlog.Packet{
		PartitionID: testPartition,
		Event: &wowlog.Event{
			Type:     wowlog.EventDamage,
			Source:   &wowlog.UnitRef{GUID: "pet9", Name: "Felhunter", Flags: 0x1111},
			Dest:     &wowlog.UnitRef{GUID: "e1", Name: "Boss", Flags: 0x10a48},
			Damage:   &wowlog.DamageInfo{Amount: 100},
			Advanced: &wowlog.AdvancedInfo{UnitGUID: "pet9", OwnerGUID: "p1"},
		},
	}
	if err := g.Handle(state); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var report CharacterReport
	readJSONReport(t, g.Reports(), "characters", "characters.json", &report)
	if len(report.Pets) != 1 || report.Pets[0].GUID != "pet9" {
		t.Errorf("pets = %+v, want pet9 owned by p1", report.Pets)
	}
}

func TestStatsGeneratorTimeline(t *testing.T) {
	dir := t.TempDir()
	g := NewStatsGenerator(testPartition, dir)

	// Damage at t=0,1,2 and t=6: two 5s buckets for the dealer.
	feed(t, g,
		"1700000000|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|100",
		"1700000001|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|200",
		"1700000002|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|300",
		"1700000006|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|500",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var dps *reports.StaticReport
	for _, rep := range g.Reports() {
		if rep.Canonical() == "stats" && rep.Name() == "dps.mlcr" {
			dps = rep.(*reports.StaticReport)
		}
	}
	if dps == nil {
		t.Fatalf("dps timeline report missing")
	}

	f, err := dps.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	cols, err := reports.ReadColumnar(f)
	if err != nil {
		t.Fatalf("ReadColumnar() error = %v", err)
	}
	if len(cols) != 3 || len(cols[0].Ints) != 2 {
		t.Fatalf("dps columns = %+v, want 2 rows", cols)
	}
	// Bucket one: (100+200+300)/5s = 120/s. Bucket two: 500/5 = 100/s.
	if cols[2].Floats[0] != 120 || cols[2].Floats[1] != 100 {
		t.Errorf("dps values = %v, want [120 100]", cols[2].Floats)
	}

	var summary StatsSummary
	readJSONReport(t, g.Reports(), "stats", "summary.json", &summary)
	if summary.Units["p1"].DamageDealt != 1100 {
		t.Errorf("damage dealt = %d, want 1100", summary.Units["p1"].DamageDealt)
	}
	if summary.Units["e1"].DamageReceived != 1100 {
		t.Errorf("damage received = %d, want 1100", summary.Units["e1"].DamageReceived)
	}
}

func TestStatsGeneratorBucketAlignment(t *testing.T) {
	g := NewStatsGenerator(testPartition, t.TempDir())

	// The roster line anchors the bucket grid at t=0; damage starting
	// mid-bucket must still land in [0,5) and [5,10), not in a grid shifted
	// to the first damage timestamp.
	feed(t, g,
		"1700000000|COMBATANT_ADDED|p1|Alice|0x511|62|0|1800|250",
		"1700000003|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|100",
		"1700000005|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|50",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var dps *reports.StaticReport
	for _, rep := range g.Reports() {
		if rep.Canonical() == "stats" && rep.Name() == "dps.mlcr" {
			dps = rep.(*reports.StaticReport)
		}
	}
	if dps == nil {
		t.Fatalf("dps timeline report missing")
	}

	f, err := dps.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	cols, err := reports.ReadColumnar(f)
	if err != nil {
		t.Fatalf("ReadColumnar() error = %v", err)
	}
	if len(cols[0].Ints) != 2 {
		t.Fatalf("dps rows = %d, want 2", len(cols[0].Ints))
	}
	if cols[0].Ints[0] != 1700000000000 || cols[0].Ints[1] != 1700000005000 {
		t.Errorf("bucket starts = %v, want grid multiples of the match start", cols[0].Ints)
	}
	if cols[2].Floats[0] != 20 || cols[2].Floats[1] != 10 {
		t.Errorf("dps values = %v, want [20 10]", cols[2].Floats)
	}
}

func TestStatsGeneratorHitDistribution(t *testing.T) {
	g := NewStatsGenerator(testPartition, t.TempDir())

	feed(t, g,
		"1700000000|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|100",
		"1700000001|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|200",
		"1700000002|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|300",
		"1700000003|SPELL_DAMAGE|p2|Bob|0x512|e1|Boss|0x10a48|5678|Smite|0x2|400",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var summary StatsSummary
	readJSONReport(t, g.Reports(), "stats", "summary.json", &summary)

	hits := summary.Units["p1"].Hits
	if hits == nil {
		t.Fatalf("p1 hit stats missing")
	}
	if hits.Count != 3 || hits.Avg != 200 || hits.Max != 300 {
		t.Errorf("p1 hits = %+v, want count 3 avg 200 max 300", hits)
	}
	if math.Abs(hits.StdDev-81.64965809277259) > 1e-9 {
		t.Errorf("p1 hit stddev = %v, want ~81.65", hits.StdDev)
	}

	if summary.AllHits == nil {
		t.Fatalf("match-wide hit stats missing")
	}
	if summary.AllHits.Count != 4 || summary.AllHits.Avg != 250 || summary.AllHits.Max != 400 {
		t.Errorf("all hits = %+v, want count 4 avg 250 max 400", summary.AllHits)
	}
	// The target only receives; no hit distribution of its own.
	if summary.Units["e1"].Hits != nil {
		t.Errorf("e1 hits = %+v, want none for a pure target", summary.Units["e1"].Hits)
	}
}

func TestStatsGeneratorOverheal(t *testing.T) {
	g := NewStatsGenerator(testPartition, t.TempDir())

	feed(t, g, "1700000000|SPELL_HEAL|p1|Alice|0x511|p2|Bob|0x512|774|Rejuvenation|1000|400")

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var summary StatsSummary
	readJSONReport(t, g.Reports(), "stats", "summary.json", &summary)
	if got := summary.Units["p1"].HealsDealt; got != 600 {
		t.Errorf("effective healing = %d, want 600", got)
	}
	if got := summary.Units["p1"].Overheal; got != 400 {
		t.Errorf("overheal = %d, want 400", got)
	}
}

func TestDeathsGeneratorRecap(t *testing.T) {
	g := NewDeathsGenerator(testPartition, t.TempDir())

	feed(t, g,
		"1700000000|SPELL_DAMAGE|e1|Boss|0x10a48|p1|Alice|0x511|5678|Cleave|0x1|400",
		"1700000002|SPELL_DAMAGE|e1|Boss|0x10a48|p1|Alice|0x511|5678|Cleave|0x1|600",
		"1700000004|UNIT_DIED|p1|Alice|0x511",
		// A second death must start with a clean buffer.
		"1700000010|UNIT_DIED|p2|Bob|0x512",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var report DeathReport
	readJSONReport(t, g.Reports(), "deaths", "deaths.json", &report)

	if len(report.Deaths) != 2 {
		t.Fatalf("deaths = %d, want 2", len(report.Deaths))
	}

	first := report.Deaths[0]
	if first.GUID != "p1" || first.Name != "Alice" {
		t.Errorf("death identity = %s/%s", first.GUID, first.Name)
	}
	if len(first.Recap) != 2 {
		t.Fatalf("recap events = %d, want 2", len(first.Recap))
	}
	if first.Recap[0].OffsetMS != -4000 || first.Recap[1].OffsetMS != -2000 {
		t.Errorf("recap offsets = %d/%d, want -4000/-2000", first.Recap[0].OffsetMS, first.Recap[1].OffsetMS)
	}
	if first.Recap[1].Value.Amount != 600 {
		t.Errorf("recap amount = %d, want 600", first.Recap[1].Value.Amount)
	}

	if len(report.Deaths[1].Recap) != 0 {
		t.Errorf("second death recap = %d events, want 0", len(report.Deaths[1].Recap))
	}
}

func TestEncountersGeneratorPairing(t *testing.T) {
	g := NewEncountersGenerator(testPartition)

	feed(t, g,
		"1700000000|ENCOUNTER_START|2820|Raid Boss|16|20",
		"1700000100|ENCOUNTER_END|2820|Raid Boss|16|20|1",
		"1700000200|ENCOUNTER_START|2821|Next Boss|16|20",
	)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	rows := g.Reports()[0].(*encounterRows)
	if len(rows.encounters) != 2 {
		t.Fatalf("encounters = %d, want 2", len(rows.encounters))
	}

	done := rows.encounters[0]
	if !done.Success || done.End == nil {
		t.Errorf("finished encounter = %+v, want success with end time", done)
	}
	cut := rows.encounters[1]
	if cut.Success || cut.End != nil {
		t.Errorf("cut-off encounter = %+v, want open wipe", cut)
	}
}

func TestContainerFullSet(t *testing.T) {
	c := NewContainer(testPartition, t.TempDir(), logging.NewDefault())

	lines := []string{
		"1700000000|COMBATANT_ADDED|p1|Alice|0x511|62|0|1800|250",
		"1700000001|SPELL_DAMAGE|p1|Alice|0x511|e1|Boss|0x10a48|1234|Frostbolt|0x10|500",
		"1700000002|UNIT_DIED|e1|Boss|0x10a48",
	}
	grammar := wowlog.NewGrammar()
	for _, line := range lines {
		enc, err := grammar.ParseLine(testPartition, line, nil)
		if err != nil {
			t.Fatalf("ParseLine() error = %v", err)
		}
		if err := c.HandleLine(enc.Data); err != nil {
			t.Fatalf("HandleLine() error = %v", err)
		}
	}

	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(c.Quarantined()) != 0 {
		t.Fatalf("quarantined = %v, want none", c.Quarantined())
	}

	canonicals := make(map[string]bool)
	for _, rep := range c.Reports() {
		canonicals[rep.Canonical()] = true
	}
	for _, want := range []string{"characters", "stats", "deaths", "encounters"} {
		if !canonicals[want] {
			t.Errorf("missing %s report", want)
		}
	}
}
