package hs

import (
	"os"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/matchlog/matchlog/internal/combatlog/hslog"
	"github.com/matchlog/matchlog/internal/logging"
	"github.com/matchlog/matchlog/internal/reports"
)

const testPartition = "hs_match1"

var sampleMatch = []string{
	"1700000000|CREATE_GAME",
	"1700000000|GameEntity EntityID=1",
	"1700000000|tag=TURN value=1",
	"1700000000|Player EntityID=2 PlayerID=1 GameAccountId=[hi=1 lo=2]",
	"1700000000|Player EntityID=3 PlayerID=2 GameAccountId=[hi=1 lo=3]",
	"1700000010|BLOCK_START BlockType=PLAY Entity=[entityName=Fireball id=7 zone=HAND zonePos=1 cardId=CS2_029 player=1] EffectCardId= EffectIndex=0 Target=0",
	"1700000010|FULL_ENTITY - Creating ID=7 CardID=CS2_029",
	"1700000010|tag=ZONE value=PLAY",
	"1700000010|SUB_SPELL_START - SpellPrefabGUID=FireballSpell",
	"1700000010|TAG_CHANGE Entity=GameEntity tag=TURN value=2",
	// No SUB_SPELL_END: the block boundary must close the span.
	"1700000011|BLOCK_END",
	"1700000020|TAG_CHANGE Entity=Alice tag=PLAYSTATE value=WON",
	"1700000020|TAG_CHANGE Entity=Bob tag=PLAYSTATE value=LOST",
	"1700000020|TAG_CHANGE Entity=GameEntity tag=STATE value=COMPLETE",
}

func replay(t *testing.T, g *MatchGenerator, lines []string) {
	t.Helper()

	grammar := hslog.NewGrammar()
	for _, line := range lines {
		enc, err := grammar.ParseLine(testPartition, line, nil)
		if err != nil {
			t.Fatalf("ParseLine(%q) error = %v", line, err)
		}
		p, err := hslog.DecodePacket(enc.Data)
		if err != nil {
			t.Fatalf("DecodePacket() error = %v", err)
		}
		if err := g.Handle(p); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}
}

func TestMatchGeneratorSummary(t *testing.T) {
	g := NewMatchGenerator(testPartition, t.TempDir())
	replay(t, g, sampleMatch)

	if err := g.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	var summary MatchSummary
	found := false
	for _, rep := range g.Reports() {
		static, ok := rep.(*reports.StaticReport)
		if !ok {
			continue
		}
		data, err := os.ReadFile(static.Path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if err := json.Unmarshal(data, &summary); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		found = true
	}
	if !found {
		t.Fatalf("static summary report missing")
	}

	if summary.NumTurns != 2 {
		t.Errorf("turns = %d, want 2", summary.NumTurns)
	}
	if !summary.Completed {
		t.Errorf("completed = false, want true")
	}
	if len(summary.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(summary.Players))
	}

	alice, bob := summary.Players[0], summary.Players[1]
	if alice.Name != "Alice" || !alice.Won {
		t.Errorf("player 1 = %+v, want Alice winning", alice)
	}
	if bob.Name != "Bob" || bob.Won {
		t.Errorf("player 2 = %+v, want Bob losing", bob)
	}

	if summary.MatchStart.Unix() != 1700000000 || summary.MatchEnd.Unix() != 1700000020 {
		t.Errorf("match bounds = %v..%v", summary.MatchStart, summary.MatchEnd)
	}
}

func TestMachineBlockStack(t *testing.T) {
	g := NewMatchGenerator(testPartition, t.TempDir())
	replay(t, g, sampleMatch)

	// Every span closed: only the root game frame remains.
	if depth := g.machine.stack.Depth(); depth != 1 {
		t.Errorf("stack depth = %d, want 1", depth)
	}
}

func TestMachineEntityTags(t *testing.T) {
	g := NewMatchGenerator(testPartition, t.TempDir())
	replay(t, g, sampleMatch)

	card := g.machine.state.entities["7"]
	if card == nil {
		t.Fatalf("entity 7 missing")
	}
	if card["CardID"] != "CS2_029" {
		t.Errorf("CardID = %q, want CS2_029", card["CardID"])
	}
	if card["ZONE"] != "PLAY" {
		t.Errorf("ZONE = %q, want PLAY (tag inside block must attach to the created entity)", card["ZONE"])
	}
}

func TestMachineBracketedEntityRef(t *testing.T) {
	g := NewMatchGenerator(testPartition, t.TempDir())
	replay(t, g, []string{
		"1700000000|GameEntity EntityID=1",
		"1700000001|FULL_ENTITY - Creating ID=9 CardID=EX1_001",
		"1700000002|TAG_CHANGE Entity=[entityName=Whelp id=9 zone=PLAY] tag=DAMAGE value=2",
	})

	if got := g.machine.state.entities["9"]["DAMAGE"]; got != "2" {
		t.Errorf("DAMAGE = %q, want 2", got)
	}
}

func TestContainerMatch(t *testing.T) {
	c := NewContainer(testPartition, t.TempDir(), logging.NewDefault())

	grammar := hslog.NewGrammar()
	for _, line := range sampleMatch {
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
	if got := len(c.Reports()); got != 2 {
		t.Errorf("reports = %d, want static summary plus dynamic row", got)
	}
}
