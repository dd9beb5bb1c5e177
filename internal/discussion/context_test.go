package discussion

import (
	"strings"
	"testing"
)

func TestDigestSentinelWhenEmpty(t *testing.T) {
	c := NewSharedContext(3, 150)
	got := c.Digest()
	if len(got) != 1 || got[0] != noHistoryLine {
		t.Fatalf("Digest = %v, want sentinel", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestDigestWindowKeepsRecentRounds(t *testing.T) {
	c := NewSharedContext(2, 150)
	c.Record("round 1", "surgery", "resect")
	c.Record("round 2", "oncology", "stage first")
	c.Record("round 3", "pharmacy", "adjust dosing")

	got := c.Digest()
	if len(got) != 2 {
		t.Fatalf("Digest len = %d, want 2: %v", len(got), got)
	}
	if !strings.Contains(got[0], "round 2") || !strings.Contains(got[1], "round 3") {
		t.Errorf("window kept wrong rounds: %v", got)
	}
	if strings.Contains(strings.Join(got, "\n"), "round 1") {
		t.Errorf("round 1 should have aged out: %v", got)
	}
}

func TestDigestTruncatesLongEntries(t *testing.T) {
	c := NewSharedContext(3, 10)
	c.Record("round 1", "radiology", "0123456789ABCDEF")
	c.Record("round 1", "nursing", "short")

	got := c.Digest()
	if want := "[round 1] radiology: 0123456789..."; got[0] != want {
		t.Errorf("digest[0] = %q, want %q", got[0], want)
	}
	if want := "[round 1] nursing: short"; got[1] != want {
		t.Errorf("digest[1] = %q, want %q", got[1], want)
	}
}

func TestDigestTruncationIsRuneSafe(t *testing.T) {
	c := NewSharedContext(1, 4)
	c.Record("round 1", "pathology", "白血球数значение")

	got := c.Digest()[0]
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncation: %q", got)
	}
	if !strings.Contains(got, "白血球数") {
		t.Errorf("rune boundary broken: %q", got)
	}
}

func TestAddCaseNoteLandsInCurrentRound(t *testing.T) {
	c := NewSharedContext(3, 150)
	c.Record("round 1", "surgery", "opinion")
	c.AddCaseNote("patient is on anticoagulants")

	got := c.Digest()
	if len(got) != 2 {
		t.Fatalf("Digest len = %d, want 2: %v", len(got), got)
	}
	if want := "[round 1] moderator: Case update: patient is on anticoagulants"; got[1] != want {
		t.Errorf("digest[1] = %q, want %q", got[1], want)
	}
}

func TestAddCaseNoteBeforeAnyRound(t *testing.T) {
	c := NewSharedContext(3, 150)
	c.AddCaseNote("initial labs attached")

	got := c.Digest()
	if len(got) != 1 || !strings.Contains(got[0], "[case update] moderator:") {
		t.Errorf("Digest = %v", got)
	}
}

func TestRecordGroupsByLabel(t *testing.T) {
	c := NewSharedContext(10, 150)
	c.Record("round 1", "a", "x")
	c.Record("round 1", "b", "y")
	c.Record("broadcast 1", "a", "z")
	c.Record("round 2", "a", "w")

	if c.Len() != 4 {
		t.Errorf("Len = %d, want 4", c.Len())
	}
	got := c.Digest()
	if len(got) != 4 {
		t.Fatalf("Digest len = %d, want 4", len(got))
	}
	if !strings.HasPrefix(got[2], "[broadcast 1]") {
		t.Errorf("digest[2] = %q", got[2])
	}
}
