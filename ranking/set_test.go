package ranking

import (
	"math"
	"strings"
	"testing"
	"time"
)

// fixedSet returns a set with a controllable clock and a no-op shuffle so
// tier ordering is observable.
func fixedSet() (*AccountSet, *time.Time) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s := NewAccountSet()
	s.now = func() time.Time { return now }
	s.shuffle = func(int, func(i, j int)) {}
	return s, &now
}

func TestAccountSet_NoObservationsRanksFull(t *testing.T) {
	s, _ := fixedSet()
	s.AddAccount("acct1")
	if got := s.Rank("acct1"); got != 1.0 {
		t.Errorf("Rank with no observations = %v, want 1.0", got)
	}
	if got := s.Rank("unknown"); got != 1.0 {
		t.Errorf("Rank of unknown account = %v, want 1.0", got)
	}
}

func TestAccountSet_WeightedRank(t *testing.T) {
	s, now := fixedSet()
	s.AddAccount("acct1")

	// Oldest observed window: one success. Next window: one failure.
	s.LogResult("acct1", true)
	*now = now.Add(10 * time.Second)
	s.LogResult("acct1", false)

	// Newest window carries weight 6, the previous one weight 5.
	// rank = (0*6 + 1*5) / (6+5).
	want := 5.0 / 11.0
	if got := s.Rank("acct1"); math.Abs(got-want) > 1e-9 {
		t.Errorf("Rank = %v, want %v", got, want)
	}
}

func TestAccountSet_MixedWindowAccumulates(t *testing.T) {
	s, _ := fixedSet()
	s.AddAccount("acct1")

	// Same window: 3 of 4 succeed.
	s.LogResult("acct1", true)
	s.LogResult("acct1", true)
	s.LogResult("acct1", false)
	s.LogResult("acct1", true)

	if got := s.Rank("acct1"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Rank = %v, want 0.75", got)
	}
}

func TestAccountSet_OldWindowsExpire(t *testing.T) {
	s, now := fixedSet()
	s.AddAccount("acct1")

	s.LogResult("acct1", false)

	// Seven windows later the failure has slid out entirely.
	*now = now.Add(70 * time.Second)
	if got := s.Rank("acct1"); got != 1.0 {
		t.Errorf("Rank after window expiry = %v, want 1.0", got)
	}
}

func TestAccountSet_FailingAccountSortsLast(t *testing.T) {
	s, _ := fixedSet()
	s.SetAccounts([]string{"healthy", "failing"})

	for i := 0; i < 5; i++ {
		s.LogResult("healthy", true)
		s.LogResult("failing", false)
	}

	got := s.RankedShuffled()
	if len(got) != 2 {
		t.Fatalf("RankedShuffled returned %d accounts, want 2", len(got))
	}
	if got[0] != "healthy" || got[1] != "failing" {
		t.Errorf("RankedShuffled = %v, want [healthy failing]", got)
	}
}

func TestAccountSet_TierGrouping(t *testing.T) {
	s, _ := fixedSet()
	s.SetAccounts([]string{"mid", "top"})

	// top: untouched, rank 1.0 (tier >= 0.9).
	// mid: 3 of 4 succeed in one window, rank 0.75 (tier >= 0.7).
	s.LogResult("mid", true)
	s.LogResult("mid", true)
	s.LogResult("mid", false)
	s.LogResult("mid", true)

	got := s.RankedShuffled()
	if len(got) != 2 || got[0] != "top" || got[1] != "mid" {
		t.Errorf("RankedShuffled = %v, want [top mid]", got)
	}
}

func TestAccountSet_SetAccountsReconciles(t *testing.T) {
	s, _ := fixedSet()
	if err := s.SetAccounts([]string{"a", "b"}); err != nil {
		t.Fatalf("SetAccounts: %v", err)
	}

	// Give "a" a track record, then refresh with "a" kept and "b" dropped.
	s.LogResult("a", false)
	if err := s.SetAccounts([]string{"a", "c"}); err != nil {
		t.Fatalf("SetAccounts: %v", err)
	}

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if got := s.Rank("a"); got == 1.0 {
		t.Error("Rank(a) = 1.0, want stats preserved across refresh")
	}
	ranked := s.RankedShuffled()
	for _, name := range ranked {
		if name == "b" {
			t.Error("dropped account still ranked")
		}
	}
}

func TestAccountSet_SetAccountsRejectsDuplicates(t *testing.T) {
	s, _ := fixedSet()
	err := s.SetAccounts([]string{"a", "b", "a"})
	if err == nil {
		t.Fatal("SetAccounts with a repeated name did not error")
	}
	if !strings.Contains(err.Error(), `"a"`) {
		t.Errorf("error %q does not name the repeated account", err)
	}
	// AddAccount stays idempotent.
	s.AddAccount("a")
	s.AddAccount("a")
}

func TestAccountSet_LogResultUnknownAccountIgnored(t *testing.T) {
	s, _ := fixedSet()
	s.AddAccount("known")
	// Must not panic or create ghost accounts.
	s.LogResult("ghost", true)
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}
