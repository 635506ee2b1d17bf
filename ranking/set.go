package ranking

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	defaultBucketCount = 6
	defaultWindow      = 10 * time.Second
)

// defaultTiers are the rank boundaries used to group accounts before
// shuffling. Accounts landing in the same tier are considered equally
// healthy and are returned in random order relative to each other.
var defaultTiers = []float64{0.9, 0.7, 0.3, 0}

// AccountSet ranks storage accounts by recent upload outcomes. It is safe
// for concurrent use.
type AccountSet struct {
	mu       sync.Mutex
	accounts map[string]*Account

	bucketCount int
	window      time.Duration
	tiers       []float64

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewAccountSet returns an empty set with the default window geometry
// (six 10-second windows) and tier boundaries.
func NewAccountSet() *AccountSet {
	return &AccountSet{
		accounts:    make(map[string]*Account),
		bucketCount: defaultBucketCount,
		window:      defaultWindow,
		tiers:       defaultTiers,
		now:         time.Now,
		shuffle:     rand.Shuffle,
	}
}

// AddAccount registers a storage account. Re-adding an existing account
// keeps its accumulated stats.
func (s *AccountSet) AddAccount(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(name)
}

func (s *AccountSet) addLocked(name string) {
	if _, ok := s.accounts[name]; !ok {
		s.accounts[name] = newAccount(name, s.bucketCount, s.window)
	}
}

// SetAccounts reconciles the set against a freshly fetched resource list:
// new accounts are added, existing ones keep their stats, and accounts no
// longer advertised are dropped. Unlike AddAccount it is strict about
// duplicates: a name listed twice is an error, since the catalog must
// advertise each storage account once.
func (s *AccountSet) SetAccounts(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := keep[name]; dup {
			return fmt.Errorf("ranking: storage account %q listed twice", name)
		}
		keep[name] = struct{}{}
		s.addLocked(name)
	}
	for name := range s.accounts {
		if _, ok := keep[name]; !ok {
			delete(s.accounts, name)
		}
	}
	return nil
}

// LogResult records one upload outcome against the named account. Unknown
// accounts are ignored, which covers results racing a resource refresh.
func (s *AccountSet) LogResult(name string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[name]; ok {
		a.logResult(s.now(), success)
	}
}

// Rank returns the account's current weighted success rate, or 1.0 for
// unknown accounts.
func (s *AccountSet) Rank(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[name]; ok {
		return a.rank(s.now())
	}
	return 1.0
}

// RankedShuffled returns the account names ordered by health tier: every
// account in a higher tier precedes every account in a lower one, and
// accounts within a tier are shuffled so load spreads across equally
// healthy accounts.
func (s *AccountSet) RankedShuffled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tiers := make([][]string, len(s.tiers))
	for name, a := range s.accounts {
		r := a.rank(now)
		for i, boundary := range s.tiers {
			if r >= boundary {
				tiers[i] = append(tiers[i], name)
				break
			}
		}
	}

	out := make([]string, 0, len(s.accounts))
	for _, tier := range tiers {
		tier := tier
		s.shuffle(len(tier), func(i, j int) { tier[i], tier[j] = tier[j], tier[i] })
		out = append(out, tier...)
	}
	return out
}

// Len returns the number of tracked accounts.
func (s *AccountSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
