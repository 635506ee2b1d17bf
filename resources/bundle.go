package resources

import (
	"sort"

	"github.com/pithecene-io/hopper/azstore"
	"github.com/pithecene-io/hopper/ranking"
)

// Bundle is one immutable snapshot of the advertised resources, replaced
// wholesale on every refresh. The round-robin counters live on the bundle so
// that every upload attached to the same snapshot begins its walk at a
// distinct offset; a fresh bundle gets fresh counters.
type Bundle struct {
	containersByAccount map[string][]azstore.Container
	queuesByAccount     map[string][]azstore.Queue

	failedQueue  azstore.Queue
	successQueue azstore.Queue
	statusTable  azstore.Table

	containerWalk ranking.RoundRobin
	queueWalk     ranking.RoundRobin
}

// shuffledContainers orders the catalog by account health: ranked tiers
// first, one container per account per round within a tier. The returned
// slice is private to the caller; its order is stable for the walk.
func (b *Bundle) shuffledContainers(accounts *ranking.AccountSet) []azstore.Container {
	ranked := accounts.RankedShuffled()
	groups := make([][]azstore.Container, 0, len(ranked))
	for _, account := range ranked {
		if list := b.containersByAccount[account]; len(list) > 0 {
			groups = append(groups, list)
		}
	}
	return ranking.Interleave(groups)
}

func (b *Bundle) shuffledQueues(accounts *ranking.AccountSet) []azstore.Queue {
	ranked := accounts.RankedShuffled()
	groups := make([][]azstore.Queue, 0, len(ranked))
	for _, account := range ranked {
		if list := b.queuesByAccount[account]; len(list) > 0 {
			groups = append(groups, list)
		}
	}
	return ranking.Interleave(groups)
}

// containerStart returns the next distinct walk offset for a list of n
// containers.
func (b *Bundle) containerStart(n int) int {
	return b.containerWalk.NextStartIndex(n)
}

func (b *Bundle) queueStart(n int) int {
	return b.queueWalk.NextStartIndex(n)
}

// accounts returns the sorted union of the storage accounts appearing in
// the bundle, for registration in the ranking set.
func (b *Bundle) accounts() []string {
	seen := make(map[string]struct{})
	for account := range b.containersByAccount {
		seen[account] = struct{}{}
	}
	for account := range b.queuesByAccount {
		seen[account] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for account := range seen {
		out = append(out, account)
	}
	sort.Strings(out)
	return out
}
