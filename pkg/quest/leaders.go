package quest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// DefaultBoardSize is the number of lines a leader board shows.
const DefaultBoardSize = 10

// Standing is one row of the ranking.
type Standing struct {
	Quester   *gamedb.Entity
	Name      string
	Points    int
	Completed int
	Rank      int
	DeltaRank int
}

type ranked struct {
	quester *gamedb.Entity
	points  *Points
}

// Leaders ranks questers by quest points. The Host owns one per world.
type Leaders struct {
	mu        sync.Mutex
	now       func() time.Time
	all       []ranked
	boardSize int
}

// NewLeaders returns an empty ranking using now for WhenRanked stamps. A
// nil now uses time.Now.
func NewLeaders(now func() time.Time) *Leaders {
	if now == nil {
		now = time.Now
	}
	return &Leaders{boardSize: DefaultBoardSize, now: now}
}

// BoardSize returns how many lines TopLines renders by default.
func (l *Leaders) BoardSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boardSize
}

// SetBoardSize changes the default board length. Values below 1 are
// ignored.
func (l *Leaders) SetBoardSize(n int) {
	if n < 1 {
		return
	}
	l.mu.Lock()
	l.boardSize = n
	l.mu.Unlock()
}

// LeadersOf returns the ranking served by env, or nil.
func LeadersOf(env *attach.Env) *Leaders {
	l, _ := env.Rankings.(*Leaders)
	return l
}

// Update adds or refreshes quester and re-ranks everyone. Questers that
// have been deleted drop out.
func (l *Leaders) Update(quester *gamedb.Entity, p *Points) {
	if quester == nil || p == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	found := false
	kept := l.all[:0]
	for _, r := range l.all {
		if r.quester.IsDeleted() {
			continue
		}
		if r.quester == quester {
			r.points = p
			found = true
		}
		kept = append(kept, r)
	}
	l.all = kept
	if !found && !quester.IsDeleted() {
		l.all = append(l.all, ranked{quester: quester, points: p})
	}
	l.rerank()
}

func (l *Leaders) rerank() {
	sort.SliceStable(l.all, func(i, j int) bool {
		a, b := l.all[i], l.all[j]
		if a.points.Points != b.points.Points {
			return a.points.Points > b.points.Points
		}
		return strings.ToLower(a.quester.Name) < strings.ToLower(b.quester.Name)
	})
	now := l.now()
	for i, r := range l.all {
		rank := i + 1
		if r.points.Rank != rank {
			r.points.DeltaRank = r.points.Rank - rank
			r.points.Rank = rank
			r.points.WhenRanked = now
		}
	}
}

// Remove drops quester from the ranking.
func (l *Leaders) Remove(quester *gamedb.Entity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.all {
		if r.quester == quester {
			l.all = append(l.all[:i], l.all[i+1:]...)
			r.points.Rank = 0
			l.rerank()
			return
		}
	}
}

// RankOf returns quester's rank, or 0 when unranked.
func (l *Leaders) RankOf(quester *gamedb.Entity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.all {
		if r.quester == quester {
			return i + 1
		}
	}
	return 0
}

// Top returns the first n standings. n <= 0 returns them all.
func (l *Leaders) Top(n int) []Standing {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.all) {
		n = len(l.all)
	}
	out := make([]Standing, 0, n)
	for i, r := range l.all[:n] {
		out = append(out, Standing{
			Quester:   r.quester,
			Name:      r.quester.Name,
			Points:    r.points.Points,
			Completed: r.points.Completed,
			Rank:      i + 1,
			DeltaRank: r.points.DeltaRank,
		})
	}
	return out
}

func (l *Leaders) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.all)
}

// Reset empties the ranking.
func (l *Leaders) Reset() {
	l.mu.Lock()
	l.all = nil
	l.mu.Unlock()
}

// TopLines renders the top n standings for a leader board.
func (l *Leaders) TopLines(n int) []string {
	if n <= 0 {
		n = l.BoardSize()
	}
	var lines []string
	for _, s := range l.Top(n) {
		line := fmt.Sprintf("%d. %s - %d points", s.Rank, s.Name, s.Points)
		switch {
		case s.DeltaRank > 0:
			line += fmt.Sprintf(" (up %d)", s.DeltaRank)
		case s.DeltaRank < 0 && s.DeltaRank != -s.Rank:
			line += fmt.Sprintf(" (down %d)", -s.DeltaRank)
		}
		lines = append(lines, line)
	}
	return lines
}
