package leaderboard

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// A skip list keyed by (xp desc, user asc) for O(log n) updates.

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
}

type skipList struct {
	head   *node
	lvl    int
	byUser map[string]*node
	rng    *rand.Rand
}

func newSkipList() *skipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &skipList{
		head:   &node{},
		lvl:    1,
		byUser: map[string]*node{},
		rng:    rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}
}

func (s *skipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b Entry) bool {
	if a.XP == b.XP {
		return a.UserID < b.UserID
	}
	return a.XP > b.XP // higher score first
}

func (s *skipList) update(userID string, xp int64) {
	if old, ok := s.byUser[userID]; ok {
		s.remove(userID, old.e)
	}
	e := Entry{UserID: userID, XP: xp}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byUser[userID] = n
}

func (s *skipList) remove(userID string, e Entry) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.UserID != userID {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, userID)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *skipList) top(n int) []Entry {
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out
}

func (s *skipList) rank(userID string) (Entry, int, bool) {
	n, ok := s.byUser[userID]
	if !ok {
		return Entry{}, 0, false
	}
	pos := 1
	cur := s.head.next[0]
	for cur != nil && cur != n {
		pos++
		cur = cur.next[0]
	}
	return n.e, pos, true
}

// Memory is an in-process Board holding one skip list per company.
type Memory struct {
	mu     sync.RWMutex
	boards map[string]*skipList
}

var _ Board = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{boards: map[string]*skipList{}}
}

func (m *Memory) board(companyID string) *skipList {
	if b, ok := m.boards[companyID]; ok {
		return b
	}
	b := newSkipList()
	m.boards[companyID] = b
	return b
}

func (m *Memory) Update(_ context.Context, companyID, userID string, xp int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.board(companyID).update(userID, xp)
	return nil
}

func (m *Memory) Remove(_ context.Context, companyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.boards[companyID]; ok {
		if n, found := b.byUser[userID]; found {
			b.remove(userID, n.e)
		}
	}
	return nil
}

func (m *Memory) Top(_ context.Context, companyID string, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[companyID]
	if !ok {
		return nil, nil
	}
	return b.top(n), nil
}

func (m *Memory) Rank(_ context.Context, companyID, userID string) (Entry, int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[companyID]
	if !ok {
		return Entry{}, 0, false, nil
	}
	e, pos, found := b.rank(userID)
	return e, pos, found, nil
}
