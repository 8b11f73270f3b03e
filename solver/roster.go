package solver

import (
	"fmt"
	"strings"
)

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

type BathroomType string

const (
	BathroomShared  BathroomType = "shared"
	BathroomPrivate BathroomType = "private"
)

type RoomStyle string

const (
	StyleSingle    RoomStyle = "single"
	StyleConnected RoomStyle = "connected"
)

type Room struct {
	ID       int64
	Name     string
	Floor    int
	Capacity int
	Bathroom BathroomType

	// Symmetric links to at most one partner room each, 0 when unset.
	ConnectedTo        int64
	SharedBathroomWith int64
}

type Person struct {
	ID             int64
	Name           string
	Gender         Gender
	PreferredFloor *int
	RoomStyle      RoomStyle
	Bathroom       BathroomType

	// Comma-separated display names of other people on the roster.
	WantsWith  string
	AvoidsWith string
}

// RoomSet holds rooms in an indexed arena so link updates are O(1) and the
// link invariants hold by construction: both relations are symmetric, each
// room has at most one partner per relation, and a shared-bathroom link
// requires both rooms to have a shared bathroom.
type RoomSet struct {
	rooms []Room
	index map[int64]int
}

func NewRoomSet(rooms []Room) (*RoomSet, error) {
	s := &RoomSet{
		rooms: make([]Room, len(rooms)),
		index: make(map[int64]int, len(rooms)),
	}
	copy(s.rooms, rooms)
	for i, r := range s.rooms {
		if _, dup := s.index[r.ID]; dup {
			return nil, fmt.Errorf("duplicate room ID %d", r.ID)
		}
		if r.Capacity < 1 {
			return nil, fmt.Errorf("room %d: capacity must be at least 1", r.ID)
		}
		s.index[r.ID] = i
	}
	for i := range s.rooms {
		r := &s.rooms[i]
		if r.ConnectedTo != 0 {
			if _, ok := s.index[r.ConnectedTo]; !ok {
				r.ConnectedTo = 0
			}
		}
		if r.SharedBathroomWith != 0 {
			if _, ok := s.index[r.SharedBathroomWith]; !ok {
				r.SharedBathroomWith = 0
			}
		}
	}
	return s, nil
}

func (s *RoomSet) Rooms() []Room {
	out := make([]Room, len(s.rooms))
	copy(out, s.rooms)
	return out
}

func (s *RoomSet) Get(id int64) (Room, bool) {
	i, ok := s.index[id]
	if !ok {
		return Room{}, false
	}
	return s.rooms[i], true
}

func (s *RoomSet) lookupPair(a, b int64) (int, int, error) {
	ia, ok := s.index[a]
	if !ok {
		return 0, 0, fmt.Errorf("unknown room ID %d", a)
	}
	ib, ok := s.index[b]
	if !ok {
		return 0, 0, fmt.Errorf("unknown room ID %d", b)
	}
	if ia == ib {
		return 0, 0, fmt.Errorf("room %d cannot link to itself", a)
	}
	return ia, ib, nil
}

// SetConnected links rooms a and b, atomically clearing any prior partner
// of either room.
func (s *RoomSet) SetConnected(a, b int64) error {
	ia, ib, err := s.lookupPair(a, b)
	if err != nil {
		return err
	}
	s.clearConnected(ia)
	s.clearConnected(ib)
	s.rooms[ia].ConnectedTo = b
	s.rooms[ib].ConnectedTo = a
	return nil
}

func (s *RoomSet) ClearConnected(id int64) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("unknown room ID %d", id)
	}
	s.clearConnected(i)
	return nil
}

func (s *RoomSet) clearConnected(i int) {
	partner := s.rooms[i].ConnectedTo
	if partner == 0 {
		return
	}
	if pi, ok := s.index[partner]; ok && s.rooms[pi].ConnectedTo == s.rooms[i].ID {
		s.rooms[pi].ConnectedTo = 0
	}
	s.rooms[i].ConnectedTo = 0
}

// SetSharedBathroom links rooms a and b as one bathroom group. Both rooms
// must have a shared bathroom.
func (s *RoomSet) SetSharedBathroom(a, b int64) error {
	ia, ib, err := s.lookupPair(a, b)
	if err != nil {
		return err
	}
	if s.rooms[ia].Bathroom != BathroomShared || s.rooms[ib].Bathroom != BathroomShared {
		return fmt.Errorf("rooms %d and %d must both have a shared bathroom", a, b)
	}
	s.clearSharedBathroom(ia)
	s.clearSharedBathroom(ib)
	s.rooms[ia].SharedBathroomWith = b
	s.rooms[ib].SharedBathroomWith = a
	return nil
}

func (s *RoomSet) ClearSharedBathroom(id int64) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("unknown room ID %d", id)
	}
	s.clearSharedBathroom(i)
	return nil
}

func (s *RoomSet) clearSharedBathroom(i int) {
	partner := s.rooms[i].SharedBathroomWith
	if partner == 0 {
		return
	}
	if pi, ok := s.index[partner]; ok && s.rooms[pi].SharedBathroomWith == s.rooms[i].ID {
		s.rooms[pi].SharedBathroomWith = 0
	}
	s.rooms[i].SharedBathroomWith = 0
}

type Constraint struct {
	PersonA int
	PersonB int
	Kind    string
}

const (
	KindTogether = "together"
	KindApart    = "apart"
)

// NameRef records a "wants"/"avoids" reference that could not be turned into
// a constraint edge.
type NameRef struct {
	PersonID int64
	Field    string
	Name     string
}

// Resolution is the outcome of turning free-text roommate requests into
// typed constraint edges.
type Resolution struct {
	Constraints []Constraint
	Unresolved  []NameRef
	Ambiguous   []NameRef
}

// Resolve matches the comma-separated names in each person's WantsWith and
// AvoidsWith fields against the roster by exact display name. References
// that match no one or more than one person produce no edge; self-references
// are dropped silently. Duplicate edges for the same pair and kind collapse
// to one.
func Resolve(people []Person) Resolution {
	byName := map[string][]int{}
	for i, p := range people {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		byName[name] = append(byName[name], i)
	}

	var res Resolution
	seen := map[[3]int]bool{}

	addEdges := func(i int, field, raw, kind string) {
		for _, part := range strings.Split(raw, ",") {
			name := strings.TrimSpace(part)
			if name == "" {
				continue
			}
			matches := byName[name]
			switch {
			case len(matches) == 0:
				res.Unresolved = append(res.Unresolved, NameRef{people[i].ID, field, name})
				continue
			case len(matches) > 1:
				res.Ambiguous = append(res.Ambiguous, NameRef{people[i].ID, field, name})
				continue
			}
			j := matches[0]
			if j == i {
				continue
			}
			a, b := i, j
			if a > b {
				a, b = b, a
			}
			k := 0
			if kind == KindApart {
				k = 1
			}
			key := [3]int{a, b, k}
			if seen[key] {
				continue
			}
			seen[key] = true
			res.Constraints = append(res.Constraints, Constraint{PersonA: a, PersonB: b, Kind: kind})
		}
	}

	for i, p := range people {
		addEdges(i, "wants_with", p.WantsWith, KindTogether)
	}
	for i, p := range people {
		addEdges(i, "avoids_with", p.AvoidsWith, KindApart)
	}
	return res
}

// ResolveConstraints is Resolve without the diagnostics.
func ResolveConstraints(people []Person) []Constraint {
	return Resolve(people).Constraints
}
