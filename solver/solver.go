package solver

import (
	"slices"
)

// Reason codes for people the solver could not place. Callers map these to
// display text; the codes themselves are the contract.
type Reason string

const (
	ReasonNoCapacity       Reason = "no_capacity"
	ReasonGenderConflict   Reason = "gender_conflict"
	ReasonExclusion        Reason = "exclusion_conflict"
	ReasonGroupConflict    Reason = "group_conflict"
	ReasonGroupMixedGender Reason = "group_mixed_gender"
)

type Unassigned struct {
	PersonID int64
	Name     string
	Reason   Reason
}

// Result maps room ID to the IDs of the people placed there. A person
// appears in at most one room, and everyone from the input appears either in
// Rooms or in Unassigned, never both.
type Result struct {
	Rooms      map[int64][]int64
	Unassigned []Unassigned
}

type solverState struct {
	rooms  []Room
	people []Person

	apart    map[[2]int]bool
	apartFor [][]int

	groupOf []int
	units   [][]int

	bathPartner []int
	connected   []bool
}

func newSolverState(rooms []Room, people []Person, constraints []Constraint) *solverState {
	n := len(people)
	s := &solverState{
		rooms:  rooms,
		people: people,
		apart:  map[[2]int]bool{},
	}

	together := map[[2]int]bool{}
	for _, c := range constraints {
		if c.PersonA < 0 || c.PersonA >= n || c.PersonB < 0 || c.PersonB >= n || c.PersonA == c.PersonB {
			continue
		}
		p := [2]int{c.PersonA, c.PersonB}
		if p[0] > p[1] {
			p[0], p[1] = p[1], p[0]
		}
		switch c.Kind {
		case KindTogether:
			together[p] = true
		case KindApart:
			s.apart[p] = true
		}
	}

	s.apartFor = make([][]int, n)
	for p := range s.apart {
		s.apartFor[p[0]] = append(s.apartFor[p[0]], p[1])
		s.apartFor[p[1]] = append(s.apartFor[p[1]], p[0])
	}

	uf := make([]int, n)
	for i := range uf {
		uf[i] = i
	}
	var ufFind func(int) int
	ufFind = func(x int) int {
		if uf[x] != x {
			uf[x] = ufFind(uf[x])
		}
		return uf[x]
	}
	for p := range together {
		ra, rb := ufFind(p[0]), ufFind(p[1])
		if ra != rb {
			uf[ra] = rb
		}
	}

	s.groupOf = make([]int, n)
	groups := map[int][]int{}
	for i := range n {
		root := ufFind(i)
		s.groupOf[i] = root
		groups[root] = append(groups[root], i)
	}

	s.units = make([][]int, 0, len(groups))
	for _, members := range groups {
		s.units = append(s.units, members)
	}
	// Largest units first to reduce fragmentation; members[0] is each unit's
	// lowest input index, which breaks ties for determinism.
	slices.SortFunc(s.units, func(a, b []int) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return a[0] - b[0]
	})

	roomIdx := map[int64]int{}
	for i, r := range rooms {
		roomIdx[r.ID] = i
	}
	s.bathPartner = make([]int, len(rooms))
	s.connected = make([]bool, len(rooms))
	for i := range s.bathPartner {
		s.bathPartner[i] = -1
	}
	for i, r := range rooms {
		if r.SharedBathroomWith != 0 {
			if j, ok := roomIdx[r.SharedBathroomWith]; ok && j != i {
				s.bathPartner[i] = j
				s.bathPartner[j] = i
			}
		}
		if r.ConnectedTo != 0 {
			if j, ok := roomIdx[r.ConnectedTo]; ok && j != i {
				s.connected[i] = true
				s.connected[j] = true
			}
		}
	}

	return s
}

// unitConflict reports whether a unit carries an apart edge between two of
// its own members.
func (s *solverState) unitConflict(members []int) bool {
	for i, a := range members {
		for _, b := range members[i+1:] {
			p := [2]int{a, b}
			if p[0] > p[1] {
				p[0], p[1] = p[1], p[0]
			}
			if s.apart[p] {
				return true
			}
		}
	}
	return false
}

func (s *solverState) unitGenderUniform(members []int) bool {
	g := s.people[members[0]].Gender
	for _, m := range members[1:] {
		if s.people[m].Gender != g {
			return false
		}
	}
	return true
}

// unitScore sums soft-preference matches for placing the unit in room ri:
// preferred floor, bathroom type, and room style, one point each per member.
func (s *solverState) unitScore(members []int, ri int) int {
	room := s.rooms[ri]
	sc := 0
	for _, m := range members {
		p := s.people[m]
		if p.PreferredFloor != nil && *p.PreferredFloor == room.Floor {
			sc++
		}
		if p.Bathroom != "" && p.Bathroom == room.Bathroom {
			sc++
		}
		switch p.RoomStyle {
		case StyleConnected:
			if s.connected[ri] {
				sc++
			}
		case StyleSingle:
			if !s.connected[ri] {
				sc++
			}
		}
	}
	return sc
}

func (s *solverState) exclusionConflict(members []int, occupants []int) bool {
	for _, m := range members {
		for _, partner := range s.apartFor[m] {
			if s.groupOf[partner] == s.groupOf[m] {
				continue
			}
			if slices.Contains(occupants, partner) {
				return true
			}
		}
	}
	return false
}

// Solve places every person into a room or reports why it could not,
// honoring capacity, per-room and bathroom-group gender uniformity, and the
// together/apart constraint edges. Soft preferences steer room choice but
// never block placement. The result is deterministic: the same rooms,
// people, and constraints always produce the same output.
func Solve(rooms []Room, people []Person, constraints []Constraint) Result {
	result := Result{Rooms: map[int64][]int64{}}
	if len(people) == 0 {
		return result
	}

	s := newSolverState(rooms, people, constraints)

	occupants := make([][]int, len(rooms))
	roomGender := make([]Gender, len(rooms))

	markUnassigned := func(members []int, reason Reason) {
		for _, m := range members {
			result.Unassigned = append(result.Unassigned, Unassigned{
				PersonID: people[m].ID,
				Name:     people[m].Name,
				Reason:   reason,
			})
		}
	}

	for _, unit := range s.units {
		if s.unitConflict(unit) {
			markUnassigned(unit, ReasonGroupConflict)
			continue
		}
		if !s.unitGenderUniform(unit) {
			markUnassigned(unit, ReasonGroupMixedGender)
			continue
		}
		g := s.people[unit[0]].Gender

		best := -1
		bestScore := 0
		bestLeftover := 0
		hadCapacity := false
		hadGender := false

		for ri := range rooms {
			free := rooms[ri].Capacity - len(occupants[ri])
			if free < len(unit) {
				continue
			}
			hadCapacity = true

			if roomGender[ri] != "" && roomGender[ri] != g {
				continue
			}
			pi := s.bathPartner[ri]
			if pi >= 0 && roomGender[pi] != "" && roomGender[pi] != g {
				continue
			}
			hadGender = true

			if s.exclusionConflict(unit, occupants[ri]) {
				continue
			}
			if pi >= 0 && s.exclusionConflict(unit, occupants[pi]) {
				continue
			}

			score := s.unitScore(unit, ri)
			leftover := free - len(unit)
			switch {
			case best < 0,
				score > bestScore,
				score == bestScore && leftover < bestLeftover,
				score == bestScore && leftover == bestLeftover && rooms[ri].ID < rooms[best].ID:
				best = ri
				bestScore = score
				bestLeftover = leftover
			}
		}

		if best < 0 {
			switch {
			case !hadCapacity:
				markUnassigned(unit, ReasonNoCapacity)
			case !hadGender:
				markUnassigned(unit, ReasonGenderConflict)
			default:
				markUnassigned(unit, ReasonExclusion)
			}
			continue
		}

		occupants[best] = append(occupants[best], unit...)
		roomGender[best] = g
	}

	for ri, members := range occupants {
		if len(members) == 0 {
			continue
		}
		ids := make([]int64, len(members))
		for i, m := range members {
			ids[i] = people[m].ID
		}
		result.Rooms[rooms[ri].ID] = ids
	}
	return result
}
