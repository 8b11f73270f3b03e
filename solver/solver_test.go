package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func room(id int64, capacity int) Room {
	return Room{ID: id, Name: "room", Capacity: capacity, Bathroom: BathroomPrivate}
}

func person(id int64, name string, g Gender) Person {
	return Person{ID: id, Name: name, Gender: g}
}

func roomOf(t *testing.T, res Result, personID int64) (int64, bool) {
	t.Helper()
	for roomID, ids := range res.Rooms {
		for _, id := range ids {
			if id == personID {
				return roomID, true
			}
		}
	}
	return 0, false
}

func checkInvariants(t *testing.T, rooms []Room, people []Person, constraints []Constraint, res Result) {
	t.Helper()

	roomByID := map[int64]Room{}
	for _, r := range rooms {
		roomByID[r.ID] = r
	}
	personByID := map[int64]Person{}
	for _, p := range people {
		personByID[p.ID] = p
	}

	seen := map[int64]int{}
	genderOf := map[int64]Gender{}
	for roomID, ids := range res.Rooms {
		r, ok := roomByID[roomID]
		require.True(t, ok, "assignment references unknown room %d", roomID)
		require.LessOrEqual(t, len(ids), r.Capacity, "room %d over capacity", roomID)
		for _, id := range ids {
			seen[id]++
			p := personByID[id]
			if g, ok := genderOf[roomID]; ok {
				require.Equal(t, g, p.Gender, "room %d mixes genders", roomID)
			}
			genderOf[roomID] = p.Gender
		}
	}
	for roomID, g := range genderOf {
		partner := roomByID[roomID].SharedBathroomWith
		if pg, ok := genderOf[partner]; ok {
			require.Equal(t, g, pg, "bathroom group %d/%d mixes genders", roomID, partner)
		}
	}

	for _, u := range res.Unassigned {
		seen[u.PersonID]++
	}
	for _, p := range people {
		require.Equal(t, 1, seen[p.ID], "person %d must appear exactly once", p.ID)
	}

	for _, c := range constraints {
		ra, aOK := roomOf(t, res, people[c.PersonA].ID)
		rb, bOK := roomOf(t, res, people[c.PersonB].ID)
		if !aOK || !bOK {
			continue
		}
		switch c.Kind {
		case KindTogether:
			require.Equal(t, ra, rb, "together pair split across rooms")
		case KindApart:
			require.NotEqual(t, ra, rb, "apart pair share a room")
		}
	}
}

func TestSolveFillsGenderSegregatedRooms(t *testing.T) {
	rooms := []Room{room(1, 2), room(2, 2)}
	people := []Person{
		person(1, "Adam", Male),
		person(2, "Ben", Male),
		person(3, "Cara", Female),
		person(4, "Dana", Female),
	}

	res := Solve(rooms, people, nil)

	require.Empty(t, res.Unassigned)
	assert.ElementsMatch(t, []int64{1, 2}, res.Rooms[1])
	assert.ElementsMatch(t, []int64{3, 4}, res.Rooms[2])
	checkInvariants(t, rooms, people, nil, res)
}

func TestSolveBondedGroupLargerThanAnyRoom(t *testing.T) {
	rooms := []Room{room(1, 1)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Ben"},
		{ID: 2, Name: "Ben", Gender: Male, WantsWith: "Adam"},
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	require.Len(t, res.Unassigned, 2)
	for _, u := range res.Unassigned {
		assert.Equal(t, ReasonNoCapacity, u.Reason)
	}
	assert.Empty(t, res.Rooms)
}

func TestSolveExclusionLeavesSecondPersonOut(t *testing.T) {
	rooms := []Room{room(1, 2)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, AvoidsWith: "Ben"},
		{ID: 2, Name: "Ben", Gender: Male},
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	// Stable input order: Adam is placed, Ben reports the conflict.
	require.Equal(t, []int64{1}, res.Rooms[1])
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, int64(2), res.Unassigned[0].PersonID)
	assert.Equal(t, ReasonExclusion, res.Unassigned[0].Reason)
	checkInvariants(t, rooms, people, constraints, res)
}

func TestSolveBathroomGroupBlocksOppositeGender(t *testing.T) {
	rooms := []Room{
		{ID: 1, Name: "101", Capacity: 1, Bathroom: BathroomShared, SharedBathroomWith: 2},
		{ID: 2, Name: "102", Capacity: 1, Bathroom: BathroomShared, SharedBathroomWith: 1},
	}
	people := []Person{
		person(1, "Cara", Female),
		person(2, "Adam", Male),
	}

	res := Solve(rooms, people, nil)

	require.Equal(t, []int64{1}, res.Rooms[1])
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, int64(2), res.Unassigned[0].PersonID)
	assert.Equal(t, ReasonGenderConflict, res.Unassigned[0].Reason)
	checkInvariants(t, rooms, people, nil, res)
}

func TestSolveBathroomGroupSameGenderFills(t *testing.T) {
	rooms := []Room{
		{ID: 1, Name: "101", Capacity: 1, Bathroom: BathroomShared, SharedBathroomWith: 2},
		{ID: 2, Name: "102", Capacity: 1, Bathroom: BathroomShared, SharedBathroomWith: 1},
	}
	people := []Person{
		person(1, "Cara", Female),
		person(2, "Dana", Female),
	}

	res := Solve(rooms, people, nil)

	require.Empty(t, res.Unassigned)
	checkInvariants(t, rooms, people, nil, res)
}

func TestSolveGroupWithInternalExclusion(t *testing.T) {
	// Exclusion wins over inclusion for the same pair: the whole group fails.
	rooms := []Room{room(1, 4)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Ben", AvoidsWith: "Ben"},
		{ID: 2, Name: "Ben", Gender: Male},
		person(3, "Carl", Male),
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	require.Len(t, res.Unassigned, 2)
	for _, u := range res.Unassigned {
		assert.Equal(t, ReasonGroupConflict, u.Reason)
	}
	assert.Equal(t, []int64{3}, res.Rooms[1])
}

func TestSolveGroupWithMixedGenders(t *testing.T) {
	rooms := []Room{room(1, 4)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Cara"},
		{ID: 2, Name: "Cara", Gender: Female},
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	require.Len(t, res.Unassigned, 2)
	for _, u := range res.Unassigned {
		assert.Equal(t, ReasonGroupMixedGender, u.Reason)
	}
	assert.Empty(t, res.Rooms)
}

func TestSolveTransitiveBondedGroupStaysTogether(t *testing.T) {
	rooms := []Room{room(1, 2), room(2, 3)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Ben"},
		{ID: 2, Name: "Ben", Gender: Male, WantsWith: "Carl"},
		person(3, "Carl", Male),
		person(4, "Dave", Male),
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	require.Empty(t, res.Unassigned)
	assert.ElementsMatch(t, []int64{1, 2, 3}, res.Rooms[2])
	assert.Equal(t, []int64{4}, res.Rooms[1])
	checkInvariants(t, rooms, people, constraints, res)
}

func TestSolvePreferredFloorWins(t *testing.T) {
	floor2 := 2
	rooms := []Room{
		{ID: 1, Name: "101", Floor: 1, Capacity: 1, Bathroom: BathroomPrivate},
		{ID: 2, Name: "201", Floor: 2, Capacity: 2, Bathroom: BathroomPrivate},
	}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, PreferredFloor: &floor2},
	}

	res := Solve(rooms, people, nil)

	// Floor match outscores the tighter fit on floor 1.
	require.Equal(t, []int64{1}, res.Rooms[2])
}

func TestSolveBathroomPreferenceWins(t *testing.T) {
	rooms := []Room{
		{ID: 1, Name: "101", Capacity: 1, Bathroom: BathroomPrivate},
		{ID: 2, Name: "102", Capacity: 1, Bathroom: BathroomShared},
	}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, Bathroom: BathroomShared},
	}

	res := Solve(rooms, people, nil)

	require.Equal(t, []int64{1}, res.Rooms[2])
}

func TestSolveConnectedStylePreferenceWins(t *testing.T) {
	rooms := []Room{
		{ID: 1, Name: "101", Capacity: 1, Bathroom: BathroomPrivate},
		{ID: 2, Name: "102", Capacity: 1, Bathroom: BathroomPrivate, ConnectedTo: 3},
		{ID: 3, Name: "103", Capacity: 1, Bathroom: BathroomPrivate, ConnectedTo: 2},
	}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, RoomStyle: StyleConnected},
		{ID: 2, Name: "Ben", Gender: Male, RoomStyle: StyleSingle},
	}

	res := Solve(rooms, people, nil)

	require.Equal(t, []int64{1}, res.Rooms[2])
	require.Equal(t, []int64{2}, res.Rooms[1])
}

func TestSolveTightestFitTieBreak(t *testing.T) {
	rooms := []Room{room(3, 3), room(2, 1)}
	people := []Person{person(1, "Adam", Male)}

	res := Solve(rooms, people, nil)

	// Equal scores: the room with the least leftover capacity wins.
	require.Equal(t, []int64{1}, res.Rooms[2])
}

func TestSolveEmptyInputs(t *testing.T) {
	res := Solve(nil, nil, nil)
	assert.Empty(t, res.Rooms)
	assert.Empty(t, res.Unassigned)

	res = Solve([]Room{room(1, 2)}, nil, nil)
	assert.Empty(t, res.Rooms)
	assert.Empty(t, res.Unassigned)

	people := []Person{person(1, "Adam", Male)}
	res = Solve(nil, people, nil)
	assert.Empty(t, res.Rooms)
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, ReasonNoCapacity, res.Unassigned[0].Reason)
}

func TestSolveDeterministic(t *testing.T) {
	floor1 := 1
	rooms := []Room{
		{ID: 1, Name: "101", Floor: 1, Capacity: 2, Bathroom: BathroomShared, SharedBathroomWith: 2},
		{ID: 2, Name: "102", Floor: 1, Capacity: 2, Bathroom: BathroomShared, SharedBathroomWith: 1},
		{ID: 3, Name: "201", Floor: 2, Capacity: 3, Bathroom: BathroomPrivate},
	}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Ben", PreferredFloor: &floor1},
		{ID: 2, Name: "Ben", Gender: Male},
		{ID: 3, Name: "Cara", Gender: Female, AvoidsWith: "Dana"},
		{ID: 4, Name: "Dana", Gender: Female},
		{ID: 5, Name: "Erin", Gender: Female, Bathroom: BathroomPrivate},
		{ID: 6, Name: "Fred", Gender: Male, RoomStyle: StyleSingle},
	}
	constraints := ResolveConstraints(people)

	first := Solve(rooms, people, constraints)
	for range 5 {
		again := Solve(rooms, people, constraints)
		require.Equal(t, first, again)
	}
	checkInvariants(t, rooms, people, constraints, first)
}

func TestSolveUnresolvedReferencesAreIgnored(t *testing.T) {
	rooms := []Room{room(1, 2)}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Nobody, , Zed"},
		{ID: 2, Name: "Ben", Gender: Male, AvoidsWith: "Ghost"},
	}
	constraints := ResolveConstraints(people)

	require.Empty(t, constraints)
	res := Solve(rooms, people, constraints)
	require.Empty(t, res.Unassigned)
	assert.ElementsMatch(t, []int64{1, 2}, res.Rooms[1])
}

func TestSolveCapacityExhaustion(t *testing.T) {
	rooms := []Room{room(1, 1)}
	people := []Person{
		person(1, "Adam", Male),
		person(2, "Ben", Male),
	}

	res := Solve(rooms, people, nil)

	require.Equal(t, []int64{1}, res.Rooms[1])
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, ReasonNoCapacity, res.Unassigned[0].Reason)
}

func TestSolveGenderConflictReason(t *testing.T) {
	rooms := []Room{room(1, 2)}
	people := []Person{
		person(1, "Cara", Female),
		person(2, "Adam", Male),
	}

	res := Solve(rooms, people, nil)

	require.Equal(t, []int64{1}, res.Rooms[1])
	require.Len(t, res.Unassigned, 1)
	assert.Equal(t, int64(2), res.Unassigned[0].PersonID)
	assert.Equal(t, ReasonGenderConflict, res.Unassigned[0].Reason)
}

func TestSolveLargerRoster(t *testing.T) {
	floor1, floor2 := 1, 2
	rooms := []Room{
		{ID: 1, Name: "101", Floor: 1, Capacity: 2, Bathroom: BathroomShared, SharedBathroomWith: 2},
		{ID: 2, Name: "102", Floor: 1, Capacity: 2, Bathroom: BathroomShared, SharedBathroomWith: 1},
		{ID: 3, Name: "201", Floor: 2, Capacity: 3, Bathroom: BathroomPrivate, ConnectedTo: 4},
		{ID: 4, Name: "202", Floor: 2, Capacity: 3, Bathroom: BathroomPrivate, ConnectedTo: 3},
		{ID: 5, Name: "301", Floor: 3, Capacity: 1, Bathroom: BathroomPrivate},
	}
	people := []Person{
		{ID: 1, Name: "Adam", Gender: Male, WantsWith: "Ben, Carl"},
		{ID: 2, Name: "Ben", Gender: Male},
		{ID: 3, Name: "Carl", Gender: Male, PreferredFloor: &floor2},
		{ID: 4, Name: "Dave", Gender: Male, AvoidsWith: "Adam"},
		{ID: 5, Name: "Erin", Gender: Female, WantsWith: "Faye"},
		{ID: 6, Name: "Faye", Gender: Female, Bathroom: BathroomShared},
		{ID: 7, Name: "Gail", Gender: Female, PreferredFloor: &floor1},
		{ID: 8, Name: "Hope", Gender: Female, RoomStyle: StyleConnected},
	}
	constraints := ResolveConstraints(people)

	res := Solve(rooms, people, constraints)

	require.Empty(t, res.Unassigned)
	checkInvariants(t, rooms, people, constraints, res)

	// Adam's trio must sit together.
	ra, _ := roomOf(t, res, 1)
	rb, _ := roomOf(t, res, 2)
	rc, _ := roomOf(t, res, 3)
	assert.Equal(t, ra, rb)
	assert.Equal(t, ra, rc)
	rd, _ := roomOf(t, res, 4)
	assert.NotEqual(t, ra, rd)
}
