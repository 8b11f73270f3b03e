package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"roomplan/solver"
)

type roomData struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Floor              int    `json:"floor"`
	Capacity           int    `json:"capacity"`
	Bathroom           string `json:"bathroom"`
	ConnectedTo        int64  `json:"connected_to"`
	SharedBathroomWith int64  `json:"shared_bathroom_with"`
}

type personData struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	PreferredFloor *int   `json:"preferred_floor"`
	RoomStyle      string `json:"room_style"`
	BathroomPref   string `json:"bathroom_pref"`
	WantsWith      string `json:"wants_with"`
	AvoidsWith     string `json:"avoids_with"`
}

func main() {
	roomsFile := flag.String("rooms", "rooms.json", "JSON file with the room roster")
	peopleFile := flag.String("people", "people.json", "JSON file with the person roster")
	asJSON := flag.Bool("json", false, "emit the result as JSON instead of text")
	flag.Parse()

	rooms, err := loadRooms(*roomsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading rooms: %v\n", err)
		os.Exit(1)
	}
	people, err := loadPeople(*peopleFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading people: %v\n", err)
		os.Exit(1)
	}

	constraints := solver.ResolveConstraints(people)
	result := solver.Solve(rooms, people, constraints)

	if *asJSON {
		json.NewEncoder(os.Stdout).Encode(map[string]any{
			"rooms":      result.Rooms,
			"unassigned": result.Unassigned,
		})
	} else {
		printResult(rooms, people, result)
	}

	failures := audit(rooms, people, constraints, result)
	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "AUDIT FAIL: %s\n", f)
	}
	if len(failures) > 0 {
		os.Exit(1)
	}
}

func loadRooms(path string) ([]solver.Room, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data []roomData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	rooms := make([]solver.Room, len(data))
	for i, d := range data {
		rooms[i] = solver.Room{
			ID:                 d.ID,
			Name:               d.Name,
			Floor:              d.Floor,
			Capacity:           d.Capacity,
			Bathroom:           solver.BathroomType(d.Bathroom),
			ConnectedTo:        d.ConnectedTo,
			SharedBathroomWith: d.SharedBathroomWith,
		}
	}
	return rooms, nil
}

func loadPeople(path string) ([]solver.Person, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var data []personData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	people := make([]solver.Person, len(data))
	for i, d := range data {
		people[i] = solver.Person{
			ID:             d.ID,
			Name:           d.Name,
			Gender:         solver.Gender(d.Gender),
			PreferredFloor: d.PreferredFloor,
			RoomStyle:      solver.RoomStyle(d.RoomStyle),
			Bathroom:       solver.BathroomType(d.BathroomPref),
			WantsWith:      d.WantsWith,
			AvoidsWith:     d.AvoidsWith,
		}
	}
	return people, nil
}

func printResult(rooms []solver.Room, people []solver.Person, result solver.Result) {
	personName := map[int64]string{}
	for _, p := range people {
		personName[p.ID] = p.Name
	}

	fmt.Printf("Rooms: %d, People: %d\n\n", len(rooms), len(people))
	for _, rm := range rooms {
		ids, ok := result.Rooms[rm.ID]
		if !ok {
			continue
		}
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = personName[id]
		}
		fmt.Printf("  %s (floor %d, %d/%d): %s\n", rm.Name, rm.Floor, len(ids), rm.Capacity, strings.Join(names, ", "))
	}
	if len(result.Unassigned) > 0 {
		fmt.Println("\nUnassigned:")
		for _, u := range result.Unassigned {
			fmt.Printf("  %s: %s\n", u.Name, u.Reason)
		}
	}
}

// audit re-checks every hard-constraint property against the produced
// output: capacity, per-room and bathroom-group gender uniformity,
// together/apart edges, completeness, and determinism across a second solve.
func audit(rooms []solver.Room, people []solver.Person, constraints []solver.Constraint, result solver.Result) []string {
	var failures []string

	roomByID := map[int64]solver.Room{}
	for _, rm := range rooms {
		roomByID[rm.ID] = rm
	}
	personByID := map[int64]solver.Person{}
	for _, p := range people {
		personByID[p.ID] = p
	}

	seen := map[int64]int{}
	genderOf := map[int64]solver.Gender{}
	roomOf := map[int64]int64{}
	for roomID, ids := range result.Rooms {
		rm, ok := roomByID[roomID]
		if !ok {
			failures = append(failures, fmt.Sprintf("unknown room %d in output", roomID))
			continue
		}
		if len(ids) > rm.Capacity {
			failures = append(failures, fmt.Sprintf("room %s over capacity: %d > %d", rm.Name, len(ids), rm.Capacity))
		}
		for _, id := range ids {
			seen[id]++
			roomOf[id] = roomID
			p := personByID[id]
			if g, ok := genderOf[roomID]; ok && g != p.Gender {
				failures = append(failures, fmt.Sprintf("room %s mixes genders", rm.Name))
			}
			genderOf[roomID] = p.Gender
		}
	}
	for roomID, g := range genderOf {
		partner := roomByID[roomID].SharedBathroomWith
		if pg, ok := genderOf[partner]; ok && pg != g {
			failures = append(failures, fmt.Sprintf("bathroom group %d/%d mixes genders", roomID, partner))
		}
	}

	for _, u := range result.Unassigned {
		seen[u.PersonID]++
	}
	for _, p := range people {
		if seen[p.ID] != 1 {
			failures = append(failures, fmt.Sprintf("%s appears %d times in output", p.Name, seen[p.ID]))
		}
	}

	for _, c := range constraints {
		ra, aOK := roomOf[people[c.PersonA].ID]
		rb, bOK := roomOf[people[c.PersonB].ID]
		if !aOK || !bOK {
			continue
		}
		switch c.Kind {
		case solver.KindTogether:
			if ra != rb {
				failures = append(failures, fmt.Sprintf("%s and %s requested each other but are split",
					people[c.PersonA].Name, people[c.PersonB].Name))
			}
		case solver.KindApart:
			if ra == rb {
				failures = append(failures, fmt.Sprintf("%s and %s must be apart but share a room",
					people[c.PersonA].Name, people[c.PersonB].Name))
			}
		}
	}

	again := solver.Solve(rooms, people, constraints)
	if !sameResult(result, again) {
		failures = append(failures, "second solve produced a different result")
	}

	return failures
}

func sameResult(a, b solver.Result) bool {
	if len(a.Rooms) != len(b.Rooms) || len(a.Unassigned) != len(b.Unassigned) {
		return false
	}
	for roomID, ids := range a.Rooms {
		if !slices.Equal(ids, b.Rooms[roomID]) {
			return false
		}
	}
	return slices.Equal(a.Unassigned, b.Unassigned)
}
