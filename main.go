package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"roomplan/solver"
)

//go:embed schema.sql
var schema string

var logger *zap.Logger

// reasonText maps solver reason codes to end-user display strings. The codes
// are the contract; these strings are presentation only.
var reasonText = map[solver.Reason]string{
	solver.ReasonNoCapacity:       "no room with enough remaining space",
	solver.ReasonGenderConflict:   "all rooms with space are held by the other gender",
	solver.ReasonExclusion:        "every compatible room holds someone they asked to avoid",
	solver.ReasonGroupConflict:    "conflicting requests within group",
	solver.ReasonGroupMixedGender: "mixed genders requested together",
}

func main() {
	// .env is optional; environment variables alone are fine.
	godotenv.Load()

	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	for _, key := range []string{"PGCONN", "CLIENT_ID", "CLIENT_SECRET", "ADMINS"} {
		if os.Getenv(key) == "" {
			logger.Fatal("required environment variable missing", zap.String("key", key))
		}
	}

	db, err := sql.Open("postgres", os.Getenv("PGCONN"))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	logger.Info("connected to database")

	if _, err := db.Exec(schema); err != nil {
		logger.Fatal("failed to apply schema", zap.Error(err))
	}

	http.HandleFunc("POST /auth/google/callback", handleGoogleCallback)
	http.HandleFunc("GET /api/admin/check", handleAdminCheck)
	http.HandleFunc("GET /api/plans", handleListPlans(db))
	http.HandleFunc("POST /api/plans", handleCreatePlan(db))
	http.HandleFunc("DELETE /api/plans/{planID}", handleDeletePlan(db))
	http.HandleFunc("POST /api/plans/{planID}/admins", handleAddPlanAdmin(db))
	http.HandleFunc("DELETE /api/plans/{planID}/admins/{adminID}", handleRemovePlanAdmin(db))
	http.HandleFunc("GET /api/plans/{planID}/rooms", handleListRooms(db))
	http.HandleFunc("POST /api/plans/{planID}/rooms", handleCreateRoom(db))
	http.HandleFunc("PATCH /api/plans/{planID}/rooms/{roomID}", handleUpdateRoom(db))
	http.HandleFunc("DELETE /api/plans/{planID}/rooms/{roomID}", handleDeleteRoom(db))
	http.HandleFunc("GET /api/plans/{planID}/people", handleListPeople(db))
	http.HandleFunc("POST /api/plans/{planID}/people", handleCreatePerson(db))
	http.HandleFunc("PATCH /api/plans/{planID}/people/{personID}", handleUpdatePerson(db))
	http.HandleFunc("DELETE /api/plans/{planID}/people/{personID}", handleDeletePerson(db))
	http.HandleFunc("GET /api/plans/{planID}/relations", handleListRelations(db))
	http.HandleFunc("POST /api/plans/{planID}/solve", handleSolve(db))
	http.HandleFunc("GET /api/plans/{planID}/assignments", handleListAssignments(db))
	http.HandleFunc("GET /api/plans/{planID}/assignments/{assignmentID}", handleGetAssignment(db))
	http.HandleFunc("PUT /api/plans/{planID}/assignments/{assignmentID}", handleUpdateAssignment(db))
	http.HandleFunc("DELETE /api/plans/{planID}/assignments/{assignmentID}", handleDeleteAssignment(db))
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "db unhealthy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":8080"
	}
	logger.Info("listening", zap.String("addr", addr))
	logger.Fatal("server exited", zap.Error(http.ListenAndServe(addr, nil)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, err error) {
	logger.Error("request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	credential := r.FormValue("credential")
	if credential == "" {
		http.Error(w, "missing credential", http.StatusBadRequest)
		return
	}

	payload, err := idtoken.Validate(context.Background(), credential, os.Getenv("CLIENT_ID"))
	if err != nil {
		logger.Warn("failed to validate token", zap.Error(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	email := payload.Claims["email"].(string)

	writeJSON(w, map[string]any{
		"email":   email,
		"name":    payload.Claims["name"],
		"picture": payload.Claims["picture"],
		"token":   signEmail(email),
	})
}

func signEmail(email string) string {
	h := hmac.New(sha256.New, []byte(os.Getenv("CLIENT_SECRET")))
	h.Write([]byte(email))
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + sig
}

func authorize(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	emailBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	email := string(emailBytes)
	if signEmail(email) != token {
		return "", false
	}
	return email, true
}

func isAdmin(email string) bool {
	return slices.ContainsFunc(strings.Split(os.Getenv("ADMINS"), ","), func(a string) bool {
		return strings.TrimSpace(a) == email
	})
}

func requireAdmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, ok := authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if !isAdmin(email) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return email, true
}

func isPlanAdmin(db *sql.DB, email string, planID int64) bool {
	var exists bool
	db.QueryRow("SELECT EXISTS(SELECT 1 FROM plan_admins WHERE plan_id = $1 AND email = $2)", planID, email).Scan(&exists)
	return exists
}

func requirePlanAdmin(db *sql.DB, w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	email, ok := authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", 0, false
	}
	planID, err := strconv.ParseInt(r.PathValue("planID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid plan ID", http.StatusBadRequest)
		return "", 0, false
	}
	if !isAdmin(email) && !isPlanAdmin(db, email, planID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", 0, false
	}
	return email, planID, true
}

func handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	email, ok := authorize(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]bool{"admin": isAdmin(email)})
}

func handleListPlans(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		rows, err := db.Query(`
			SELECT p.id, p.name, COALESCE(
				json_agg(json_build_object('id', pa.id, 'email', pa.email)) FILTER (WHERE pa.id IS NOT NULL),
				'[]'
			)
			FROM plans p
			LEFT JOIN plan_admins pa ON pa.plan_id = p.id
			GROUP BY p.id, p.name
			ORDER BY p.id`)
		if err != nil {
			serverError(w, err)
			return
		}
		defer rows.Close()

		type planAdmin struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		}
		type plan struct {
			ID     int64       `json:"id"`
			Name   string      `json:"name"`
			Admins []planAdmin `json:"admins"`
		}

		plans := []plan{}
		for rows.Next() {
			var p plan
			var adminsJSON string
			if err := rows.Scan(&p.ID, &p.Name, &adminsJSON); err != nil {
				serverError(w, err)
				return
			}
			json.Unmarshal([]byte(adminsJSON), &p.Admins)
			plans = append(plans, p)
		}
		writeJSON(w, plans)
	}
}

func handleCreatePlan(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		var id int64
		if err := db.QueryRow("INSERT INTO plans (name) VALUES ($1) RETURNING id", body.Name).Scan(&id); err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": id, "name": body.Name})
	}
}

func handleDeletePlan(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		planID, err := strconv.ParseInt(r.PathValue("planID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid plan ID", http.StatusBadRequest)
			return
		}
		result, err := db.Exec("DELETE FROM plans WHERE id = $1", planID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAddPlanAdmin(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		planID, err := strconv.ParseInt(r.PathValue("planID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid plan ID", http.StatusBadRequest)
			return
		}
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
			http.Error(w, "email is required", http.StatusBadRequest)
			return
		}
		var id int64
		err = db.QueryRow("INSERT INTO plan_admins (plan_id, email) VALUES ($1, $2) RETURNING id", planID, body.Email).Scan(&id)
		if err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": id, "email": body.Email})
	}
}

func handleRemovePlanAdmin(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		adminID, err := strconv.ParseInt(r.PathValue("adminID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid admin ID", http.StatusBadRequest)
			return
		}
		result, err := db.Exec("DELETE FROM plan_admins WHERE id = $1", adminID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "plan admin not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func validGender(s string) bool {
	return s == string(solver.Male) || s == string(solver.Female)
}

func validBathroom(s string) bool {
	return s == string(solver.BathroomShared) || s == string(solver.BathroomPrivate)
}

func validStyle(s string) bool {
	return s == string(solver.StyleSingle) || s == string(solver.StyleConnected)
}

func loadRooms(db *sql.DB, planID int64) ([]solver.Room, error) {
	rows, err := db.Query(`
		SELECT id, name, floor, capacity, bathroom, connected_to, shared_bathroom_with
		FROM rooms WHERE plan_id = $1 ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []solver.Room
	for rows.Next() {
		var rm solver.Room
		var bathroom string
		var connectedTo, sharedWith sql.NullInt64
		if err := rows.Scan(&rm.ID, &rm.Name, &rm.Floor, &rm.Capacity, &bathroom, &connectedTo, &sharedWith); err != nil {
			return nil, err
		}
		rm.Bathroom = solver.BathroomType(bathroom)
		rm.ConnectedTo = connectedTo.Int64
		rm.SharedBathroomWith = sharedWith.Int64
		rooms = append(rooms, rm)
	}
	return rooms, rows.Err()
}

func loadPeople(db *sql.DB, planID int64) ([]solver.Person, error) {
	rows, err := db.Query(`
		SELECT id, name, gender, preferred_floor, room_style, bathroom_pref, wants_with, avoids_with
		FROM people WHERE plan_id = $1 ORDER BY id`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var people []solver.Person
	for rows.Next() {
		var p solver.Person
		var gender, style string
		var floor sql.NullInt64
		var bathroomPref sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &gender, &floor, &style, &bathroomPref, &p.WantsWith, &p.AvoidsWith); err != nil {
			return nil, err
		}
		p.Gender = solver.Gender(gender)
		p.RoomStyle = solver.RoomStyle(style)
		if floor.Valid {
			f := int(floor.Int64)
			p.PreferredFloor = &f
		}
		if bathroomPref.Valid {
			p.Bathroom = solver.BathroomType(bathroomPref.String)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

type roomJSON struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Floor              int    `json:"floor"`
	Capacity           int    `json:"capacity"`
	Bathroom           string `json:"bathroom"`
	ConnectedTo        int64  `json:"connected_to,omitempty"`
	SharedBathroomWith int64  `json:"shared_bathroom_with,omitempty"`
}

func handleListRooms(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		rooms, err := loadRooms(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		out := []roomJSON{}
		for _, rm := range rooms {
			out = append(out, roomJSON{
				ID:                 rm.ID,
				Name:               rm.Name,
				Floor:              rm.Floor,
				Capacity:           rm.Capacity,
				Bathroom:           string(rm.Bathroom),
				ConnectedTo:        rm.ConnectedTo,
				SharedBathroomWith: rm.SharedBathroomWith,
			})
		}
		writeJSON(w, out)
	}
}

func handleCreateRoom(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		var body struct {
			Name     string `json:"name"`
			Floor    int    `json:"floor"`
			Capacity int    `json:"capacity"`
			Bathroom string `json:"bathroom"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if body.Capacity < 1 {
			http.Error(w, "capacity must be at least 1", http.StatusBadRequest)
			return
		}
		if body.Bathroom == "" {
			body.Bathroom = string(solver.BathroomPrivate)
		}
		if !validBathroom(body.Bathroom) {
			http.Error(w, "invalid bathroom type", http.StatusBadRequest)
			return
		}
		var id int64
		err := db.QueryRow(`
			INSERT INTO rooms (plan_id, name, floor, capacity, bathroom)
			VALUES ($1, $2, $3, $4, $5::bathroom_type) RETURNING id`,
			planID, body.Name, body.Floor, body.Capacity, body.Bathroom).Scan(&id)
		if err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	}
}

func handleUpdateRoom(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		roomID, err := strconv.ParseInt(r.PathValue("roomID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid room ID", http.StatusBadRequest)
			return
		}
		var body struct {
			Name               *string `json:"name"`
			Floor              *int    `json:"floor"`
			Capacity           *int    `json:"capacity"`
			Bathroom           *string `json:"bathroom"`
			ConnectedTo        *int64  `json:"connected_to"`
			SharedBathroomWith *int64  `json:"shared_bathroom_with"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.Capacity != nil && *body.Capacity < 1 {
			http.Error(w, "capacity must be at least 1", http.StatusBadRequest)
			return
		}
		if body.Bathroom != nil && !validBathroom(*body.Bathroom) {
			http.Error(w, "invalid bathroom type", http.StatusBadRequest)
			return
		}

		if body.Name != nil {
			if _, err := db.Exec("UPDATE rooms SET name = $1 WHERE id = $2 AND plan_id = $3", *body.Name, roomID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.Floor != nil {
			if _, err := db.Exec("UPDATE rooms SET floor = $1 WHERE id = $2 AND plan_id = $3", *body.Floor, roomID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.Capacity != nil {
			if _, err := db.Exec("UPDATE rooms SET capacity = $1 WHERE id = $2 AND plan_id = $3", *body.Capacity, roomID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.Bathroom != nil {
			if _, err := db.Exec("UPDATE rooms SET bathroom = $1::bathroom_type WHERE id = $2 AND plan_id = $3", *body.Bathroom, roomID, planID); err != nil {
				serverError(w, err)
				return
			}
		}

		if body.ConnectedTo == nil && body.SharedBathroomWith == nil && body.Bathroom == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Link changes go through the room arena so both sides of every
		// symmetric relation stay consistent, including clearing the old
		// partner's back-link.
		rooms, err := loadRooms(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		set, err := solver.NewRoomSet(rooms)
		if err != nil {
			serverError(w, err)
			return
		}
		if _, found := set.Get(roomID); !found {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		if body.Bathroom != nil && *body.Bathroom == string(solver.BathroomPrivate) {
			set.ClearSharedBathroom(roomID)
		}
		if body.ConnectedTo != nil {
			if *body.ConnectedTo == 0 {
				err = set.ClearConnected(roomID)
			} else {
				err = set.SetConnected(roomID, *body.ConnectedTo)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		if body.SharedBathroomWith != nil {
			if *body.SharedBathroomWith == 0 {
				err = set.ClearSharedBathroom(roomID)
			} else {
				err = set.SetSharedBathroom(roomID, *body.SharedBathroomWith)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		tx, err := db.Begin()
		if err != nil {
			serverError(w, err)
			return
		}
		defer tx.Rollback()
		for _, rm := range set.Rooms() {
			_, err := tx.Exec("UPDATE rooms SET connected_to = $1, shared_bathroom_with = $2 WHERE id = $3 AND plan_id = $4",
				nullID(rm.ConnectedTo), nullID(rm.SharedBathroomWith), rm.ID, planID)
			if err != nil {
				serverError(w, err)
				return
			}
		}
		if err := tx.Commit(); err != nil {
			serverError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nullID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func handleDeleteRoom(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		roomID, err := strconv.ParseInt(r.PathValue("roomID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid room ID", http.StatusBadRequest)
			return
		}
		result, err := db.Exec("DELETE FROM rooms WHERE id = $1 AND plan_id = $2", roomID, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type personJSON struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	PreferredFloor *int   `json:"preferred_floor"`
	RoomStyle      string `json:"room_style"`
	BathroomPref   string `json:"bathroom_pref,omitempty"`
	WantsWith      string `json:"wants_with"`
	AvoidsWith     string `json:"avoids_with"`
}

func handleListPeople(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		people, err := loadPeople(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		out := []personJSON{}
		for _, p := range people {
			out = append(out, personJSON{
				ID:             p.ID,
				Name:           p.Name,
				Gender:         string(p.Gender),
				PreferredFloor: p.PreferredFloor,
				RoomStyle:      string(p.RoomStyle),
				BathroomPref:   string(p.Bathroom),
				WantsWith:      p.WantsWith,
				AvoidsWith:     p.AvoidsWith,
			})
		}
		writeJSON(w, out)
	}
}

func handleCreatePerson(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		var body struct {
			Name           string `json:"name"`
			Gender         string `json:"gender"`
			PreferredFloor *int   `json:"preferred_floor"`
			RoomStyle      string `json:"room_style"`
			BathroomPref   string `json:"bathroom_pref"`
			WantsWith      string `json:"wants_with"`
			AvoidsWith     string `json:"avoids_with"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if !validGender(body.Gender) {
			http.Error(w, "invalid gender", http.StatusBadRequest)
			return
		}
		if body.RoomStyle == "" {
			body.RoomStyle = string(solver.StyleSingle)
		}
		if !validStyle(body.RoomStyle) {
			http.Error(w, "invalid room style", http.StatusBadRequest)
			return
		}
		if body.BathroomPref != "" && !validBathroom(body.BathroomPref) {
			http.Error(w, "invalid bathroom preference", http.StatusBadRequest)
			return
		}
		var bathroomPref any
		if body.BathroomPref != "" {
			bathroomPref = body.BathroomPref
		}
		var id int64
		err := db.QueryRow(`
			INSERT INTO people (plan_id, name, gender, preferred_floor, room_style, bathroom_pref, wants_with, avoids_with)
			VALUES ($1, $2, $3::gender, $4, $5::room_style, $6::bathroom_type, $7, $8) RETURNING id`,
			planID, body.Name, body.Gender, body.PreferredFloor, body.RoomStyle, bathroomPref, body.WantsWith, body.AvoidsWith).Scan(&id)
		if err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, map[string]any{"id": id})
	}
}

func handleUpdatePerson(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		personID, err := strconv.ParseInt(r.PathValue("personID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid person ID", http.StatusBadRequest)
			return
		}
		var body struct {
			Name           *string `json:"name"`
			Gender         *string `json:"gender"`
			PreferredFloor *int    `json:"preferred_floor"`
			ClearFloor     bool    `json:"clear_preferred_floor"`
			RoomStyle      *string `json:"room_style"`
			BathroomPref   *string `json:"bathroom_pref"`
			WantsWith      *string `json:"wants_with"`
			AvoidsWith     *string `json:"avoids_with"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if body.Gender != nil && !validGender(*body.Gender) {
			http.Error(w, "invalid gender", http.StatusBadRequest)
			return
		}
		if body.RoomStyle != nil && !validStyle(*body.RoomStyle) {
			http.Error(w, "invalid room style", http.StatusBadRequest)
			return
		}
		if body.BathroomPref != nil && *body.BathroomPref != "" && !validBathroom(*body.BathroomPref) {
			http.Error(w, "invalid bathroom preference", http.StatusBadRequest)
			return
		}

		if body.Name != nil {
			if _, err := db.Exec("UPDATE people SET name = $1 WHERE id = $2 AND plan_id = $3", *body.Name, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.Gender != nil {
			if _, err := db.Exec("UPDATE people SET gender = $1::gender WHERE id = $2 AND plan_id = $3", *body.Gender, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.PreferredFloor != nil || body.ClearFloor {
			var floor any
			if body.PreferredFloor != nil && !body.ClearFloor {
				floor = *body.PreferredFloor
			}
			if _, err := db.Exec("UPDATE people SET preferred_floor = $1 WHERE id = $2 AND plan_id = $3", floor, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.RoomStyle != nil {
			if _, err := db.Exec("UPDATE people SET room_style = $1::room_style WHERE id = $2 AND plan_id = $3", *body.RoomStyle, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.BathroomPref != nil {
			var pref any
			if *body.BathroomPref != "" {
				pref = *body.BathroomPref
			}
			if _, err := db.Exec("UPDATE people SET bathroom_pref = $1::bathroom_type WHERE id = $2 AND plan_id = $3", pref, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.WantsWith != nil {
			if _, err := db.Exec("UPDATE people SET wants_with = $1 WHERE id = $2 AND plan_id = $3", *body.WantsWith, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.AvoidsWith != nil {
			if _, err := db.Exec("UPDATE people SET avoids_with = $1 WHERE id = $2 AND plan_id = $3", *body.AvoidsWith, personID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeletePerson(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		personID, err := strconv.ParseInt(r.PathValue("personID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid person ID", http.StatusBadRequest)
			return
		}
		result, err := db.Exec("DELETE FROM people WHERE id = $1 AND plan_id = $2", personID, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "person not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListRelations(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		people, err := loadPeople(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		res := solver.Resolve(people)

		type edge struct {
			PersonAID   int64  `json:"person_a_id"`
			PersonAName string `json:"person_a_name"`
			PersonBID   int64  `json:"person_b_id"`
			PersonBName string `json:"person_b_name"`
			Kind        string `json:"kind"`
		}
		type badRef struct {
			PersonID int64  `json:"person_id"`
			Field    string `json:"field"`
			Name     string `json:"name"`
		}

		edges := []edge{}
		for _, c := range res.Constraints {
			edges = append(edges, edge{
				PersonAID:   people[c.PersonA].ID,
				PersonAName: people[c.PersonA].Name,
				PersonBID:   people[c.PersonB].ID,
				PersonBName: people[c.PersonB].Name,
				Kind:        c.Kind,
			})
		}
		unresolved := []badRef{}
		for _, ref := range res.Unresolved {
			unresolved = append(unresolved, badRef{ref.PersonID, ref.Field, ref.Name})
		}
		ambiguous := []badRef{}
		for _, ref := range res.Ambiguous {
			ambiguous = append(ambiguous, badRef{ref.PersonID, ref.Field, ref.Name})
		}
		writeJSON(w, map[string]any{
			"relations":  edges,
			"unresolved": unresolved,
			"ambiguous":  ambiguous,
		})
	}
}

type assignedRoom struct {
	RoomID   int64       `json:"room_id"`
	RoomName string      `json:"room_name"`
	People   []personRef `json:"people"`
}

type personRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type unassignedJSON struct {
	PersonID int64  `json:"person_id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail"`
}

func handleSolve(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		rooms, err := loadRooms(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		people, err := loadPeople(db, planID)
		if err != nil {
			serverError(w, err)
			return
		}

		result := solver.Solve(rooms, people, solver.ResolveConstraints(people))

		personName := map[int64]string{}
		for _, p := range people {
			personName[p.ID] = p.Name
		}

		roomsOut := []assignedRoom{}
		for _, rm := range rooms {
			ids, ok := result.Rooms[rm.ID]
			if !ok {
				continue
			}
			ar := assignedRoom{RoomID: rm.ID, RoomName: rm.Name, People: []personRef{}}
			for _, id := range ids {
				ar.People = append(ar.People, personRef{ID: id, Name: personName[id]})
			}
			roomsOut = append(roomsOut, ar)
		}
		unassignedOut := []unassignedJSON{}
		for _, u := range result.Unassigned {
			unassignedOut = append(unassignedOut, unassignedJSON{
				PersonID: u.PersonID,
				Name:     u.Name,
				Reason:   string(u.Reason),
				Detail:   reasonText[u.Reason],
			})
		}

		roomsRaw, err := json.Marshal(roomsOut)
		if err != nil {
			serverError(w, err)
			return
		}
		unassignedRaw, err := json.Marshal(unassignedOut)
		if err != nil {
			serverError(w, err)
			return
		}

		var assignmentID int64
		err = db.QueryRow(`
			INSERT INTO assignments (plan_id, name, rooms, unassigned)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			planID, body.Name, roomsRaw, unassignedRaw).Scan(&assignmentID)
		if err != nil {
			serverError(w, err)
			return
		}

		logger.Info("solved plan",
			zap.Int64("plan_id", planID),
			zap.Int("rooms", len(roomsOut)),
			zap.Int("placed", len(people)-len(unassignedOut)),
			zap.Int("unassigned", len(unassignedOut)))

		writeJSON(w, map[string]any{
			"assignment_id": assignmentID,
			"rooms":         roomsOut,
			"unassigned":    unassignedOut,
		})
	}
}

func handleListAssignments(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		rows, err := db.Query("SELECT id, name, created_at FROM assignments WHERE plan_id = $1 ORDER BY id DESC", planID)
		if err != nil {
			serverError(w, err)
			return
		}
		defer rows.Close()

		type entry struct {
			ID        int64     `json:"id"`
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		}
		entries := []entry{}
		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
				serverError(w, err)
				return
			}
			entries = append(entries, e)
		}
		writeJSON(w, entries)
	}
}

func handleGetAssignment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		assignmentID, err := strconv.ParseInt(r.PathValue("assignmentID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid assignment ID", http.StatusBadRequest)
			return
		}
		var name string
		var createdAt time.Time
		var roomsRaw, unassignedRaw json.RawMessage
		err = db.QueryRow(`
			SELECT name, created_at, rooms, unassigned
			FROM assignments WHERE id = $1 AND plan_id = $2`,
			assignmentID, planID).Scan(&name, &createdAt, &roomsRaw, &unassignedRaw)
		if err == sql.ErrNoRows {
			http.Error(w, "assignment not found", http.StatusNotFound)
			return
		}
		if err != nil {
			serverError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"id":         assignmentID,
			"name":       name,
			"created_at": createdAt,
			"rooms":      roomsRaw,
			"unassigned": unassignedRaw,
		})
	}
}

// handleUpdateAssignment stores a manually adjusted copy of a saved
// assignment. The adjusted rooms are persisted verbatim; the solver does not
// re-validate manual edits.
func handleUpdateAssignment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		assignmentID, err := strconv.ParseInt(r.PathValue("assignmentID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid assignment ID", http.StatusBadRequest)
			return
		}
		var body struct {
			Name       *string          `json:"name"`
			Rooms      []assignedRoom   `json:"rooms"`
			Unassigned []unassignedJSON `json:"unassigned"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if body.Name != nil {
			if _, err := db.Exec("UPDATE assignments SET name = $1 WHERE id = $2 AND plan_id = $3", *body.Name, assignmentID, planID); err != nil {
				serverError(w, err)
				return
			}
		}
		if body.Rooms == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		idSet := map[int64]bool{}
		for _, rm := range body.Rooms {
			for _, p := range rm.People {
				if idSet[p.ID] {
					http.Error(w, fmt.Sprintf("person %d appears in more than one room", p.ID), http.StatusBadRequest)
					return
				}
				idSet[p.ID] = true
			}
		}
		personIDs := make([]int64, 0, len(idSet))
		for id := range idSet {
			personIDs = append(personIDs, id)
		}
		var known int
		if err := db.QueryRow("SELECT COUNT(*) FROM people WHERE plan_id = $1 AND id = ANY($2)", planID, pq.Array(personIDs)).Scan(&known); err != nil {
			serverError(w, err)
			return
		}
		if known != len(personIDs) {
			http.Error(w, "assignment references people outside this plan", http.StatusBadRequest)
			return
		}

		roomsRaw, err := json.Marshal(body.Rooms)
		if err != nil {
			serverError(w, err)
			return
		}
		if body.Unassigned == nil {
			body.Unassigned = []unassignedJSON{}
		}
		unassignedRaw, err := json.Marshal(body.Unassigned)
		if err != nil {
			serverError(w, err)
			return
		}
		result, err := db.Exec("UPDATE assignments SET rooms = $1, unassigned = $2 WHERE id = $3 AND plan_id = $4",
			roomsRaw, unassignedRaw, assignmentID, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "assignment not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDeleteAssignment(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, planID, ok := requirePlanAdmin(db, w, r)
		if !ok {
			return
		}
		assignmentID, err := strconv.ParseInt(r.PathValue("assignmentID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid assignment ID", http.StatusBadRequest)
			return
		}
		result, err := db.Exec("DELETE FROM assignments WHERE id = $1 AND plan_id = $2", assignmentID, planID)
		if err != nil {
			serverError(w, err)
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			http.Error(w, "assignment not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
