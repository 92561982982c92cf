package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/bubbles.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (inputs)")
	timeline := fs.String("timeline", "", "timeline filter (rollbacks): predicted|confirmed")
	_ = fs.Parse(args)

	q := "checkpoints"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "bubbles.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "checkpoints":
		rows, err := db.Query(`SELECT timestamp,digest,path,users,bubbles,portals,resources,total_mass FROM checkpoints ORDER BY timestamp DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Timestamp int64   `json:"timestamp"`
				Digest    string  `json:"digest"`
				Path      string  `json:"path"`
				Users     int     `json:"users"`
				Bubbles   int     `json:"bubbles"`
				Portals   int     `json:"portals"`
				Resources int     `json:"resources"`
				TotalMass float64 `json:"total_mass"`
			}
			if err := rows.Scan(&r.Timestamp, &r.Digest, &r.Path, &r.Users, &r.Bubbles, &r.Portals, &r.Resources, &r.TotalMass); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "inputs":
		query := `SELECT timestamp,input_key,type,actor,COALESCE(entity_id,''),amount FROM inputs ORDER BY seq DESC LIMIT ?`
		qargs := []any{*limit}
		if a := strings.TrimSpace(*actor); a != "" {
			query = `SELECT timestamp,input_key,type,actor,COALESCE(entity_id,''),amount FROM inputs WHERE actor=? ORDER BY seq DESC LIMIT ?`
			qargs = []any{a, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Timestamp int64   `json:"timestamp"`
				Key       string  `json:"key"`
				Type      string  `json:"type"`
				Actor     string  `json:"actor"`
				EntityID  string  `json:"entity_id,omitempty"`
				Amount    float64 `json:"amount"`
			}
			if err := rows.Scan(&r.Timestamp, &r.Key, &r.Type, &r.Actor, &r.EntityID, &r.Amount); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "rollbacks":
		query := `SELECT timeline,from_ts,to_ts,snapshot_ts,replayed,gap,recorded_at FROM rollbacks ORDER BY seq DESC LIMIT ?`
		qargs := []any{*limit}
		if tl := strings.TrimSpace(*timeline); tl != "" {
			query = `SELECT timeline,from_ts,to_ts,snapshot_ts,replayed,gap,recorded_at FROM rollbacks WHERE timeline=? ORDER BY seq DESC LIMIT ?`
			qargs = []any{tl, *limit}
		}
		rows, err := db.Query(query, qargs...)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Timeline   string `json:"timeline"`
				From       int64  `json:"from"`
				To         int64  `json:"to"`
				SnapshotAt int64  `json:"snapshot_at"`
				Replayed   int    `json:"replayed"`
				Gap        bool   `json:"gap"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Timeline, &r.From, &r.To, &r.SnapshotAt, &r.Replayed, &r.Gap, &r.RecordedAt); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}
			if err := rows.Scan(&r.Key, &r.Value); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] checkpoints|inputs|rollbacks|meta")
		os.Exit(2)
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
