package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"bubbles.ai/internal/persistence/archive"
	"bubbles.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			getCmd("state", "/v1/state", os.Args[2:])
			return
		case "index-stats":
			getCmd("index-stats", "/v1/index/stats", os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the checkpoint files kept in the data dir.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := archive.Dir(*dataDir)
	ts, err := archive.List(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, t := range ts {
		path := filepath.Join(dir, fmt.Sprintf("%d.snap.zst", t))
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Printf("%d\t<unreadable: %v>\n", t, err)
			continue
		}
		fmt.Printf("%d\tbubbles=%d portals=%d resources=%d digest=%s\n", h.Timestamp, h.Bubbles, h.Portals, h.Resources, h.Digest)
	}
}

// inspectCmd summarizes one snapshot file: per-owner mass and balances.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	snapPath := fs.String("snapshot", "", "path to .snap.zst (required)")
	_ = fs.Parse(args)
	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, hdr, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	type ownerRow struct {
		Owner       string  `json:"owner"`
		Balance     float64 `json:"balance"`
		BubbleMass  float64 `json:"bubble_mass"`
		Bubbles     int     `json:"bubbles"`
		PortalMass  float64 `json:"portal_mass"`
		Resources   int     `json:"resources"`
		TotalStaked float64 `json:"total_staked"`
	}
	rows := map[string]*ownerRow{}
	row := func(a string) *ownerRow {
		if rows[a] == nil {
			rows[a] = &ownerRow{Owner: a}
		}
		return rows[a]
	}
	for _, u := range snap.Users {
		row(u.Address).Balance = u.Balance
	}
	for _, b := range snap.Bubbles {
		r := row(b.Owner)
		r.Bubbles++
		r.BubbleMass += b.Mass
	}
	for _, p := range snap.Portals {
		row(p.Owner).PortalMass += p.Mass
	}
	for _, res := range snap.Resources {
		row(res.Owner).Resources++
	}
	owners := make([]string, 0, len(rows))
	for a := range rows {
		owners = append(owners, a)
	}
	sort.Strings(owners)

	printJSON(map[string]any{
		"timestamp":  snap.Timestamp,
		"digest":     hdr.Digest,
		"total_mass": snap.TotalMass(),
		"pending":    len(snap.PendingInputs),
		"nodes":      len(snap.Nodes),
		"obstacles":  len(snap.Obstacles),
	})
	for _, a := range owners {
		r := rows[a]
		r.TotalStaked = r.BubbleMass + r.PortalMass
		printJSON(r)
	}
}
