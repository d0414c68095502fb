//go:build ignore

// Package main generates a synthetic workspaceStorage tree for manual
// testing and benchmarking of chatrepair.
// Usage: go run scripts/generate-fixtures.go -workspaces 20 -sessions 50 -output testdata/storage
//
// Each workspace gets a workspace.json, a chatSessions directory and a
// state.vscdb whose index is missing some sessions and lists some
// orphans. Some orphans are copied into a sibling workspace of the same
// project so --recover-orphans has something to find.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Aman-CERP/chatrepair/internal/index"
	"github.com/Aman-CERP/chatrepair/internal/workspace"
)

var (
	numWorkspaces = flag.Int("workspaces", 20, "Number of workspaces to generate")
	numSessions   = flag.Int("sessions", 50, "Session files per workspace")
	missingRatio  = flag.Float64("missing", 0.3, "Share of sessions left out of the index")
	numOrphans    = flag.Int("orphans", 3, "Index entries per workspace without a session file")
	jsonlRatio    = flag.Float64("jsonl", 0.2, "Share of sessions written as .jsonl logs")
	outputDir     = flag.String("output", "testdata/storage", "Output directory")
	seed          = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var projects = []string{"webapp", "api", "infra", "mobile", "docs", "tools"}

var prompts = []string{
	"How do I add pagination to this query?",
	"Explain this stack trace",
	"Write a unit test for the parser",
	"Refactor the config loader",
	"Why does the build fail on Windows?",
	"Summarize the changes in this diff",
}

type entry struct {
	SessionID       string `json:"sessionId"`
	Title           string `json:"title"`
	LastMessageDate int64  `json:"lastMessageDate"`
	IsImported      bool   `json:"isImported"`
	InitialLocation string `json:"initialLocation"`
	IsEmpty         bool   `json:"isEmpty"`
}

type indexDoc struct {
	Version int              `json:"version"`
	Entries map[string]entry `json:"entries"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fatal(err)
	}

	var prevDir, prevProject string
	var prevOrphans []string
	totalFiles := 0
	for i := 0; i < *numWorkspaces; i++ {
		id := fmt.Sprintf("%032x", rng.Uint64())
		project := projects[rng.Intn(len(projects))]
		dir := filepath.Join(*outputDir, id)
		sessDir := filepath.Join(dir, workspace.SessionsDirName)
		if err := os.MkdirAll(sessDir, 0o755); err != nil {
			fatal(err)
		}

		meta := fmt.Sprintf(`{"folder":"file:///home/dev/src/%s"}`, project)
		if err := os.WriteFile(filepath.Join(dir, workspace.MetaFileName), []byte(meta), 0o644); err != nil {
			fatal(err)
		}

		doc := indexDoc{Version: 1, Entries: map[string]entry{}}
		now := time.Now().UnixMilli()
		for s := 0; s < *numSessions; s++ {
			sid := uuid.NewString()
			ts := now - int64(rng.Intn(90*24*3600))*1000
			prompt := prompts[rng.Intn(len(prompts))]
			jsonl := rng.Float64() < *jsonlRatio
			if err := writeSession(sessDir, sid, prompt, ts, jsonl); err != nil {
				fatal(err)
			}
			totalFiles++
			if rng.Float64() < *missingRatio {
				continue
			}
			doc.Entries[sid] = entry{
				SessionID: sid, Title: prompt, LastMessageDate: ts,
				InitialLocation: "panel",
			}
		}

		orphans := make([]string, 0, *numOrphans)
		for o := 0; o < *numOrphans; o++ {
			sid := uuid.NewString()
			orphans = append(orphans, sid)
			doc.Entries[sid] = entry{
				SessionID: sid, Title: "Lost session", LastMessageDate: now,
				InitialLocation: "panel",
			}
		}

		// Copy the previous workspace's orphans here when it was the same
		// project, as if the folder had been reopened under a new id.
		if prevDir != "" && prevProject == project {
			for _, sid := range prevOrphans {
				if err := writeSession(sessDir, sid, "Recovered session", now, false); err != nil {
					fatal(err)
				}
				totalFiles++
			}
		}

		if err := writeStore(filepath.Join(dir, workspace.StoreFileName), doc); err != nil {
			fatal(err)
		}
		prevDir, prevProject, prevOrphans = dir, project, orphans
	}

	fmt.Printf("Generated %d workspaces with %d session files in %s\n", *numWorkspaces, totalFiles, *outputDir)
}

func writeSession(dir, id, prompt string, ts int64, jsonl bool) error {
	doc := map[string]any{
		"version":   3,
		"sessionId": id,
		"requests": []any{map[string]any{
			"message":   map[string]any{"parts": []any{map[string]any{"text": prompt}}},
			"timestamp": ts,
		}},
	}
	if !jsonl {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644)
	}

	// Initial document without requests, then a push of the first request.
	reqs := doc["requests"]
	doc["requests"] = []any{}
	first, err := json.Marshal(map[string]any{"kind": 0, "v": doc})
	if err != nil {
		return err
	}
	push, err := json.Marshal(map[string]any{"kind": 2, "k": []any{"requests"}, "v": reqs})
	if err != nil {
		return err
	}
	data := append(append(first, '\n'), append(push, '\n')...)
	return os.WriteFile(filepath.Join(dir, id+".jsonl"), data, 0o644)
}

func writeStore(path string, doc indexDoc) error {
	value, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`); err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`, index.Key, string(value))
	return err
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
