package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type queryOpts struct {
	RunID    string
	Limit    int
	Organism uint64
	Genotype string
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db; also filters rows)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	organism := fs.Uint64("organism", 0, "organism id (lineage)")
	genotype := fs.String("genotype", "", "genotype hash filter (divisions)")
	_ = fs.Parse(args)

	q := "timeslices"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index", "run.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	opts := queryOpts{RunID: strings.TrimSpace(*runID), Limit: *limit, Organism: *organism, Genotype: strings.TrimSpace(*genotype)}
	if err := runQuery(db, q, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

// runQuery prints the result of one named query as JSON lines.
func runQuery(db *sql.DB, q string, opts queryOpts, out io.Writer) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.RunID == "" {
		id, err := latestRun(db)
		if err != nil {
			return fmt.Errorf("latest run: %w", err)
		}
		if id == "" {
			return fmt.Errorf("no runs recorded")
		}
		opts.RunID = id
	}
	enc := json.NewEncoder(out)

	switch q {
	case "run":
		rows, err := db.Query(`SELECT key,value FROM meta WHERE run_id=? ORDER BY key`, opts.RunID)
		if err != nil {
			return err
		}
		defer rows.Close()
		meta := map[string]string{"run_id": opts.RunID}
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return err
			}
			meta[k] = v
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return enc.Encode(meta)

	case "timeslices":
		rows, err := db.Query(`SELECT timeslice,executed,attempts,organisms,dormant,divisions,task_credits,max_merit,mean_genome_len,genotypes,dominant_genotype,dominant_count,digest
			FROM timeslices WHERE run_id=? ORDER BY timeslice DESC LIMIT ?`, opts.RunID, opts.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Timeslice     uint64  `json:"timeslice"`
				Executed      int64   `json:"executed"`
				Attempts      int64   `json:"attempts"`
				Organisms     int64   `json:"organisms"`
				Dormant       int64   `json:"dormant"`
				Divisions     int64   `json:"divisions"`
				TaskCredits   int64   `json:"task_credits"`
				MaxMerit      int64   `json:"max_merit"`
				MeanGenomeLen float64 `json:"mean_genome_len"`
				Genotypes     int64   `json:"genotypes"`
				Dominant      string  `json:"dominant"`
				DominantCount int64   `json:"dominant_count"`
				Digest        string  `json:"digest"`
			}
			if err := rows.Scan(&r.Timeslice, &r.Executed, &r.Attempts, &r.Organisms, &r.Dormant, &r.Divisions, &r.TaskCredits,
				&r.MaxMerit, &r.MeanGenomeLen, &r.Genotypes, &r.Dominant, &r.DominantCount, &r.Digest); err != nil {
				return err
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "genotypes":
		rows, err := db.Query(`SELECT genotype,COUNT(*) AS births,MIN(timeslice),MAX(offspring_len) FROM divisions
			WHERE run_id=? GROUP BY genotype ORDER BY births DESC, genotype LIMIT ?`, opts.RunID, opts.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Genotype  string `json:"genotype"`
				Births    int64  `json:"births"`
				FirstSeen uint64 `json:"first_seen"`
				Len       int64  `json:"len"`
			}
			if err := rows.Scan(&r.Genotype, &r.Births, &r.FirstSeen, &r.Len); err != nil {
				return err
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "divisions":
		query := `SELECT offspring,parent,timeslice,offspring_len,genotype,genome,target_x,target_y,replaced FROM divisions WHERE run_id=?`
		params := []any{opts.RunID}
		if opts.Genotype != "" {
			query += ` AND genotype=?`
			params = append(params, opts.Genotype)
		}
		query += ` ORDER BY offspring DESC LIMIT ?`
		params = append(params, opts.Limit)
		rows, err := db.Query(query, params...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Offspring uint64 `json:"offspring"`
				Parent    uint64 `json:"parent"`
				Timeslice uint64 `json:"timeslice"`
				Len       int64  `json:"len"`
				Genotype  string `json:"genotype"`
				Genome    string `json:"genome"`
				Target    [2]int `json:"target"`
				Replaced  uint64 `json:"replaced,omitempty"`
			}
			if err := rows.Scan(&r.Offspring, &r.Parent, &r.Timeslice, &r.Len, &r.Genotype, &r.Genome, &r.Target[0], &r.Target[1], &r.Replaced); err != nil {
				return err
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "lineage":
		if opts.Organism == 0 {
			return fmt.Errorf("missing -organism")
		}
		id := opts.Organism
		for depth := 0; depth < opts.Limit; depth++ {
			var r struct {
				Organism  uint64 `json:"organism"`
				Parent    uint64 `json:"parent"`
				Timeslice uint64 `json:"timeslice"`
				Len       int64  `json:"len"`
				Genotype  string `json:"genotype"`
			}
			err := db.QueryRow(`SELECT parent,timeslice,offspring_len,genotype FROM divisions WHERE run_id=? AND offspring=?`, opts.RunID, id).
				Scan(&r.Parent, &r.Timeslice, &r.Len, &r.Genotype)
			if err == sql.ErrNoRows {
				// Seeded ancestors have no division row.
				return nil
			}
			if err != nil {
				return err
			}
			r.Organism = id
			if err := enc.Encode(r); err != nil {
				return err
			}
			id = r.Parent
		}
		return nil

	case "tasks":
		rows, err := db.Query(`SELECT task,COUNT(*),MIN(timeslice),MAX(merit) FROM tasks WHERE run_id=? GROUP BY task ORDER BY task`, opts.RunID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Task      string `json:"task"`
				Credits   int64  `json:"credits"`
				FirstSeen uint64 `json:"first_seen"`
				MaxMerit  int64  `json:"max_merit"`
			}
			if err := rows.Scan(&r.Task, &r.Credits, &r.FirstSeen, &r.MaxMerit); err != nil {
				return err
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query %q (run, timeslices, genotypes, divisions, lineage, tasks)", q)
	}
}

func latestRun(db *sql.DB) (string, error) {
	var id string
	err := db.QueryRow(`SELECT run_id FROM meta WHERE key='started_at' ORDER BY value DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}
