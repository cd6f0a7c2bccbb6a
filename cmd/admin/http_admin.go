package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"evita/internal/sim/world"
)

// serverState mirrors the body of GET /v1/state.
type serverState struct {
	RunID     string             `json:"run_id"`
	Dimension int                `json:"lattice_dimension"`
	Observers int                `json:"observers"`
	Metrics   world.WorldMetrics `json:"metrics"`
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	asJSON := fs.Bool("json", false, "print the decoded state as JSON")
	_ = fs.Parse(args)

	cl := &http.Client{Timeout: 5 * time.Second}
	st, err := fetchState(cl, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
		return
	}
	writeState(os.Stdout, st)
}

func fetchState(cl *http.Client, baseURL string) (serverState, error) {
	var st serverState
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/v1/state"
	resp, err := cl.Get(u)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return st, fmt.Errorf("%s: %s %s", u, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("%s: decode: %w", u, err)
	}
	return st, nil
}

func writeState(out io.Writer, st serverState) {
	m := st.Metrics
	cells := st.Dimension * st.Dimension
	fmt.Fprintf(out, "run        %s (%dx%d, %d observers)\n", st.RunID, st.Dimension, st.Dimension, st.Observers)
	fmt.Fprintf(out, "timeslice  %s (%.2fms)\n", humanize.Comma(int64(m.Timeslice)), m.StepMS)
	fmt.Fprintf(out, "organisms  %d/%d, %d dormant, mean genome %.1f, max merit %s\n",
		m.Organisms, cells, m.Dormant, m.MeanGenomeLen, humanize.Comma(m.MaxMerit))
	fmt.Fprintf(out, "genotypes  %d live, %d ever", m.Genotypes, m.GenotypesEver)
	if m.Dominant != "" {
		fmt.Fprintf(out, ", dominant %s x%d", m.Dominant, m.DominantCount)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "executed   %s total, %s divisions\n",
		humanize.Comma(int64(m.ExecutedTotal)), humanize.Comma(int64(m.DivisionsTotal)))
	fmt.Fprintf(out, "last slice %d executed / %d attempts, %d divisions, %d task credits\n",
		m.LastSlice.Executed, m.LastSlice.Attempts, m.LastSlice.Divisions, m.LastSlice.TaskCredits)

	names := make([]string, 0, len(m.TaskCreditsTotal))
	for name := range m.TaskCreditsTotal {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "task       %-5s %s\n", name, humanize.Comma(int64(m.TaskCreditsTotal[name])))
	}
}
