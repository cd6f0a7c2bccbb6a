package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"evita/internal/sim/encoding"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "genome":
			genomeCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the run directories under <data>/runs, newest first.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	runs, err := listRuns(filepath.Join(*dataDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, r := range runs {
		fmt.Println(r)
	}
}

func listRuns(base string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	type run struct {
		name string
		mod  int64
	}
	var runs []run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		runs = append(runs, run{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].mod > runs[j].mod })
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.name
	}
	return out, nil
}

// genomeCmd decodes a run-length encoded genome (as found in DIVISION events
// and the divisions table) into opcode names, one per line.
func genomeCmd(args []string) {
	fs := flag.NewFlagSet("genome", flag.ExitOnError)
	oneLine := fs.Bool("line", false, "print opcodes on a single line")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin genome [-line] <encoded>")
		os.Exit(2)
	}

	names, err := decodeGenome(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	if *oneLine {
		fmt.Println(strings.Join(names, " "))
		return
	}
	for _, n := range names {
		fmt.Println(n)
	}
}

func decodeGenome(s string) ([]string, error) {
	ops, err := encoding.DecodeOps(strings.TrimSpace(s))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out, nil
}
