package tasks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Unary and Binary are checker functions: given an organism's inputs they
// produce the value an organism must output to be credited for the task.
type (
	Unary  func(a uint32) uint32
	Binary func(a, b uint32) uint32
)

// Def describes one boolean task. Arity selects which checker list is used;
// several checkers cover logically equivalent forms of the same function.
type Def struct {
	Name   string
	Merit  int64
	Arity  int
	Unary  []Unary
	Binary []Binary
}

// Catalog is the read-only list of tasks an organism can be rewarded for.
type Catalog struct {
	Defs   []Def
	Digest string
}

// Override adjusts or restricts the built-in catalog (from tuning.yaml).
// A nil Merit keeps the built-in value; an explicit 0 lists the task without
// rewarding it.
type Override struct {
	Name  string `yaml:"name" json:"name"`
	Merit *int64 `yaml:"merit,omitempty" json:"merit,omitempty"`
}

// Logic9 returns the nine classic two-input logic tasks plus NOT.
func Logic9() []Def {
	return []Def{
		{Name: "NOT", Merit: 2, Arity: 1, Unary: []Unary{
			func(a uint32) uint32 { return ^a },
		}},
		{Name: "NAND", Merit: 2, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return ^(a & b) },
			func(a, b uint32) uint32 { return ^a | ^b },
		}},
		{Name: "AND", Merit: 4, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return a & b },
			func(a, b uint32) uint32 { return ^(^a | ^b) },
		}},
		{Name: "ORN", Merit: 4, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return a | ^b },
			func(a, b uint32) uint32 { return ^(^a & b) },
		}},
		{Name: "OR", Merit: 8, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return a | b },
			func(a, b uint32) uint32 { return ^(^a & ^b) },
		}},
		{Name: "ANDN", Merit: 8, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return a & ^b },
			func(a, b uint32) uint32 { return ^(^a | b) },
		}},
		{Name: "NOR", Merit: 16, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return ^(a | b) },
			func(a, b uint32) uint32 { return ^a & ^b },
		}},
		{Name: "XOR", Merit: 16, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return a ^ b },
			func(a, b uint32) uint32 { return (a & ^b) | (^a & b) },
		}},
		{Name: "EQU", Merit: 32, Arity: 2, Binary: []Binary{
			func(a, b uint32) uint32 { return ^(a ^ b) },
			func(a, b uint32) uint32 { return (a & b) | (^a & ^b) },
		}},
	}
}

// NewCatalog builds a catalog from the built-in definitions. With no overrides
// every built-in task is enabled at its default merit; otherwise only the
// listed tasks are enabled, in the listed order, with merit replaced when the
// override is positive.
func NewCatalog(builtin []Def, overrides []Override) (*Catalog, error) {
	byName := make(map[string]Def, len(builtin))
	for _, d := range builtin {
		if err := d.validate(); err != nil {
			return nil, err
		}
		byName[strings.ToUpper(d.Name)] = d
	}

	var defs []Def
	if len(overrides) == 0 {
		defs = append(defs, builtin...)
	} else {
		seen := map[string]bool{}
		for _, o := range overrides {
			key := strings.ToUpper(strings.TrimSpace(o.Name))
			d, ok := byName[key]
			if !ok {
				return nil, fmt.Errorf("tasks: unknown task %q", o.Name)
			}
			if seen[key] {
				return nil, fmt.Errorf("tasks: duplicate task %q", o.Name)
			}
			seen[key] = true
			if o.Merit != nil {
				if *o.Merit < 0 {
					return nil, fmt.Errorf("tasks: %s: negative merit %d", d.Name, *o.Merit)
				}
				d.Merit = *o.Merit
			}
			defs = append(defs, d)
		}
	}

	return &Catalog{Defs: defs, Digest: digest(defs)}, nil
}

func (d Def) validate() error {
	if d.Name == "" {
		return fmt.Errorf("tasks: empty task name")
	}
	switch d.Arity {
	case 1:
		if len(d.Unary) == 0 {
			return fmt.Errorf("tasks: %s: arity 1 without unary checkers", d.Name)
		}
	case 2:
		if len(d.Binary) == 0 {
			return fmt.Errorf("tasks: %s: arity 2 without binary checkers", d.Name)
		}
	default:
		return fmt.Errorf("tasks: %s: unsupported arity %d", d.Name, d.Arity)
	}
	return nil
}

// Names lists enabled task names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Defs))
	for i, d := range c.Defs {
		out[i] = d.Name
	}
	return out
}

func digest(defs []Def) string {
	type row struct {
		Name  string `json:"name"`
		Merit int64  `json:"merit"`
		Arity int    `json:"arity"`
	}
	rows := make([]row, len(defs))
	for i, d := range defs {
		rows[i] = row{Name: d.Name, Merit: d.Merit, Arity: d.Arity}
	}
	b, _ := json.Marshal(rows)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
