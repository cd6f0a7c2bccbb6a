// Package tuning loads the world configuration from tuning.yaml.
package tuning

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"evita/internal/sim/isa"
	"evita/internal/sim/tasks"
)

//go:embed tuning.schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

type Tuning struct {
	LatticeDimension         int     `yaml:"lattice_dimension" json:"lattice_dimension"`
	PointMutationRate        float64 `yaml:"point_mutation_rate" json:"point_mutation_rate"`
	FrameshiftRate           float64 `yaml:"frameshift_rate" json:"frameshift_rate"`
	AvgInstructionsPerUpdate int     `yaml:"avg_instructions_per_update" json:"avg_instructions_per_update"`

	AllocBatch      int `yaml:"alloc_batch" json:"alloc_batch"`
	MaxGenomeLength int `yaml:"max_genome_length" json:"max_genome_length"`
	// OffspringMaxGrowth caps h_alloc at this multiple of the birth length.
	// 0 disables the cap.
	OffspringMaxGrowth int `yaml:"offspring_max_growth" json:"offspring_max_growth"`
	StackDepth      int `yaml:"stack_depth" json:"stack_depth"`
	CopyHistory     int `yaml:"copy_history" json:"copy_history"`

	// InstructionSet lists the opcodes mutation may draw. Empty means all.
	InstructionSet []string         `yaml:"instruction_set" json:"instruction_set"`
	Tasks          []tasks.Override `yaml:"tasks" json:"tasks"`
	InitialGenome  []string         `yaml:"initial_genome" json:"initial_genome"`

	// TimesliceIntervalMs paces Run; 0 runs timeslices back to back.
	TimesliceIntervalMs int  `yaml:"timeslice_interval_ms" json:"timeslice_interval_ms"`
	TraceSteps          bool `yaml:"trace_steps" json:"trace_steps"`
}

// SelfReplicator is the hand-written ancestor: it allocates space, copies
// itself one instruction at a time until the copied label marks the end,
// then divides.
var SelfReplicator = []string{
	"h_alloc", "h_search", "nop_C", "nop_A", "mov_head",
	"nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C",
	"nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C",
	"nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C",
	"nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C", "nop_C",
	"h_search", "h_copy", "if_label", "nop_C", "nop_A", "h_divide", "mov_head", "nop_A", "nop_B",
}

func Defaults() Tuning {
	return Tuning{
		LatticeDimension:         60,
		PointMutationRate:        0.0025,
		FrameshiftRate:           0.05,
		AvgInstructionsPerUpdate: 30,
		AllocBatch:               100,
		MaxGenomeLength:          2048,
		OffspringMaxGrowth:       2,
		StackDepth:               10,
		CopyHistory:              10,
		InitialGenome:            append([]string(nil), SelfReplicator...),
	}
}

// Load reads path, validates it against the embedded schema and decodes it
// over Defaults. Keys absent from the file keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := CheckSchema(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// CheckSchema validates a YAML document against tuning.schema.json. The
// document is round-tripped through JSON so the validator sees JSON types.
func CheckSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return schema.Validate(v)
}

// Validate performs the checks that must fail before a world is built.
func (t Tuning) Validate() error {
	switch {
	case t.LatticeDimension <= 0:
		return fmt.Errorf("lattice_dimension must be > 0 (got %d)", t.LatticeDimension)
	case t.PointMutationRate < 0 || t.PointMutationRate > 1:
		return fmt.Errorf("point_mutation_rate must be in [0,1] (got %v)", t.PointMutationRate)
	case t.FrameshiftRate < 0 || t.FrameshiftRate > 1:
		return fmt.Errorf("frameshift_rate must be in [0,1] (got %v)", t.FrameshiftRate)
	case t.AvgInstructionsPerUpdate <= 0:
		return fmt.Errorf("avg_instructions_per_update must be > 0 (got %d)", t.AvgInstructionsPerUpdate)
	case t.AllocBatch <= 0:
		return fmt.Errorf("alloc_batch must be > 0 (got %d)", t.AllocBatch)
	case t.MaxGenomeLength < 0:
		return fmt.Errorf("max_genome_length must be >= 0 (got %d)", t.MaxGenomeLength)
	case t.OffspringMaxGrowth < 0:
		return fmt.Errorf("offspring_max_growth must be >= 0 (got %d)", t.OffspringMaxGrowth)
	case t.StackDepth <= 0:
		return fmt.Errorf("stack_depth must be > 0 (got %d)", t.StackDepth)
	case t.CopyHistory <= 0:
		return fmt.Errorf("copy_history must be > 0 (got %d)", t.CopyHistory)
	case t.TimesliceIntervalMs < 0:
		return fmt.Errorf("timeslice_interval_ms must be >= 0 (got %d)", t.TimesliceIntervalMs)
	}
	if _, err := t.Instructions(); err != nil {
		return err
	}
	g, err := t.Genome()
	if err != nil {
		return err
	}
	if len(g) == 0 {
		return fmt.Errorf("initial_genome is empty")
	}
	if t.MaxGenomeLength > 0 && len(g) > t.MaxGenomeLength {
		return fmt.Errorf("initial_genome length %d exceeds max_genome_length %d", len(g), t.MaxGenomeLength)
	}
	if _, err := t.Catalog(); err != nil {
		return err
	}
	return nil
}

// Instructions resolves instruction_set. An empty list means every opcode.
func (t Tuning) Instructions() ([]isa.Op, error) {
	if len(t.InstructionSet) == 0 {
		return isa.All(), nil
	}
	ops, err := isa.ParseAll(t.InstructionSet)
	if err != nil {
		return nil, fmt.Errorf("instruction_set: %w", err)
	}
	return ops, nil
}

func (t Tuning) Genome() (isa.Genome, error) {
	ops, err := isa.ParseAll(t.InitialGenome)
	if err != nil {
		return nil, fmt.Errorf("initial_genome: %w", err)
	}
	return isa.FromOps(ops), nil
}

func (t Tuning) Catalog() (*tasks.Catalog, error) {
	return tasks.NewCatalog(tasks.Logic9(), t.Tasks)
}

// UpdateSize is the number of selection attempts per timeslice.
func (t Tuning) UpdateSize() int {
	return t.LatticeDimension * t.LatticeDimension * t.AvgInstructionsPerUpdate
}

// Digest is the hex sha256 of the JSON form of t. Runs with equal digests and
// seeds are expected to produce identical timeslice digests.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
