package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"evita/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, msg protocol.Event) {
		t.Helper()
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal %s: %v", msg.EventType(), err)
		}
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			t.Fatalf("unmarshal %s: %v", msg.EventType(), err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", msg.EventType(), err)
		}
	}

	validate(compile("run.schema.json"), &protocol.RunMsg{
		Type: protocol.TypeRun, ProtocolVersion: protocol.Version,
		RunID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427", Seed: 1337, Dimension: 60,
		TasksDigest: "deadbeef", TuningDigest: "deadbeef", StartedAt: 1700000000000,
	})
	validate(compile("step.schema.json"), &protocol.StepMsg{
		Type: protocol.TypeStep, ProtocolVersion: protocol.Version,
		Timeslice: 3, Organism: 7, Cell: protocol.Cell{1, 2}, Op: "h_copy",
	})
	validate(compile("task.schema.json"), &protocol.TaskMsg{
		Type: protocol.TypeTask, ProtocolVersion: protocol.Version,
		Timeslice: 3, Organism: 7, Task: "NOT", MeritDelta: 2, Merit: 3,
	})
	validate(compile("division.schema.json"), &protocol.DivisionMsg{
		Type: protocol.TypeDivision, ProtocolVersion: protocol.Version,
		Timeslice: 3, Parent: 7, ParentLen: 50, Offspring: 8, OffspringLen: 50,
		Genotype: "00112233aabbccdd", Genome: "EQE=", Target: protocol.Cell{0, 0},
		Replaced: 7, SelfReplaced: true,
	})
	validate(compile("timeslice.schema.json"), &protocol.TimesliceMsg{
		Type: protocol.TypeTimeslice, ProtocolVersion: protocol.Version,
		Timeslice: 3, Executed: 30, Attempts: 41, Organisms: 1, Divisions: 1,
		MaxMerit: 1, MeanGenomeLen: 50, Genotypes: 1,
		Dominant: protocol.GenotypeCount{Genotype: "00112233aabbccdd", Count: 1, Len: 50},
		Digest:   "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	})
}

func TestSchemas_RejectWrongType(t *testing.T) {
	s, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "task.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var v any
	_ = json.Unmarshal([]byte(`{"type":"STEP","protocol_version":"1.0","timeslice":0,"organism":1,"task":"NOT","merit_delta":2,"merit":3}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected STEP payload to fail the TASK schema")
	}
}
