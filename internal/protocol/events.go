package protocol

// Cell is a lattice coordinate [x, y].
type Cell [2]int

// RUN is written once at the head of every event log.
type RunMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Seed            int64  `json:"seed"`
	Dimension       int    `json:"lattice_dimension"`
	TasksDigest     string `json:"tasks_digest"`
	TuningDigest    string `json:"tuning_digest"`
	StartedAt       int64  `json:"started_at_ms"`
}

// STEP is only produced when step tracing is enabled.
type StepMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Timeslice       uint64 `json:"timeslice"`
	Organism        uint64 `json:"organism"`
	Cell            Cell   `json:"cell"`
	Op              string `json:"op"`
}

type TaskMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Timeslice       uint64 `json:"timeslice"`
	Organism        uint64 `json:"organism"`
	Task            string `json:"task"`
	MeritDelta      int64  `json:"merit_delta"`
	Merit           int64  `json:"merit"`
}

// DIVISION. Genome is the run-length encoded offspring genome. Replaced is
// the id of the organism that occupied Target before the write, 0 if none.
type DivisionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Timeslice       uint64 `json:"timeslice"`
	Parent          uint64 `json:"parent"`
	ParentLen       int    `json:"parent_len"`
	Offspring       uint64 `json:"offspring"`
	OffspringLen    int    `json:"offspring_len"`
	Genotype        string `json:"genotype"`
	Genome          string `json:"genome"`
	Target          Cell   `json:"target"`
	Replaced        uint64 `json:"replaced,omitempty"`
	SelfReplaced    bool   `json:"self_replaced,omitempty"`
}

type GenotypeCount struct {
	Genotype string `json:"genotype"`
	Count    int    `json:"count"`
	Len      int    `json:"len"`
}

// TIMESLICE marks the end of a timeslice. Digest covers the whole lattice.
type TimesliceMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Timeslice       uint64        `json:"timeslice"`
	Executed        int           `json:"executed"`
	Attempts        int           `json:"attempts"`
	Organisms       int           `json:"organisms"`
	Dormant         int           `json:"dormant"`
	Divisions       int           `json:"divisions"`
	TaskCredits     int           `json:"task_credits"`
	MaxMerit        int64         `json:"max_merit"`
	MeanGenomeLen   float64       `json:"mean_genome_len"`
	Genotypes       int           `json:"genotypes"`
	Dominant        GenotypeCount `json:"dominant"`
	Digest          string        `json:"digest"`
}

func (*RunMsg) EventType() string       { return TypeRun }
func (*StepMsg) EventType() string      { return TypeStep }
func (*TaskMsg) EventType() string      { return TypeTask }
func (*DivisionMsg) EventType() string  { return TypeDivision }
func (*TimesliceMsg) EventType() string { return TypeTimeslice }
