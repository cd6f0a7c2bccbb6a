package world

import (
	"time"

	"evita/internal/protocol"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Timeslice uint64 `json:"timeslice"`

	Organisms     int     `json:"organisms"`
	Dormant       int     `json:"dormant"`
	MaxMerit      int64   `json:"max_merit"`
	MeanGenomeLen float64 `json:"mean_genome_len"`

	Genotypes     int    `json:"genotypes"`
	GenotypesEver int    `json:"genotypes_ever"`
	DominantCount int    `json:"dominant_count"`
	Dominant      string `json:"dominant"`

	ExecutedTotal    uint64            `json:"executed_total"`
	DivisionsTotal   uint64            `json:"divisions_total"`
	TaskCreditsTotal map[string]uint64 `json:"task_credits_total,omitempty"`

	LastSlice TimesliceStats `json:"last_slice"`
	StepMS    float64        `json:"step_ms"`
}

// TimesliceStats are the counters of the most recently completed timeslice.
type TimesliceStats struct {
	Executed    int `json:"executed"`
	Attempts    int `json:"attempts"`
	Divisions   int `json:"divisions"`
	TaskCredits int `json:"task_credits"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

type population struct {
	organisms int
	dormant   int
	maxMerit  int64
	meanLen   float64
}

func (w *World) population() population {
	var p population
	total := 0
	for _, o := range w.cells {
		if o == nil {
			continue
		}
		p.organisms++
		if o.Dormant() {
			p.dormant++
		}
		if o.Merit() > p.maxMerit {
			p.maxMerit = o.Merit()
		}
		total += o.Len()
	}
	if p.organisms > 0 {
		p.meanLen = float64(total) / float64(p.organisms)
	}
	return p
}

func (w *World) publishMetrics(elapsed time.Duration) {
	p := w.population()
	credits := make(map[string]uint64, len(w.total.taskCredits))
	for k, v := range w.total.taskCredits {
		credits[k] = v
	}
	m := WorldMetrics{
		Timeslice:        w.timeslice,
		Organisms:        p.organisms,
		Dormant:          p.dormant,
		MaxMerit:         p.maxMerit,
		MeanGenomeLen:    p.meanLen,
		Genotypes:        w.census.Distinct(),
		GenotypesEver:    w.census.DistinctAllTime(),
		ExecutedTotal:    w.total.executed,
		DivisionsTotal:   w.total.divisions,
		TaskCreditsTotal: credits,
		LastSlice: TimesliceStats{
			Executed:    w.slice.executed,
			Attempts:    w.slice.attempts,
			Divisions:   w.slice.divisions,
			TaskCredits: w.slice.taskCredits,
		},
		StepMS: float64(elapsed.Microseconds()) / 1000,
	}
	if d, ok := w.census.Dominant(); ok {
		m.DominantCount = d.Count
		m.Dominant = genotypeHex(d.Genotype)
	}
	w.metrics.Store(m)
}

func (w *World) timesliceMsg(timeslice uint64, digest string) *protocol.TimesliceMsg {
	p := w.population()
	msg := &protocol.TimesliceMsg{
		Type:            protocol.TypeTimeslice,
		ProtocolVersion: protocol.Version,
		Timeslice:       timeslice,
		Executed:        w.slice.executed,
		Attempts:        w.slice.attempts,
		Organisms:       p.organisms,
		Dormant:         p.dormant,
		Divisions:       w.slice.divisions,
		TaskCredits:     w.slice.taskCredits,
		MaxMerit:        p.maxMerit,
		MeanGenomeLen:   p.meanLen,
		Genotypes:       w.census.Distinct(),
		Digest:          digest,
	}
	if d, ok := w.census.Dominant(); ok {
		msg.Dominant = protocol.GenotypeCount{Genotype: genotypeHex(d.Genotype), Count: d.Count, Len: d.Len}
	}
	return msg
}
