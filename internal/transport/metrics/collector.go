// Package metrics exposes world and sink counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"evita/internal/persistence/indexdb"
	"evita/internal/persistence/s3mirror"
	"evita/internal/sim/world"
)

type WorldSource interface {
	Metrics() world.WorldMetrics
}

type IndexSource interface {
	Stats() indexdb.Stats
}

type MirrorSource interface {
	Stats() s3mirror.Stats
}

type ObserverSource interface {
	Clients() int
	Dropped() uint64
}

// Sources lists what the collector reads on every scrape. Only World is
// required.
type Sources struct {
	World    WorldSource
	Index    IndexSource
	Mirror   MirrorSource
	Observer ObserverSource
}

const namespace = "evita"

// Collector reads a snapshot of every source on each scrape, so nothing is
// recorded between scrapes.
type Collector struct {
	src Sources

	timeslice     *prometheus.Desc
	organisms     *prometheus.Desc
	dormant       *prometheus.Desc
	maxMerit      *prometheus.Desc
	meanGenomeLen *prometheus.Desc
	genotypes     *prometheus.Desc
	genotypesEver *prometheus.Desc
	dominantCount *prometheus.Desc
	executed      *prometheus.Desc
	divisions     *prometheus.Desc
	taskCredits   *prometheus.Desc
	lastSlice     *prometheus.Desc
	stepMS        *prometheus.Desc

	indexQueueDepth *prometheus.Desc
	indexDropped    *prometheus.Desc
	indexWriteFail  *prometheus.Desc
	indexRows       *prometheus.Desc

	mirrorQueueDepth *prometheus.Desc
	mirrorUploads    *prometheus.Desc
	mirrorDropped    *prometheus.Desc

	observerClients *prometheus.Desc
	observerDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(worldID string, src Sources) *Collector {
	constLabels := prometheus.Labels{"world": worldID}
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, constLabels)
	}
	return &Collector{
		src: src,

		timeslice:     desc("world", "timeslice", "Number of completed timeslices."),
		organisms:     desc("world", "organisms", "Organisms on the lattice."),
		dormant:       desc("world", "dormant", "Organisms with an empty genome."),
		maxMerit:      desc("world", "max_merit", "Highest merit on the lattice."),
		meanGenomeLen: desc("world", "mean_genome_len", "Mean genome length."),
		genotypes:     desc("world", "genotypes", "Distinct genotypes alive."),
		genotypesEver: desc("world", "genotypes_ever_total", "Distinct genotypes ever observed."),
		dominantCount: desc("world", "dominant_genotype_count", "Population of the most common genotype."),
		executed:      desc("world", "instructions_executed_total", "Instructions executed."),
		divisions:     desc("world", "divisions_total", "Successful divisions."),
		taskCredits:   desc("world", "task_credits_total", "Task completions credited.", "task"),
		lastSlice:     desc("world", "last_timeslice", "Counters of the most recent timeslice.", "metric"),
		stepMS:        desc("world", "step_ms", "Duration of the most recent timeslice in milliseconds."),

		indexQueueDepth: desc("index", "queue_depth", "Queued index writes."),
		indexDropped:    desc("index", "dropped_total", "Index writes dropped on a full queue.", "kind"),
		indexWriteFail:  desc("index", "write_fail_total", "Failed index writes."),
		indexRows:       desc("index", "rows_written_total", "Rows written to the index."),

		mirrorQueueDepth: desc("mirror", "queue_depth", "Queued segment uploads."),
		mirrorUploads:    desc("mirror", "uploads_total", "Segment uploads by result.", "result"),
		mirrorDropped:    desc("mirror", "dropped_total", "Segments dropped on a full upload queue."),

		observerClients: desc("observer", "clients", "Connected observers."),
		observerDropped: desc("observer", "dropped_total", "Frames dropped for slow observers."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.timeslice, c.organisms, c.dormant, c.maxMerit, c.meanGenomeLen,
		c.genotypes, c.genotypesEver, c.dominantCount, c.executed, c.divisions,
		c.taskCredits, c.lastSlice, c.stepMS,
		c.indexQueueDepth, c.indexDropped, c.indexWriteFail, c.indexRows,
		c.mirrorQueueDepth, c.mirrorUploads, c.mirrorDropped,
		c.observerClients, c.observerDropped,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	if c.src.World != nil {
		m := c.src.World.Metrics()
		gauge(c.timeslice, float64(m.Timeslice))
		gauge(c.organisms, float64(m.Organisms))
		gauge(c.dormant, float64(m.Dormant))
		gauge(c.maxMerit, float64(m.MaxMerit))
		gauge(c.meanGenomeLen, m.MeanGenomeLen)
		gauge(c.genotypes, float64(m.Genotypes))
		counter(c.genotypesEver, float64(m.GenotypesEver))
		gauge(c.dominantCount, float64(m.DominantCount))
		counter(c.executed, float64(m.ExecutedTotal))
		counter(c.divisions, float64(m.DivisionsTotal))
		for task, n := range m.TaskCreditsTotal {
			counter(c.taskCredits, float64(n), task)
		}
		gauge(c.lastSlice, float64(m.LastSlice.Executed), "executed")
		gauge(c.lastSlice, float64(m.LastSlice.Attempts), "attempts")
		gauge(c.lastSlice, float64(m.LastSlice.Divisions), "divisions")
		gauge(c.lastSlice, float64(m.LastSlice.TaskCredits), "task_credits")
		gauge(c.stepMS, m.StepMS)
	}

	if c.src.Index != nil {
		st := c.src.Index.Stats()
		gauge(c.indexQueueDepth, float64(st.QueueDepth))
		counter(c.indexDropped, float64(st.DropTimesliceTotal), "timeslice")
		counter(c.indexDropped, float64(st.DropDivisionTotal), "division")
		counter(c.indexDropped, float64(st.DropTaskTotal), "task")
		counter(c.indexWriteFail, float64(st.WriteFailTotal))
		counter(c.indexRows, float64(st.RowsWrittenTotal))
	}

	if c.src.Mirror != nil {
		st := c.src.Mirror.Stats()
		gauge(c.mirrorQueueDepth, float64(st.QueueDepth))
		counter(c.mirrorUploads, float64(st.UploadSuccessTotal), "success")
		counter(c.mirrorUploads, float64(st.UploadFailTotal), "fail")
		counter(c.mirrorDropped, float64(st.DroppedTotal))
	}

	if c.src.Observer != nil {
		gauge(c.observerClients, float64(c.src.Observer.Clients()))
		counter(c.observerDropped, float64(c.src.Observer.Dropped()))
	}
}
