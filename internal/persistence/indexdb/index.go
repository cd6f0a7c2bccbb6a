// Package indexdb keeps a queryable read model of the event stream. The JSONL
// logs remain the source of truth; the index may drop rows under load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"evita/internal/protocol"
	"evita/internal/sim/tuning"
)

// Index is an asynchronous single-writer index over database/sql. Writes are
// queued and applied in batched transactions by one goroutine.
type Index struct {
	db      *sql.DB
	dialect dialect
	runID   string
	logger  *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTimeslice atomic.Uint64
	dropDivision  atomic.Uint64
	dropTask      atomic.Uint64
	writeFail     atomic.Uint64
	rowsWritten   atomic.Uint64
}

type Options struct {
	// RunID tags every row so several runs can share one database.
	RunID     string
	QueueSize int
	Logger    *log.Logger
}

type Stats struct {
	QueueDepth         int    `json:"queue_depth"`
	QueueCapacity      int    `json:"queue_capacity"`
	DropTimesliceTotal uint64 `json:"drop_timeslice_total"`
	DropDivisionTotal  uint64 `json:"drop_division_total"`
	DropTaskTotal      uint64 `json:"drop_task_total"`
	WriteFailTotal     uint64 `json:"write_fail_total"`
	RowsWrittenTotal   uint64 `json:"rows_written_total"`
}

type reqKind int

const (
	reqTimeslice reqKind = iota + 1
	reqDivision
	reqTask
)

type req struct {
	kind reqKind

	timeslice protocol.TimesliceMsg
	division  protocol.DivisionMsg
	task      protocol.TaskMsg
}

// dialect captures the differences between backends: how placeholders are
// spelled. The DDL and statements are otherwise shared.
type dialect struct {
	name   string
	rebind func(q string) string
}

func questionMarks(q string) string { return q }

// dollarNumbers rewrites ? placeholders as $1, $2, ...
func dollarNumbers(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS tuning (
		run_id TEXT NOT NULL,
		digest TEXT NOT NULL,
		json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (run_id)
	)`,
	`CREATE TABLE IF NOT EXISTS timeslices (
		run_id TEXT NOT NULL,
		timeslice BIGINT NOT NULL,
		executed BIGINT NOT NULL,
		attempts BIGINT NOT NULL,
		organisms BIGINT NOT NULL,
		dormant BIGINT NOT NULL,
		divisions BIGINT NOT NULL,
		task_credits BIGINT NOT NULL,
		max_merit BIGINT NOT NULL,
		mean_genome_len DOUBLE PRECISION NOT NULL,
		genotypes BIGINT NOT NULL,
		dominant_genotype TEXT NOT NULL,
		dominant_count BIGINT NOT NULL,
		digest TEXT NOT NULL,
		PRIMARY KEY (run_id, timeslice)
	)`,
	`CREATE TABLE IF NOT EXISTS divisions (
		run_id TEXT NOT NULL,
		offspring BIGINT NOT NULL,
		timeslice BIGINT NOT NULL,
		parent BIGINT NOT NULL,
		parent_len BIGINT NOT NULL,
		offspring_len BIGINT NOT NULL,
		genotype TEXT NOT NULL,
		genome TEXT NOT NULL,
		target_x BIGINT NOT NULL,
		target_y BIGINT NOT NULL,
		replaced BIGINT NOT NULL,
		self_replaced BIGINT NOT NULL,
		PRIMARY KEY (run_id, offspring)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_divisions_genotype ON divisions(run_id, genotype)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		run_id TEXT NOT NULL,
		timeslice BIGINT NOT NULL,
		seq BIGINT NOT NULL,
		organism BIGINT NOT NULL,
		task TEXT NOT NULL,
		merit_delta BIGINT NOT NULL,
		merit BIGINT NOT NULL,
		PRIMARY KEY (run_id, timeslice, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_task ON tasks(run_id, task, timeslice)`,
}

const (
	upsertMeta = `INSERT INTO meta(run_id,key,value) VALUES(?,?,?)
		ON CONFLICT(run_id,key) DO UPDATE SET value=excluded.value`
	upsertTuning = `INSERT INTO tuning(run_id,digest,json,updated_at) VALUES(?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET digest=excluded.digest, json=excluded.json, updated_at=excluded.updated_at`
	insertTimeslice = `INSERT INTO timeslices(run_id,timeslice,executed,attempts,organisms,dormant,divisions,task_credits,max_merit,mean_genome_len,genotypes,dominant_genotype,dominant_count,digest)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT DO NOTHING`
	insertDivision = `INSERT INTO divisions(run_id,offspring,timeslice,parent,parent_len,offspring_len,genotype,genome,target_x,target_y,replaced,self_replaced)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?) ON CONFLICT DO NOTHING`
	insertTask = `INSERT INTO tasks(run_id,timeslice,seq,organism,task,merit_delta,merit)
		VALUES(?,?,?,?,?,?,?) ON CONFLICT DO NOTHING`
)

func open(db *sql.DB, d dialect, opts Options) (*Index, error) {
	ctx := context.Background()
	for _, stmt := range schemaStmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 65536
	}
	s := &Index{
		db:      db,
		dialect: d,
		runID:   opts.RunID,
		logger:  opts.Logger,
		ch:      make(chan req, opts.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func (s *Index) printf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Index) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *Index) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropTimesliceTotal: s.dropTimeslice.Load(),
		DropDivisionTotal:  s.dropDivision.Load(),
		DropTaskTotal:      s.dropTask.Load(),
		WriteFailTotal:     s.writeFail.Load(),
		RowsWrittenTotal:   s.rowsWritten.Load(),
	}
}

// RecordRun stores the run header and the tuning actually applied. It writes
// synchronously and should be called once before the world starts.
func (s *Index) RecordRun(run protocol.RunMsg, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	meta := [][2]string{
		{"schema_version", "1"},
		{"protocol_version", run.ProtocolVersion},
		{"seed", strconv.FormatInt(run.Seed, 10)},
		{"lattice_dimension", strconv.Itoa(run.Dimension)},
		{"tasks_digest", run.TasksDigest},
		{"started_at", now},
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(upsertMeta), s.runID, kv[0], kv[1]); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(upsertTuning), s.runID, tune.Digest(), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

// WriteEvent queues TIMESLICE, DIVISION and TASK events; other events are
// ignored. It never blocks: when the queue is full the event is dropped and
// counted.
func (s *Index) WriteEvent(ev protocol.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	var (
		r    req
		drop *atomic.Uint64
	)
	switch e := ev.(type) {
	case *protocol.TimesliceMsg:
		r, drop = req{kind: reqTimeslice, timeslice: *e}, &s.dropTimeslice
	case *protocol.DivisionMsg:
		r, drop = req{kind: reqDivision, division: *e}, &s.dropDivision
	case *protocol.TaskMsg:
		r, drop = req{kind: reqTask, task: *e}, &s.dropTask
	default:
		return nil
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		drop.Add(1)
	}
	return nil
}

func (s *Index) loop() {
	ctx := context.Background()

	prepare := func(q string) *sql.Stmt {
		st, err := s.db.PrepareContext(ctx, s.dialect.rebind(q))
		if err != nil {
			s.printf("%s index prepare failed: %v", s.dialect.name, err)
			return nil
		}
		return st
	}
	stTimeslice := prepare(insertTimeslice)
	stDivision := prepare(insertDivision)
	stTask := prepare(insertTask)
	defer func() {
		for _, st := range []*sql.Stmt{stTimeslice, stDivision, stTask} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastTaskSlice uint64
		taskSeq       int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeFail.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeFail.Add(1)
			s.printf("%s index commit failed: %v", s.dialect.name, err)
		} else {
			s.rowsWritten.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeFail.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).ExecContext(ctx, args...); err != nil {
			s.printf("%s index write failed: %v", s.dialect.name, err)
			rollback()
			return
		}
		opCount++
	}

	tick := time.NewTicker(commitMaxWait)
	defer tick.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-tick.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTimeslice:
			e := r.timeslice
			exec(stTimeslice,
				s.runID,
				int64(e.Timeslice),
				e.Executed,
				e.Attempts,
				e.Organisms,
				e.Dormant,
				e.Divisions,
				e.TaskCredits,
				e.MaxMerit,
				e.MeanGenomeLen,
				e.Genotypes,
				e.Dominant.Genotype,
				e.Dominant.Count,
				e.Digest,
			)

		case reqDivision:
			e := r.division
			exec(stDivision,
				s.runID,
				int64(e.Offspring),
				int64(e.Timeslice),
				int64(e.Parent),
				e.ParentLen,
				e.OffspringLen,
				e.Genotype,
				e.Genome,
				e.Target[0], e.Target[1],
				int64(e.Replaced),
				boolInt(e.SelfReplaced),
			)

		case reqTask:
			e := r.task
			if e.Timeslice != lastTaskSlice {
				lastTaskSlice = e.Timeslice
				taskSeq = 0
			}
			seq := taskSeq
			taskSeq++
			exec(stTask,
				s.runID,
				int64(e.Timeslice),
				seq,
				int64(e.Organism),
				e.Task,
				e.MeritDelta,
				e.Merit,
			)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
