// Package stats collects and reports the counters spec.md §6 asks a run
// to surface: per-level cache hit/miss rates, DRAM bank utilization,
// branch mispredictions and retirement throughput. Grounded on the
// teacher's datarecording.DataRecorder (github.com/tebeka/atexit's
// Register-a-flush-on-exit convention, datarecording/datarecorder.go)
// and monitoring.Monitor's gopsutil/process resource sampling
// (monitoring/monitor.go's listResources), stripped of the teacher's
// SQLite persistence and HTTP server — this package only ever needs to
// print a summary, not serve or store one.
package stats

import (
	"fmt"
	"io"
	"os"

	"github.com/shirou/gopsutil/process"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/ooosim/cache"
	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/core"
	"github.com/sarchlab/ooosim/dram"
)

// CoreSource is anything a Tracker can pull per-core counters from.
type CoreSource interface {
	Stats() core.Stats
}

// CacheSource is anything a Tracker can pull per-cache-level counters
// from.
type CacheSource interface {
	Stats() cache.Stats
}

// DRAMSource is anything a Tracker can pull DRAM-channel counters from.
type DRAMSource interface {
	Stats() dram.Stats
}

// Tracker accumulates references to every component whose counters
// should appear in the end-of-run summary, and prints periodic
// heartbeats while the simulation runs. It does not own any simulation
// state itself — spec.md's stats module is a read-only observer, never
// a participant in the tick schedule.
type Tracker struct {
	runID string
	pid   int32

	cores  []namedCore
	caches []namedCache
	drams  []namedDRAM

	simulator RunClock
}

type namedCore struct {
	name string
	src  CoreSource
}

type namedCache struct {
	name string
	src  CacheSource
}

type namedDRAM struct {
	name string
	src  DRAMSource
}

// RunClock is the subset of sim.Simulator a Tracker needs to compute
// IPC at a heartbeat: the current cycle count.
type RunClock interface {
	Now() uint64
}

// New creates a Tracker for the given run ID (sim.Simulator.ID(),
// matching the teacher's xid-stamped run identifiers) and registers its
// summary-printing flush hook with atexit, so a deadlock abort or any other early
// os.Exit still prints the summary collected so far.
func New(runID string, clock RunClock) *Tracker {
	t := &Tracker{
		runID:     runID,
		pid:       int32(os.Getpid()),
		simulator: clock,
	}

	atexit.Register(func() { t.flush(os.Stderr) })

	return t
}

// RegisterCore adds a core's counters to the summary.
func (t *Tracker) RegisterCore(name string, src CoreSource) {
	t.cores = append(t.cores, namedCore{name, src})
}

// RegisterCache adds a cache level's counters to the summary.
func (t *Tracker) RegisterCache(name string, src CacheSource) {
	t.caches = append(t.caches, namedCache{name, src})
}

// RegisterDRAM adds a DRAM channel's counters to the summary.
func (t *Tracker) RegisterDRAM(name string, src DRAMSource) {
	t.drams = append(t.drams, namedDRAM{name, src})
}

// Heartbeat prints one progress line: cumulative retirement count, IPC
// over the run so far, and this process's RSS and CPU percent (spec.md §6's
// "emits resource usage alongside IPC every N instructions"). Intended
// to be called by the caller's --heartbeat-instructions loop.
func (t *Tracker) Heartbeat(w io.Writer) {
	var retired uint64
	for _, c := range t.cores {
		retired += c.src.Stats().Retired
	}

	now := t.simulator.Now()

	ipc := 0.0
	if now > 0 {
		ipc = float64(retired) / float64(now)
	}

	cpuPercent, rss := t.sampleProcess()

	fmt.Fprintf(w, "[%s] cycle=%d retired=%d ipc=%.3f cpu=%.1f%% rss=%dMB\n",
		t.runID, now, retired, ipc, cpuPercent, rss/(1024*1024))
}

// sampleProcess mirrors monitoring.Monitor.listResources's
// process.NewProcess/CPUPercent/MemoryInfo sequence, minus its JSON/HTTP
// plumbing.
func (t *Tracker) sampleProcess() (cpuPercent float64, rssBytes uint64) {
	proc, err := process.NewProcess(t.pid)
	if err != nil {
		return 0, 0
	}

	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		cpuPercent = 0
	}

	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		rssBytes = mem.RSS
	}

	return cpuPercent, rssBytes
}

// FlushAndExit prints the final summary and terminates the process with
// code, running every atexit hook registered by this or any other
// package (spec.md §7: a deadlock abort must still print a summary
// before exiting non-zero).
func (t *Tracker) FlushAndExit(code int) {
	t.flush(os.Stderr)
	atexit.Exit(code)
}

func (t *Tracker) flush(w io.Writer) {
	fmt.Fprintf(w, "=== run %s summary (cycle %d) ===\n", t.runID, t.simulator.Now())

	var totalRetired, totalBranches, totalMispred uint64

	for _, c := range t.cores {
		s := c.src.Stats()
		totalRetired += s.Retired
		totalBranches += s.Branches
		totalMispred += s.Mispredictions

		fmt.Fprintf(w, "  core %-8s retired=%d branches=%d mispredictions=%d\n",
			c.name, s.Retired, s.Branches, s.Mispredictions)
	}

	if len(t.cores) > 1 {
		fmt.Fprintf(w, "  total    retired=%d branches=%d mispredictions=%d\n",
			totalRetired, totalBranches, totalMispred)
	}

	for _, c := range t.caches {
		s := c.src.Stats()
		hits := sumAccessCounts(s.Hits)
		misses := sumAccessCounts(s.Misses)

		hitRate := 0.0
		if hits+misses > 0 {
			hitRate = float64(hits) / float64(hits+misses)
		}

		avgMissLatency := 0.0
		if misses > 0 {
			avgMissLatency = float64(s.TotalMissLatency) / float64(misses)
		}

		fmt.Fprintf(w, "  cache %-8s hits=%d misses=%d hit_rate=%.3f avg_miss_latency=%.2f pf_issued=%d pf_useful=%d pf_useless=%d\n",
			c.name, hits, misses, hitRate, avgMissLatency, s.PfIssued, s.PfUseful, s.PfUseless)
	}

	for _, d := range t.drams {
		s := d.src.Stats()

		rowBufferHitRate := 0.0
		if total := s.RowBufferHits + s.RowBufferMisses; total > 0 {
			rowBufferHitRate = float64(s.RowBufferHits) / float64(total)
		}

		fmt.Fprintf(w, "  dram %-8s reads=%d writes=%d row_buffer_hit_rate=%.3f refreshes=%d\n",
			d.name, s.ReadsServiced, s.WritesServiced, rowBufferHitRate, s.RefreshesDone)
	}
}

func sumAccessCounts(m map[replacement.AccessType]uint64) uint64 {
	var total uint64
	for _, v := range m {
		total += v
	}

	return total
}
