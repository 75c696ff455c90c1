// Command ooosim wires together the cache/DRAM/PTW/core modules into a
// runnable trace-driven simulation. Grounded on the teacher's only other
// cobra usage, akitav5/cmd/component.go's flag-driven cobra.Command
// (re-purposed here for simulation control instead of code generation)
// and the noc/acceptance example mains' build-network-then-run-engine
// shape (noc/acceptance/one_to_one/main.go).
package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sarchlab/ooosim/cache"
	"github.com/sarchlab/ooosim/cache/prefetcher"
	"github.com/sarchlab/ooosim/channel"
	"github.com/sarchlab/ooosim/core"
	"github.com/sarchlab/ooosim/core/predictor"
	"github.com/sarchlab/ooosim/dram"
	"github.com/sarchlab/ooosim/ptw"
	"github.com/sarchlab/ooosim/sim"
	"github.com/sarchlab/ooosim/stats"
	"github.com/sarchlab/ooosim/trace"
)

const (
	channelCapacity   = 64
	deadlockWindow    = 10000
	memoryControllerCapacity = 1 << 16
)

var (
	warmupInstructions      int64
	simulationInstructions  int64
	heartbeatInstructions   int64
	cpuprofilePath          string
	dramPreset              string
)

func main() {
	// A missing .env is not an error; it just means no defaults are
	// pre-seeded, matching the common cobra+godotenv pairing where the
	// file is optional local developer convenience.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "ooosim [flags] <trace-path>...",
		Short: "Run a cycle-accurate out-of-order core/cache/DRAM simulation from one instruction trace per CPU.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  run,
	}

	root.Flags().Int64Var(&warmupInstructions, "warmup-instructions",
		envInt64Default("OOOSIM_WARMUP_INSTRUCTIONS", 0),
		"instructions to run before measurement begins")
	root.Flags().Int64Var(&simulationInstructions, "simulation-instructions",
		envInt64Default("OOOSIM_SIMULATION_INSTRUCTIONS", 1_000_000),
		"instructions to run in the measured region, per CPU")
	root.Flags().Int64Var(&heartbeatInstructions, "heartbeat-instructions",
		envInt64Default("OOOSIM_HEARTBEAT_INSTRUCTIONS", 100_000),
		"retired-instruction interval between heartbeat lines (0 disables)")
	root.Flags().StringVar(&cpuprofilePath, "cpuprofile", "", "write a CPU profile to this path")
	root.Flags().StringVar(&dramPreset, "dram-preset", "ddr4", "DRAM timing preset: ddr4 or lpddr4")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envInt64Default(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}

	return n
}

func dramTiming(preset string) dram.Timing {
	switch preset {
	case "lpddr4":
		return dram.LPDDR4_3200
	default:
		return dram.DDR4_2400
	}
}

func run(_ *cobra.Command, tracePaths []string) error {
	if cpuprofilePath != "" {
		f, err := os.Create(cpuprofilePath)
		if err != nil {
			return fmt.Errorf("ooosim: creating cpu profile: %w", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("ooosim: starting cpu profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	m, err := buildMachine(tracePaths)
	if err != nil {
		return err
	}
	defer m.closeTraces()

	for _, c := range m.mc.Channels() {
		m.tracker.RegisterDRAM(c.Name(), c)
	}
	m.tracker.RegisterCache("LLC", m.llc)
	m.tracker.RegisterCache("L2", m.l2)

	for i, cpu := range m.cpus {
		m.tracker.RegisterCore(fmt.Sprintf("core%d", i), cpu.core)
		m.tracker.RegisterCache(fmt.Sprintf("L1I%d", i), cpu.l1i)
		m.tracker.RegisterCache(fmt.Sprintf("L1D%d", i), cpu.l1d)
	}

	if warmupInstructions > 0 {
		m.setWarmup(true)

		if err := m.runUntilRetired(uint64(warmupInstructions), true); err != nil {
			m.tracker.FlushAndExit(1)
			return err
		}

		m.setWarmup(false)
		m.resetStats()
	}

	if err := m.runUntilRetired(uint64(simulationInstructions), false); err != nil {
		m.tracker.FlushAndExit(1)
		return err
	}

	m.tracker.FlushAndExit(0)

	return nil
}

// oneCPU bundles one core's private slice of the memory hierarchy.
type oneCPU struct {
	core *core.Comp
	l1i  *cache.Comp
	l1d  *cache.Comp

	traceFile *os.File
}

type machine struct {
	sim     *sim.Simulator
	tracker *stats.Tracker

	mc  *dram.MemoryController
	llc *cache.Comp
	l2  *cache.Comp

	cpus []*oneCPU
}

func (m *machine) closeTraces() {
	for _, c := range m.cpus {
		if c.traceFile != nil {
			c.traceFile.Close()
		}
	}
}

func (m *machine) setWarmup(warmup bool) {
	m.mc.SetWarmup(warmup)
}

func (m *machine) resetStats() {
	// Every counter lives on its owning component's Stats struct, so this
	// rebuilds the tracker and re-registers each component rather than
	// mutating component internals. No counter is zeroed: the tracker
	// reads the components' cumulative Stats, so the measured-region
	// summary still includes warmup activity.
	m.tracker = stats.New(m.sim.ID(), m.sim)

	m.tracker.RegisterCache("LLC", m.llc)
	m.tracker.RegisterCache("L2", m.l2)

	for _, c := range m.mc.Channels() {
		m.tracker.RegisterDRAM(c.Name(), c)
	}

	for i, cpu := range m.cpus {
		m.tracker.RegisterCore(fmt.Sprintf("core%d", i), cpu.core)
		m.tracker.RegisterCache(fmt.Sprintf("L1I%d", i), cpu.l1i)
		m.tracker.RegisterCache(fmt.Sprintf("L1D%d", i), cpu.l1d)
	}
}

// runUntilRetired steps the simulator until every CPU's core has
// retired at least target instructions (0 meaning "run until the trace
// drains" for the measured region), reporting a heartbeat periodically
// and treating a core finishing its trace before the target as a fatal
// error only when warmup is requested (spec.md §6.1: "io.EOF during
// warmup is promoted to the fatal trace-exhausted-mid-warmup error").
func (m *machine) runUntilRetired(target uint64, isWarmup bool) error {
	lastHeartbeat := uint64(0)

	for {
		done := true
		minRetired := ^uint64(0)

		for _, cpu := range m.cpus {
			retired := cpu.core.Stats().Retired
			if retired < minRetired {
				minRetired = retired
			}

			if target == 0 {
				if !cpu.core.Done() {
					done = false
				}
			} else if retired < target && (isWarmup || !cpu.core.Done()) {
				done = false
			}
		}

		if done {
			return nil
		}

		if isWarmup {
			for i, cpu := range m.cpus {
				if cpu.core.Done() && cpu.core.Stats().Retired < target {
					return fmt.Errorf("ooosim: trace exhausted mid-warmup on core%d", i)
				}
			}
		}

		if err := m.sim.Run(1, os.Stderr); err != nil {
			return err
		}

		if heartbeatInstructions > 0 && minRetired-lastHeartbeat >= uint64(heartbeatInstructions) {
			m.tracker.Heartbeat(os.Stderr)
			lastHeartbeat = minRetired
		}
	}
}

func buildMachine(tracePaths []string) (*machine, error) {
	s := sim.NewSimulator(deadlockWindow)
	tracker := stats.New(s.ID(), s)

	geom := dram.DefaultGeometry()
	mc := dram.NewMemoryController("MC", geom, dramTiming(dramPreset))
	mcUpper := channel.NewChannel("MC.Upper", memoryControllerCapacity, memoryControllerCapacity, 0)
	mc.SetUpperChannel(mcUpper)
	s.Register("MC", sim.Freq(1), mc)

	llc := cache.MakeBuilder().
		WithName("LLC").
		WithGeometry(2048, 16).
		WithLatency(30, 1).
		WithBandwidth(4, 4).
		WithMSHRSize(64).
		WithPQSize(32).
		Build()
	llc.SetLowerChannel(mcUpper)
	l2Upper := channel.NewChannel("L2.Upper", channelCapacity, channelCapacity, channelCapacity)
	llc.AddUpperChannel(l2Upper)
	s.Register("LLC", sim.Freq(1), llc)

	l2 := cache.MakeBuilder().
		WithName("L2").
		WithGeometry(512, 8).
		WithLatency(10, 1).
		WithBandwidth(4, 2).
		WithMSHRSize(32).
		WithPQSize(16).
		WithPrefetcher(prefetcher.NewStride()).
		Build()
	l2.SetLowerChannel(l2Upper)
	s.Register("L2", sim.Freq(1), l2)

	m := &machine{sim: s, tracker: tracker, mc: mc, llc: llc, l2: l2}

	for i, path := range tracePaths {
		cpu, err := buildCPU(s, l2, i, path)
		if err != nil {
			m.closeTraces()
			return nil, err
		}

		m.cpus = append(m.cpus, cpu)
	}

	return m, nil
}

func buildCPU(s *sim.Simulator, l2 *cache.Comp, cpuID int, tracePath string) (*oneCPU, error) {
	f, err := os.Open(tracePath)
	if err != nil {
		return nil, fmt.Errorf("ooosim: opening trace %q: %w", tracePath, err)
	}

	reader := trace.NewReader(f)

	l1iUpper := channel.NewChannel(fmt.Sprintf("L2.Upper.L1I%d", cpuID), channelCapacity, channelCapacity, channelCapacity)
	l2.AddUpperChannel(l1iUpper)
	l1i := cache.MakeBuilder().
		WithName(fmt.Sprintf("L1I%d", cpuID)).
		WithGeometry(64, 8).
		WithLatency(4, 1).
		Build()
	l1i.SetLowerChannel(l1iUpper)

	l1dUpper := channel.NewChannel(fmt.Sprintf("L2.Upper.L1D%d", cpuID), channelCapacity, channelCapacity, channelCapacity)
	l2.AddUpperChannel(l1dUpper)
	l1d := cache.MakeBuilder().
		WithName(fmt.Sprintf("L1D%d", cpuID)).
		WithGeometry(64, 8).
		WithLatency(4, 1).
		Build()
	l1d.SetLowerChannel(l1dUpper)

	// PTW has no lower memory channel of its own here: it resolves each
	// level through the self-timed LevelLatency fallback (ptw.New's nil
	// lower case) rather than issuing real memory accesses, so its upper
	// channel (STLB's lower channel) is never also used as its own lower
	// channel.
	stlbToPTW := channel.NewChannel(fmt.Sprintf("STLB%d.Lower", cpuID), channelCapacity, channelCapacity, 0)
	pageWalker := ptw.New(fmt.Sprintf("PTW%d", cpuID), ptw.DefaultConfig(), nil)
	s.Register(fmt.Sprintf("PTW%d", cpuID), sim.Freq(1), pageWalker)

	stlb := cache.MakeBuilder().
		WithName(fmt.Sprintf("STLB%d", cpuID)).
		WithGeometry(16, 4).
		WithLatency(7, 1).
		WithOffsetBits(12).
		WithMatchOffsetBits(true).
		Build()
	stlb.SetLowerChannel(stlbToPTW)
	stlbUpper := channel.NewChannel(fmt.Sprintf("STLB%d.Upper", cpuID), channelCapacity, channelCapacity, 0)
	stlb.AddUpperChannel(stlbUpper)
	pageWalker.SetUpperChannel(stlbToPTW)
	s.Register(fmt.Sprintf("STLB%d", cpuID), sim.Freq(1), stlb)

	l1d.SetTranslationChannel(stlbUpper)

	s.Register(fmt.Sprintf("L1I%d", cpuID), sim.Freq(1), l1i)
	s.Register(fmt.Sprintf("L1D%d", cpuID), sim.Freq(1), l1d)

	l1iCoreUpper := channel.NewChannel(fmt.Sprintf("L1I%d.Core", cpuID), channelCapacity, channelCapacity, 0)
	l1i.AddUpperChannel(l1iCoreUpper)
	l1dCoreUpper := channel.NewChannel(fmt.Sprintf("L1D%d.Core", cpuID), channelCapacity, channelCapacity, 0)
	l1d.AddUpperChannel(l1dCoreUpper)

	chain := predictor.NewChain(predictor.NewBimodal(4096))
	btb := predictor.NewDirectMappedBTB(4096)

	c := core.New(fmt.Sprintf("core%d", cpuID), core.DefaultConfig(), cpuID, chain, btb, l1iCoreUpper, l1dCoreUpper, reader)
	s.Register(fmt.Sprintf("core%d", cpuID), sim.Freq(1), c)

	return &oneCPU{core: c, l1i: l1i, l1d: l1d, traceFile: f}, nil
}
