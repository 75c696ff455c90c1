package stats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sarchlab/ooosim/cache"
	"github.com/sarchlab/ooosim/cache/replacement"
	"github.com/sarchlab/ooosim/core"
	"github.com/sarchlab/ooosim/dram"
)

type fakeClock struct{ now uint64 }

func (c fakeClock) Now() uint64 { return c.now }

type fakeCore struct{ s core.Stats }

func (f fakeCore) Stats() core.Stats { return f.s }

type fakeCache struct{ s cache.Stats }

func (f fakeCache) Stats() cache.Stats { return f.s }

type fakeDRAM struct{ s dram.Stats }

func (f fakeDRAM) Stats() dram.Stats { return f.s }

func TestHeartbeatReportsIPC(t *testing.T) {
	tr := &Tracker{
		runID:     "test-run",
		simulator: fakeClock{now: 100},
	}
	tr.RegisterCore("core0", fakeCore{s: core.Stats{Retired: 50}})

	var buf bytes.Buffer
	tr.Heartbeat(&buf)

	out := buf.String()
	if !strings.Contains(out, "cycle=100") {
		t.Fatalf("expected cycle=100 in %q", out)
	}

	if !strings.Contains(out, "retired=50") {
		t.Fatalf("expected retired=50 in %q", out)
	}

	if !strings.Contains(out, "ipc=0.500") {
		t.Fatalf("expected ipc=0.500 in %q", out)
	}
}

func TestFlushSummarizesEveryRegisteredComponent(t *testing.T) {
	tr := &Tracker{
		runID:     "test-run",
		simulator: fakeClock{now: 10},
	}

	tr.RegisterCore("core0", fakeCore{s: core.Stats{Retired: 9, Branches: 2, Mispredictions: 1}})

	cacheStats := cache.Stats{
		Hits:             map[replacement.AccessType]uint64{replacement.AccessLoad: 8},
		Misses:           map[replacement.AccessType]uint64{replacement.AccessLoad: 2},
		TotalMissLatency: 40,
		PfIssued:         3,
		PfUseful:         1,
		PfUseless:        2,
	}
	tr.RegisterCache("l1d", fakeCache{s: cacheStats})

	tr.RegisterDRAM("ch0", fakeDRAM{s: dram.Stats{
		ReadsServiced:   5,
		WritesServiced:  1,
		RowBufferHits:   3,
		RowBufferMisses: 3,
		RefreshesDone:   1,
	}})

	var buf bytes.Buffer
	tr.flush(&buf)

	out := buf.String()

	for _, want := range []string{
		"run test-run summary",
		"core core0",
		"retired=9 branches=2 mispredictions=1",
		"cache l1d",
		"hits=8 misses=2 hit_rate=0.800",
		"avg_miss_latency=20.00",
		"dram ch0",
		"row_buffer_hit_rate=0.500",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected summary to contain %q, got %q", want, out)
		}
	}
}
