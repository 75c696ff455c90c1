package channel

import "testing"

func TestAddQueuesRespectCapacity(t *testing.T) {
	c := NewChannel("L1I-to-L2", 1, 1, 1)

	if !c.AddRQ(&Request{PhysicalAddress: 0x100}) {
		t.Fatal("expected first RQ add to succeed")
	}

	if c.AddRQ(&Request{PhysicalAddress: 0x200}) {
		t.Fatal("expected second RQ add to fail: over capacity")
	}

	if c.RQLen() != 1 {
		t.Fatalf("expected RQ len 1, got %d", c.RQLen())
	}
}

func TestCheckCollisionMergesSameBlock(t *testing.T) {
	c := NewChannel("test", 8, 8, 8)

	a := &Request{PhysicalAddress: 0x40, InstrDependOnMe: []uint64{1}}
	b := &Request{PhysicalAddress: 0x41, InstrDependOnMe: []uint64{2}}

	c.AddRQ(a)
	c.AddRQ(b)
	c.CheckCollision()

	if c.RQLen() != 1 {
		t.Fatalf("expected merge down to 1 entry, got %d", c.RQLen())
	}

	got := c.RQ()[0].InstrDependOnMe
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected merged dependents [1 2], got %v", got)
	}
}

func TestCheckCollisionForwardsWriteToRead(t *testing.T) {
	c := NewChannel("test", 8, 8, 8)

	data := make([]byte, BlockSize)
	data[0] = 0xAB

	c.AddWQ(&Request{PhysicalAddress: 0x80, Data: data})
	c.AddRQ(&Request{PhysicalAddress: 0x80})
	c.CheckCollision()

	if c.RQLen() != 0 {
		t.Fatalf("expected the read to be forwarded away, got RQLen=%d", c.RQLen())
	}

	returned := c.Returned()
	if len(returned) != 1 || returned[0].Data[0] != 0xAB {
		t.Fatalf("expected forwarded response carrying write data, got %v", returned)
	}
}

func TestReturnedIsClearedOnDemand(t *testing.T) {
	c := NewChannel("test", 8, 8, 8)
	c.Return(&Request{})

	if len(c.Returned()) != 1 {
		t.Fatal("expected one returned entry")
	}

	c.ClearReturned()

	if len(c.Returned()) != 0 {
		t.Fatal("expected Returned to be empty after clear")
	}
}
