package pte

import (
	"testing"
	"unsafe"

	"github.com/xt-sys/exectos/kernel/mem"
)

func newLegacy() Legacy {
	var word uint32
	return NewLegacy(uintptr(unsafe.Pointer(&word)))
}

func newXpa() Xpa {
	var word uint64
	return NewXpa(uintptr(unsafe.Pointer(&word)))
}

func TestLegacyFrameEncoding(t *testing.T) {
	p := newLegacy()
	frame := mem.PFN(123)

	p.Set(frame, FlagWritable)
	if got := p.Frame(); got != frame {
		t.Fatalf("expected Frame() to return %v; got %v", frame, got)
	}

	if !p.Valid() {
		t.Fatal("expected Set to mark the entry valid")
	}

	if !p.HasFlags(FlagWritable) {
		t.Fatal("expected Set to apply the requested attribute flags")
	}
}

func TestXpaFrameEncoding(t *testing.T) {
	p := newXpa()
	frame := mem.PFN(0xABCDEF)

	p.Set(frame, FlagWritable|FlagGlobal)
	if got := p.Frame(); got != frame {
		t.Fatalf("expected Frame() to return %v; got %v", frame, got)
	}

	if !p.HasFlags(FlagWritable | FlagGlobal) {
		t.Fatal("expected both requested flags to be set")
	}
}

func TestTransitionClearsValidAndStoresProtection(t *testing.T) {
	for _, p := range []PTE{newLegacy(), newXpa()} {
		p.Set(mem.PFN(7), FlagWritable)
		p.Transition(0x15)

		if p.Valid() {
			t.Fatal("expected Transition to clear the valid bit")
		}
		if !p.SoftwareTransition() {
			t.Fatal("expected Transition to set the software transition bit")
		}
		if got := p.SoftwareProtection(); got != 0x15 {
			t.Fatalf("expected protection 0x15; got %#x", got)
		}
	}
}

func TestSoftwarePrototypeBit(t *testing.T) {
	for _, p := range []PTE{newLegacy(), newXpa()} {
		if p.SoftwarePrototype() {
			t.Fatal("expected a fresh entry to not be a prototype PTE")
		}
		p.SetSoftwarePrototype(true)
		if !p.SoftwarePrototype() {
			t.Fatal("expected SetSoftwarePrototype(true) to stick")
		}
	}
}

// TestNextEntrySentinel exercises the empty-PTE list link: writing the
// backend-independent ListTerminator must read back as ListTerminator
// regardless of the underlying field width (20 bits for Legacy, 32 for
// Xpa).
func TestNextEntrySentinel(t *testing.T) {
	legacy := newLegacy()
	legacy.SetNextEntry(ListTerminator)
	if got := legacy.NextEntry(); got != ListTerminator {
		t.Fatalf("expected legacy ListTerminator round-trip; got %#x", got)
	}

	xpa := newXpa()
	xpa.SetNextEntry(ListTerminator)
	if got := xpa.NextEntry(); got != ListTerminator {
		t.Fatalf("expected xpa ListTerminator round-trip; got %#x", got)
	}

	legacy.SetNextEntry(42)
	if got := legacy.NextEntry(); got != 42 {
		t.Fatalf("expected legacy NextEntry round-trip of 42; got %d", got)
	}

	xpa.SetNextEntry(42)
	if got := xpa.NextEntry(); got != 42 {
		t.Fatalf("expected xpa NextEntry round-trip of 42; got %d", got)
	}
}

func TestOneEntryFlag(t *testing.T) {
	for _, p := range []PTE{newLegacy(), newXpa()} {
		p.SetOneEntry(true)
		if !p.OneEntry() {
			t.Fatal("expected OneEntry to report true after SetOneEntry(true)")
		}
		p.SetOneEntry(false)
		if p.OneEntry() {
			t.Fatal("expected OneEntry to report false after SetOneEntry(false)")
		}
	}
}

func TestAdvanceAndDistance(t *testing.T) {
	backing := make([]uint64, 4)
	base := NewXpa(uintptr(unsafe.Pointer(&backing[0])))

	third := base.Advance(3)
	if got := Distance(third, base); got != 3 {
		t.Fatalf("expected distance 3; got %d", got)
	}

	back := third.Advance(-3)
	if back.Address() != base.Address() {
		t.Fatalf("expected Advance(-3) to return to the base address")
	}
}

func TestCachingAttributes(t *testing.T) {
	p := newXpa()
	p.SetCaching(true, false)
	if !p.HasFlags(FlagCacheDisable) {
		t.Fatal("expected cache-disable to be set")
	}
	if p.HasFlags(FlagWriteThrough) {
		t.Fatal("expected write-through to remain clear")
	}

	p.SetCaching(false, true)
	if p.HasFlags(FlagCacheDisable) {
		t.Fatal("expected cache-disable to be cleared")
	}
	if !p.HasFlags(FlagWriteThrough) {
		t.Fatal("expected write-through to be set")
	}
}

func TestClearResetsWholeWord(t *testing.T) {
	for _, p := range []PTE{newLegacy(), newXpa()} {
		p.Set(mem.PFN(5), FlagWritable)
		p.SetSoftwareProtection(3)
		p.Clear()

		if p.Value() != 0 {
			t.Fatalf("expected Clear to zero the entire word; got %#x", p.Value())
		}
	}
}
