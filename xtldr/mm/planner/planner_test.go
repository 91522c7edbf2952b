package planner

import (
	"testing"

	"github.com/xt-sys/exectos/kernel/mem"
	"github.com/xt-sys/exectos/xtldr/firmware"
	"github.com/xt-sys/exectos/xtldr/mm/mapping"
)

func TestS3FirmwareMapClassification(t *testing.T) {
	list := mapping.Init(4, pageSize)
	nextVirt := uintptr(0xFFFF_8000_0000_0000)

	descriptors := []firmware.MemoryDescriptor{
		{Type: firmware.EfiBootServicesData, PhysicalStart: 0x10_0000, NumberOfPages: 1},
		{Type: firmware.EfiACPIReclaimMemory, PhysicalStart: 0xBF00_0000, NumberOfPages: 1},
		{Type: firmware.EfiConventionalMemory, PhysicalStart: 0x20_0000, NumberOfPages: 1},
	}

	if err := MapEfiMemory(list, &nextVirt, descriptors, 4, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var byType = map[mem.MemoryType][]*mapping.Mapping{}
	list.Each(func(m *mapping.Mapping) { byType[m.Type] = append(byType[m.Type], m) })

	firmwareTemp := byType[mem.FirmwareTemporary]
	if len(firmwareTemp) == 0 {
		t.Fatal("expected at least one FirmwareTemporary mapping")
	}
	if firmwareTemp[0].Physical != 0x10_0000 || firmwareTemp[0].Virtual != 0x10_0000 {
		t.Fatalf("expected BootServicesData to be identity-mapped; got %+v", firmwareTemp[0])
	}

	special := byType[mem.SpecialMemory]
	if len(special) != 1 {
		t.Fatalf("expected exactly one SpecialMemory mapping; got %d", len(special))
	}
	if special[0].Virtual == special[0].Physical || special[0].Virtual == 0 {
		t.Fatalf("expected ACPIReclaim to be mapped at a loader-assigned virtual address, not identity or Free; got %+v", special[0])
	}

	free := byType[mem.Free]
	foundFree := false
	for _, m := range free {
		if m.Physical == 0x20_0000 {
			foundFree = true
			if m.Virtual != 0 {
				t.Fatalf("expected ConventionalMemory to be Free with no virtual mapping; got %+v", m)
			}
		}
	}
	if !foundFree {
		t.Fatal("expected a Free mapping covering the ConventionalMemory descriptor")
	}

	if _, ok := list.GetVirtual(0); ok {
		t.Fatal("expected physical page 0 to never resolve through GetVirtual, the same as any other zero-virtual bookkeeping entry")
	}
	if got, ok := list.GetVirtual(0xA0000); !ok || got != 0xA0000 {
		t.Fatalf("expected the VGA/BIOS region to be identity-mapped; got %#x, ok=%v", got, ok)
	}

	if nextVirt <= 0xFFFF_8000_0000_0000 {
		t.Fatal("expected nextVirt to be bumped past the SpecialMemory mapping")
	}
}

func TestMapEfiMemorySkipsReservedAndClipsAboveMaxAddress(t *testing.T) {
	list := mapping.Init(2, pageSize)
	nextVirt := uintptr(0xC000_0000)

	descriptors := []firmware.MemoryDescriptor{
		{Type: firmware.EfiReservedMemory, PhysicalStart: 0x1000, NumberOfPages: 1},
		{Type: firmware.EfiConventionalMemory, PhysicalStart: maxAddress4GiB - pageSize, NumberOfPages: 4},
	}

	if err := MapEfiMemory(list, &nextVirt, descriptors, 2, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := list.GetVirtual(0x1000); ok {
		t.Fatal("expected the reserved descriptor to never be mapped")
	}

	found := false
	list.Each(func(m *mapping.Mapping) {
		if m.Physical == maxAddress4GiB-pageSize {
			found = true
			if m.PageCount != 1 {
				t.Fatalf("expected the descriptor to be clipped to 1 page at the 4 GiB boundary; got %d", m.PageCount)
			}
		}
	})
	if !found {
		t.Fatal("expected the clipped descriptor to still produce a mapping for its in-bounds page")
	}
}

func TestDefaultClassifyTable(t *testing.T) {
	cases := []struct {
		in   firmware.EfiMemoryType
		want mem.MemoryType
	}{
		{firmware.EfiACPIMemoryNVS, mem.SpecialMemory},
		{firmware.EfiRuntimeServicesCode, mem.FirmwarePermanent},
		{firmware.EfiBootServicesData, mem.FirmwareTemporary},
		{firmware.EfiUnusableMemory, mem.Bad},
		{firmware.EfiConventionalMemory, mem.Free},
	}
	for _, c := range cases {
		if got := DefaultClassify(c.in); got != c.want {
			t.Errorf("DefaultClassify(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
