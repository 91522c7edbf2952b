package cpu

var (
	cpuidFn = ID
)

// apicFeatureLeaf and apicFeatureBit locate CPUID.01:EDX bit 9, which
// HasApic reads to confirm the local APIC exists before the kernel
// handoff path touches its MSR.
const (
	apicFeatureLeaf = 1
	apicFeatureBit  = 9

	// ApicBaseMsr is the IA32_APIC_BASE MSR; bits 12-31 hold the APIC's
	// physical base address.
	ApicBaseMsr = 0x1B
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It is
// implemented as a CPUID instruction with EAX=leaf and returns the
// values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// ReadMSR returns the 64-bit value of the model-specific register
// named by id.
func ReadMSR(id uint32) uint64

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// HasApic reports whether CPUID.01:EDX.APIC (bit 9) is set.
func HasApic() bool {
	_, _, _, edx := cpuidFn(apicFeatureLeaf)
	return edx&(1<<apicFeatureBit) != 0
}

var readMSRFn = ReadMSR

// ApicBase returns the physical base address of the local APIC, read
// from IA32_APIC_BASE and masked to its page-aligned address field.
func ApicBase() uintptr {
	return uintptr(readMSRFn(ApicBaseMsr) & 0xFFFFF000)
}
