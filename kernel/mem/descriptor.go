package mem

// Descriptor is a simplified memory-descriptor record: the form the
// loader's mapping list is reduced to before it is handed across to
// the kernel in the initialization block, and the form the PFN
// database init routine consumes.
type Descriptor struct {
	BasePage  PFN
	PageCount uint64
	Type      MemoryType
}
