// Package mapping implements the ordered, disjoint list of physical
// memory ranges the boot loader builds while planning the kernel's
// address space. Each Insert call resolves any overlap against the
// existing list: Free ranges are the only flexible class and get
// truncated, split, or dropped to make room; every other type
// collides hard and Insert reports an error.
package mapping

import "github.com/xt-sys/exectos/kernel/errors"
import "github.com/xt-sys/exectos/kernel/mem"

// Mapping is one physical→virtual range in a List.
type Mapping struct {
	Physical  uintptr
	Virtual   uintptr // 0 means "no virtual mapping" (Free pages)
	PageCount uint64
	Type      mem.MemoryType

	prev, next *Mapping
}

func (m *Mapping) physicalEnd(pageSize mem.Size) uintptr {
	return m.Physical + uintptr(m.PageCount)*uintptr(pageSize) - 1
}

// List is the page map's ordered, disjoint set of mappings, sorted
// ascending by physical address.
type List struct {
	Level    uint8
	PageSize mem.Size

	head, tail *Mapping
	count      uint32
}

// Init returns an empty List for the given paging level and page
// size.
func Init(level uint8, pageSize mem.Size) *List {
	return &List{Level: level, PageSize: pageSize}
}

// MappingsCount returns the number of mappings currently in the list.
func (l *List) MappingsCount() uint32 {
	return l.count
}

// Each calls fn once per mapping, in ascending physical-address order.
// fn must not mutate the list; use Insert for that.
func (l *List) Each(fn func(m *Mapping)) {
	for m := l.head; m != nil; m = m.next {
		fn(m)
	}
}

// GetVirtual returns the virtual address that maps phys, if any
// mapping in the list covers it and carries a virtual address. A
// Virtual of zero means no mapping, whether the entry is Free
// bookkeeping or a page-table frame recorded for accounting only;
// physical page 0 itself is deliberately left out of the self-map,
// the same way a modern loader never maps the null page.
func (l *List) GetVirtual(phys uintptr) (uintptr, bool) {
	for m := l.head; m != nil; m = m.next {
		if m.Virtual == 0 {
			continue
		}
		end := m.physicalEnd(l.PageSize)
		if phys >= m.Physical && phys <= end {
			return m.Virtual + (phys - m.Physical), true
		}
	}
	return 0, false
}

func (l *List) insertBefore(at, m *Mapping) {
	m.prev = at.prev
	m.next = at
	if at.prev != nil {
		at.prev.next = m
	} else {
		l.head = m
	}
	at.prev = m
}

func (l *List) insertAfter(at, m *Mapping) {
	m.next = at.next
	m.prev = at
	if at.next != nil {
		at.next.prev = m
	} else {
		l.tail = m
	}
	at.next = m
}

func (l *List) append(m *Mapping) {
	if l.tail == nil {
		l.head, l.tail = m, m
		return
	}
	l.insertAfter(l.tail, m)
}

func (l *List) remove(m *Mapping) {
	if m.prev != nil {
		m.prev.next = m.next
	} else {
		l.head = m.next
	}
	if m.next != nil {
		m.next.prev = m.prev
	} else {
		l.tail = m.prev
	}
}

// Insert adds a mapping for nPages pages of phys to virt, resolving
// any overlap against the existing list. It returns
// errors.ErrInvalidParameter if the new mapping collides with a
// non-Free mapping.
func (l *List) Insert(virt, phys uintptr, nPages uint64, mtype mem.MemoryType) *errors.Error {
	m1 := &Mapping{Physical: phys, Virtual: virt, PageCount: nPages, Type: mtype}
	p1End := m1.physicalEnd(l.PageSize)

	node := l.head
	for node != nil {
		p2End := node.physicalEnd(l.PageSize)

		if m1.Physical >= node.Physical && p1End <= p2End && m1.Type == node.Type {
			return nil
		}

		if p1End > node.Physical && p1End <= p2End {
			if node.Type != mem.Free {
				return errors.ErrInvalidParameter
			}

			residualPages := (p2End - p1End) / uintptr(l.PageSize)
			if residualPages > 0 {
				l.insertAfter(node, &Mapping{
					Physical:  p1End + 1,
					PageCount: uint64(residualPages),
					Type:      node.Type,
				})
				l.count++
			}

			node.PageCount = uint64((p1End + 1 - node.Physical) / uintptr(l.PageSize))
			p2End = node.physicalEnd(l.PageSize)
		}

		if m1.Physical > node.Physical && m1.Physical < p2End {
			if node.Type != mem.Free {
				return errors.ErrInvalidParameter
			}

			residualPages := (p2End + 1 - m1.Physical) / uintptr(l.PageSize)
			if residualPages > 0 {
				l.insertAfter(node, &Mapping{
					Physical:  m1.Physical,
					PageCount: uint64(residualPages),
					Type:      node.Type,
				})
				l.count++
			}

			node.PageCount = uint64((m1.Physical - node.Physical) / uintptr(l.PageSize))
			p2End = node.physicalEnd(l.PageSize)
		}

		if (node.Physical >= m1.Physical && p2End <= p1End) || node.PageCount == 0 {
			if node.Type != mem.Free {
				return errors.ErrInvalidParameter
			}

			next := node.next
			l.remove(node)
			l.count--
			node = next
			continue
		}

		if node.Physical > m1.Physical {
			l.insertBefore(node, m1)
			l.count++
			return nil
		}

		node = node.next
	}

	l.append(m1)
	l.count++
	return nil
}

// Descriptors reduces the list to the simplified form the kernel's
// PFN database init routine consumes: one mem.Descriptor per mapping,
// in the same ascending physical order, dropping the virtual address
// now that the kernel derives its own mappings from this classification.
func (l *List) Descriptors() []mem.Descriptor {
	out := make([]mem.Descriptor, 0, l.count)
	for m := l.head; m != nil; m = m.next {
		out = append(out, mem.Descriptor{
			BasePage:  mem.PFNFromAddress(m.Physical),
			PageCount: m.PageCount,
			Type:      m.Type,
		})
	}
	return out
}

// Relocate rewrites the physical address of every mapping except one
// at physical address 0, for use after paging has been enabled: the list is built against physical
// addresses, but once the loader jumps through the self-map, callers
// need the same list expressed in the new address space. An empty
// list has no meaningful base to relocate from and is rejected, the
// same way the list-conversion routine it is grounded on treats a
// null head as an error rather than a silent no-op.
func (l *List) Relocate(physicalBase, virtualBase uintptr) *errors.Error {
	if l.head == nil {
		return errors.ErrInvalidParameter
	}

	for m := l.head; m != nil; m = m.next {
		if m.Physical == 0 {
			continue
		}
		m.Physical = virtualBase + (m.Physical - physicalBase)
	}
	return nil
}
