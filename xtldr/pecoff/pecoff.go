// Package pecoff validates and inspects PE/COFF executables loaded
// from the EFI system partition, wrapping the standard library's
// debug/pe reader with the DOS/NT signature and machine-type checks
// the boot loader needs before it will map an image.
package pecoff

import (
	"bytes"
	"debug/pe"

	"github.com/xt-sys/exectos/kernel/errors"
)

// dosHeaderSize is the minimum size of a valid MS-DOS stub header; an
// image shorter than this cannot carry a PE signature at all.
const dosHeaderSize = 64

// Image is a validated PE/COFF executable: a kernel or HAL module
// loaded from the boot volume.
type Image struct {
	file *pe.File

	EntryPoint  uint64
	ImageBase   uint64
	SizeOfImage uint32
	Machine     uint16
}

// Section describes one PE section's placement, for mapping its pages
// with the correct access attributes.
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics uint32
}

// Load parses and validates a PE/COFF image already read fully into
// memory. wantMachine is the expected pe.IMAGE_FILE_MACHINE_* value;
// pass 0 to accept any machine type.
func Load(data []byte, wantMachine uint16) (*Image, *errors.Error) {
	if len(data) < dosHeaderSize {
		return nil, errors.ErrEndOfFile
	}
	// The MS-DOS stub starts with "MZ"; its absence means this is not
	// a PE/COFF image at all rather than a version mismatch we can
	// usefully describe, so it is still reported as IncompatibleVersion.
	if data[0] != 'M' || data[1] != 'Z' {
		return nil, errors.ErrIncompatibleVersion
	}

	file, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New("pecoff", "malformed PE/COFF image: "+err.Error(), errors.CodeIncompatibleVersion)
	}

	if wantMachine != 0 && file.Machine != wantMachine {
		return nil, errors.ErrIncompatibleVersion
	}

	if file.Characteristics&pe.IMAGE_FILE_EXECUTABLE_IMAGE == 0 {
		return nil, errors.ErrLoadError
	}

	image := &Image{file: file, Machine: file.Machine}

	switch opt := file.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		image.EntryPoint = uint64(opt.AddressOfEntryPoint)
		image.ImageBase = uint64(opt.ImageBase)
		image.SizeOfImage = opt.SizeOfImage
	case *pe.OptionalHeader64:
		image.EntryPoint = uint64(opt.AddressOfEntryPoint)
		image.ImageBase = opt.ImageBase
		image.SizeOfImage = opt.SizeOfImage
	default:
		return nil, errors.ErrProtocolError
	}

	return image, nil
}

// Sections returns the image's section layout in file order.
func (i *Image) Sections() []Section {
	sections := make([]Section, len(i.file.Sections))
	for idx, s := range i.file.Sections {
		sections[idx] = Section{
			Name:            s.Name,
			VirtualAddress:  s.VirtualAddress,
			VirtualSize:     s.VirtualSize,
			Characteristics: s.Characteristics,
		}
	}
	return sections
}
