// Package errors defines the allocation-free error type shared by the
// boot loader and the kernel. Memory allocation is not available for
// most of the code paths that can fail here, so errors are represented
// as package-level sentinels instead of values constructed with
// errors.New.
package errors

// Code classifies the reason an operation failed. The taxonomy mirrors
// the status codes returned across the EFI/XT boundary.
type Code uint8

const (
	// CodeInvalidParameter indicates a null required input, a non-Free
	// overlap during mapping insertion, a malformed device path, or a
	// bad INI section.
	CodeInvalidParameter Code = iota + 1
	// CodeNotFound indicates a missing ACPI table, configuration file,
	// or boot protocol for a system type.
	CodeNotFound
	// CodeOutOfResources indicates an allocation failure from firmware,
	// or a remap request spanning more than two pages that failed.
	CodeOutOfResources
	// CodeProtocolError indicates missing loader-image info or a
	// missing PE/COFF protocol.
	CodeProtocolError
	// CodeIncompatibleVersion indicates a PE/COFF DOS/NT signature
	// mismatch or the wrong machine type.
	CodeIncompatibleVersion
	// CodeEndOfFile indicates a PE/COFF image shorter than its DOS
	// header.
	CodeEndOfFile
	// CodeLoadError indicates a non-executable PE/COFF image, or that
	// the kernel entry point returned.
	CodeLoadError
	// CodeUnsupported indicates an unknown relocation directive, a
	// CPU that reports no APIC, or firmware lacking a capability.
	CodeUnsupported
	// CodeNotReady indicates the debug console failed to initialize.
	CodeNotReady
	// CodeBufferTooSmall signals the memory-map retry loop; it is
	// never meant to be surfaced to the user.
	CodeBufferTooSmall
	// CodeCrcError indicates an ACPI table checksum mismatch.
	CodeCrcError
)

// Error is a trivial, allocation-free error carrier. It is used instead
// of errors.New/fmt.Errorf so that every fallible call site can return a
// pointer to a statically allocated value.
type Error struct {
	// Module names the package or subsystem that raised the error.
	Module string
	// Message is a short human-readable description.
	Message string
	// Code classifies the failure for programmatic handling.
	Code Code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

var (
	ErrInvalidParameter    = &Error{Module: "errors", Message: "invalid parameter", Code: CodeInvalidParameter}
	ErrNotFound            = &Error{Module: "errors", Message: "not found", Code: CodeNotFound}
	ErrOutOfResources      = &Error{Module: "errors", Message: "out of resources", Code: CodeOutOfResources}
	ErrProtocolError       = &Error{Module: "errors", Message: "protocol error", Code: CodeProtocolError}
	ErrIncompatibleVersion = &Error{Module: "errors", Message: "incompatible version", Code: CodeIncompatibleVersion}
	ErrEndOfFile           = &Error{Module: "errors", Message: "end of file", Code: CodeEndOfFile}
	ErrLoadError           = &Error{Module: "errors", Message: "load error", Code: CodeLoadError}
	ErrUnsupported         = &Error{Module: "errors", Message: "unsupported", Code: CodeUnsupported}
	ErrNotReady            = &Error{Module: "errors", Message: "not ready", Code: CodeNotReady}
	ErrBufferTooSmall      = &Error{Module: "errors", Message: "buffer too small", Code: CodeBufferTooSmall}
	ErrCrcError            = &Error{Module: "errors", Message: "crc error", Code: CodeCrcError}
)

// New returns a new *Error for a module-specific condition that does not
// have a shared sentinel.
func New(module, message string, code Code) *Error {
	return &Error{Module: module, Message: message, Code: code}
}
