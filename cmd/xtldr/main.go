// Command xtldr is the EFI boot loader's Go entry point. The EFI
// application entry stub that receives control from the firmware is
// necessarily architecture-specific assembly, the same boundary the
// teacher's rt0 code draws around the kernel's own main(): it is not
// part of this module, and is expected to populate the package-level
// variables below before calling main.
package main

import (
	"debug/pe"
	"io"

	"github.com/xt-sys/exectos/kernel/errors"
	"github.com/xt-sys/exectos/xtldr/config"
	"github.com/xt-sys/exectos/xtldr/console"
	"github.com/xt-sys/exectos/xtldr/debug"
	"github.com/xt-sys/exectos/xtldr/firmware"
	"github.com/xt-sys/exectos/xtldr/mm/handoff"
	"github.com/xt-sys/exectos/xtldr/tui"
)

// Firmware and Volume wrap the EFI boot-services and simple-file-system
// protocol tables the entry stub already located. LoadOptions is the
// loaded image's own LoadOptions field; IniData is the contents of
// XTLDR.INI read off the boot partition, or nil if it is absent.
// EnterKernel performs the final control transfer to the kernel image
// and is itself architecture-specific assembly.
var (
	Firmware    firmware.Firmware
	Volume      firmware.Volume
	LoadOptions string
	IniData     []byte
	EnterKernel func(initBlockVA uintptr)
)

// main is the loader's entry point. It is not expected to return: on
// success, handoff.Execute transfers control to the kernel; on
// failure, the error dialog is rendered and the loop below serves as
// the last resort if Stall ever returns.
func main() {
	Run(Firmware, Volume, LoadOptions, IniData, EnterKernel)
	for {
	}
}

// Run wires the loader's external collaborators together and executes
// the full kernel handoff sequence. It is split out from main so that
// tests can exercise it against fakes for Firmware and Volume.
func Run(fw firmware.Firmware, vol firmware.Volume, loadOptions string, iniData []byte, enterKernel func(uintptr)) {
	cfg, cfgErr := config.Parse(loadOptions, iniData)
	if cfgErr != nil {
		fail(fw, cfgErr)
		return
	}

	debugSpec, _ := cfg.Get(config.KeyDebug)
	targets, _ := debug.ParseTargets(debugSpec)

	var screenCons console.Framebuffer
	screenCons.Attach(0xB8000, 80, 25)

	var term tui.Terminal
	term.AttachTo(&screenCons)

	logger, logErr := debug.NewLogger(targets, debug.Writers{
		Screen: &term,
		SerialFor: func(t debug.Target) (io.Writer, *errors.Error) {
			return nil, errors.ErrNotReady
		},
	})
	if logErr != nil {
		fail(fw, logErr)
		return
	}
	logger.Info().Msg("exectos boot loader starting")

	kernelFile, _ := cfg.Get(config.KeyKernelFile)
	params, _ := cfg.Get(config.KeyParameters)

	hcfg := handoff.Config{
		Level:          4,
		Firmware:       fw,
		Volume:         vol,
		KernelFileName: kernelFile,
		WantMachine:    uint16(pe.IMAGE_FILE_MACHINE_AMD64),
		KernelParams:   params,
		EnterKernel:    enterKernel,
	}

	logger.Info().Str("kernel", kernelFile).Msg("starting kernel handoff")
	if err := handoff.Execute(hcfg); err != nil {
		logger.Error().Str("module", err.Module).Str("message", err.Message).Msg("kernel handoff failed")
		fail(fw, err)
	}
}

// fail renders the fatal error dialog and, if firmware services are
// still available, stalls indefinitely rather than letting the loader
// fall through to undefined behavior.
func fail(fw firmware.Firmware, err *errors.Error) {
	var cons console.Framebuffer
	cons.Attach(0xB8000, 80, 25)
	tui.ShowError(&cons, err)

	if fw != nil {
		fw.Stall(^uint64(0))
	}
}
