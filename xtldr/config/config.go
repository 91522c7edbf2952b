// Package config loads the boot loader's configuration: UEFI shell
// KEY=VALUE load options first, then XTLDR.INI layered on top without
// overwriting a key the command line already set. Non-global sections
// of the INI file become boot menu entries, one per operating system.
package config

import (
	"strings"

	"github.com/xt-sys/exectos/kernel/errors"
	"gopkg.in/ini.v1"
)

// Well-known global and per-entry option names, per the persisted
// configuration layout.
const (
	KeyDefault     = "DEFAULT"
	KeyDebug       = "DEBUG"
	KeyModules     = "MODULES"
	KeySystemType  = "SYSTEMTYPE"
	KeySystemPath  = "SYSTEMPATH"
	KeyKernelFile  = "KERNELFILE"
	KeyInitrdFile  = "INITRDFILE"
	KeyHalFile     = "HALFILE"
	KeyParameters  = "PARAMETERS"
	KeyBootModules = "BOOTMODULES"
	KeySystemName  = "SYSTEMNAME"
)

// globalSectionName is the INI section holding loader-wide options;
// every other section names a boot menu entry.
const globalSectionName = "XTLDR"

// Entry is one boot menu entry: a named INI section with its own set
// of key/value options.
type Entry struct {
	Name    string
	Options map[string]string
}

// Config is the loader's fully merged configuration: the flat global
// option set plus the ordered list of boot menu entries.
type Config struct {
	Global  map[string]string
	Entries []*Entry
}

// Get returns a global configuration value, and whether it was set.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.Global[strings.ToUpper(key)]
	return v, ok
}

// GetBool returns whether a global option names an enabled boolean
// keyword: ENABLED, ON, TRUE or YES (case-insensitive). Any other
// value, including an unset one, is treated as disabled.
func (c *Config) GetBool(key string) bool {
	v, ok := c.Get(key)
	if !ok {
		return false
	}
	switch strings.ToUpper(v) {
	case "ENABLED", "ON", "TRUE", "YES":
		return true
	default:
		return false
	}
}

// Parse builds a Config from the UEFI shell load options string
// (space-separated KEY=VALUE tokens) and the raw contents of
// XTLDR.INI. loadOptions is consulted first; iniData only fills in
// keys loadOptions left unset.
func Parse(loadOptions string, iniData []byte) (*Config, *errors.Error) {
	cfg := &Config{Global: map[string]string{}}

	parseLoadOptions(loadOptions, cfg.Global)

	if len(iniData) == 0 {
		return cfg, nil
	}

	file, err := ini.Load(iniData)
	if err != nil {
		return nil, errors.New("config", "malformed INI data: "+err.Error(), errors.CodeInvalidParameter)
	}

	for _, section := range file.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			mergeSection(cfg.Global, section)
			continue
		}
		if strings.EqualFold(name, globalSectionName) {
			mergeSection(cfg.Global, section)
			continue
		}

		entry := &Entry{Name: name, Options: map[string]string{}}
		for _, key := range section.Keys() {
			entry.Options[strings.ToUpper(key.Name())] = stripQuotes(key.Value())
		}
		cfg.Entries = append(cfg.Entries, entry)
	}

	return cfg, nil
}

// parseLoadOptions tokenizes a UEFI shell load-options string into
// KEY=VALUE pairs, written into dst. Tokens missing either half are
// skipped, matching the original loader's command-line parser.
func parseLoadOptions(loadOptions string, dst map[string]string) {
	for _, token := range strings.Fields(loadOptions) {
		key, value, found := strings.Cut(token, "=")
		if !found || key == "" || value == "" {
			continue
		}
		dst[strings.ToUpper(key)] = value
	}
}

// mergeSection copies an INI section's keys into dst, never
// overwriting a key already present: load options always win over the
// configuration file.
func mergeSection(dst map[string]string, section *ini.Section) {
	for _, key := range section.Keys() {
		name := strings.ToUpper(key.Name())
		if _, exists := dst[name]; exists {
			continue
		}
		dst[name] = stripQuotes(key.Value())
	}
}

// stripQuotes removes one layer of surrounding single or double quotes
// from an INI value, matching the original parser's quote handling;
// ini.v1 already strips the comment markers that precede it.
func stripQuotes(value string) string {
	if len(value) < 2 {
		return value
	}
	first, last := value[0], value[len(value)-1]
	if (first == '"' || first == '\'') && first == last {
		return value[1 : len(value)-1]
	}
	return value
}
