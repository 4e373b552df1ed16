/*
 * kernelsim - boot-time DISK/FLASH directives.
 *
 * Grounded on emu/model1052.go's create() (a kconf.RegisterModel handler
 * parsing its own option set out of the generic Option list) and
 * util/tape's Attach-on-first-use shape; generalized from a tape's single
 * backing file to one backing BlockStore per configured disk/flash unit.
 */

package device

import (
	"fmt"
	"strconv"

	"github.com/mipskernel/kernel/config/kconf"
)

// MaxDisks and MaxFlashes bound the unit numbers DISK/FLASH directives
// may configure, matching the 8 sub-devices spec.md 6 allots per line.
const (
	MaxDisks   = 8
	MaxFlashes = 8
)

// defaultMaxCyl/Head/Sect are used when a DISK directive omits geometry.
const (
	defaultMaxCyl  = 8
	defaultMaxHead = 4
	defaultMaxSect = 16
)

var (
	diskFiles  = map[int]string{}
	diskGeom   = map[int]Geometry{}
	flashFiles = map[int]string{}
)

func init() {
	kconf.RegisterModel("DISK", registerDisk)
	kconf.RegisterModel("FLASH", registerFlash)
}

func registerDisk(unit uint16, _ string, options []kconf.Option) error {
	if int(unit) >= MaxDisks {
		return fmt.Errorf("DISK unit %#x out of range 0..%d", unit, MaxDisks-1)
	}
	if _, exists := diskFiles[int(unit)]; exists {
		return fmt.Errorf("DISK unit %#x already configured", unit)
	}

	geom := Geometry{MaxCyl: defaultMaxCyl, MaxHead: defaultMaxHead, MaxSect: defaultMaxSect}
	file := ""
	for _, opt := range options {
		switch opt.Name {
		case "file":
			file = opt.EqualOpt
		case "cyl", "head", "sect":
			n, err := strconv.Atoi(opt.EqualOpt)
			if err != nil {
				return fmt.Errorf("DISK unit %#x: %s: %w", unit, opt.Name, err)
			}
			switch opt.Name {
			case "cyl":
				geom.MaxCyl = uint32(n)
			case "head":
				geom.MaxHead = uint32(n)
			case "sect":
				geom.MaxSect = uint32(n)
			}
		default:
			return fmt.Errorf("DISK unit %#x: unknown option %s", unit, opt.Name)
		}
	}
	if file == "" {
		return fmt.Errorf("DISK unit %#x requires file=<path>", unit)
	}

	diskFiles[int(unit)] = file
	diskGeom[int(unit)] = geom
	return nil
}

func registerFlash(unit uint16, _ string, options []kconf.Option) error {
	if int(unit) >= MaxFlashes {
		return fmt.Errorf("FLASH unit %#x out of range 0..%d", unit, MaxFlashes-1)
	}
	if _, exists := flashFiles[int(unit)]; exists {
		return fmt.Errorf("FLASH unit %#x already configured", unit)
	}

	file := ""
	for _, opt := range options {
		if opt.Name != "file" {
			return fmt.Errorf("FLASH unit %#x: unknown option %s", unit, opt.Name)
		}
		file = opt.EqualOpt
	}
	if file == "" {
		return fmt.Errorf("FLASH unit %#x requires file=<path>", unit)
	}

	flashFiles[int(unit)] = file
	return nil
}

// ConfiguredDisks and ConfiguredFlashes return the backing file path of
// each unit the DISK/FLASH directives configured, keyed by unit number,
// for main to Attach; map iteration order is not defined.
func ConfiguredDisks() map[int]string   { return diskFiles }
func ConfiguredFlashes() map[int]string { return flashFiles }

// DiskGeometry returns unit's configured geometry, or the default if it
// was never overridden by cyl=/head=/sect= options.
func DiskGeometry(unit int) Geometry {
	if g, ok := diskGeom[unit]; ok {
		return g
	}
	return Geometry{MaxCyl: defaultMaxCyl, MaxHead: defaultMaxHead, MaxSect: defaultMaxSect}
}
