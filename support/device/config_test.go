package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mipskernel/kernel/config/kconf"
)

func loadDirective(t *testing.T, line string) error {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boot.cfg")
	if err := os.WriteFile(path, []byte(line+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return kconf.LoadFile(path)
}

func TestRegisterDiskDefaultGeometry(t *testing.T) {
	if err := loadDirective(t, "DISK 0 file=disk0.img"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if diskFiles[0] != "disk0.img" {
		t.Fatalf("diskFiles[0] = %q, want disk0.img", diskFiles[0])
	}
	g := DiskGeometry(0)
	if g.MaxCyl != defaultMaxCyl || g.MaxHead != defaultMaxHead || g.MaxSect != defaultMaxSect {
		t.Fatalf("DiskGeometry(0) = %+v, want defaults", g)
	}
}

func TestRegisterDiskCustomGeometry(t *testing.T) {
	if err := loadDirective(t, "DISK 1 file=disk1.img cyl=10 head=2 sect=32"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	g := DiskGeometry(1)
	if g.MaxCyl != 10 || g.MaxHead != 2 || g.MaxSect != 32 {
		t.Fatalf("DiskGeometry(1) = %+v, want {10 2 32}", g)
	}
}

func TestRegisterDiskRejectsMissingFile(t *testing.T) {
	if err := loadDirective(t, "DISK 2 cyl=10"); err == nil {
		t.Fatalf("expected an error for a DISK directive with no file")
	}
}

func TestRegisterDiskRejectsDuplicateUnit(t *testing.T) {
	if err := loadDirective(t, "DISK 3 file=a.img"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := loadDirective(t, "DISK 3 file=b.img"); err == nil {
		t.Fatalf("expected an error for a duplicate DISK unit")
	}
}

func TestRegisterDiskRejectsOutOfRangeUnit(t *testing.T) {
	if err := loadDirective(t, "DISK ff file=c.img"); err == nil {
		t.Fatalf("expected an error for an out-of-range DISK unit")
	}
}

func TestRegisterFlash(t *testing.T) {
	if err := loadDirective(t, "FLASH 0 file=flash0.img"); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if flashFiles[0] != "flash0.img" {
		t.Fatalf("flashFiles[0] = %q, want flash0.img", flashFiles[0])
	}
}

func TestRegisterFlashRejectsUnknownOption(t *testing.T) {
	if err := loadDirective(t, "FLASH 1 file=flash1.img bogus=1"); err == nil {
		t.Fatalf("expected an error for an unknown FLASH option")
	}
}
