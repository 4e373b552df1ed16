package device

import (
	"path/filepath"
	"testing"
)

func TestBlockStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash0.img")
	store, err := Attach(path, FlashBlockMax)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer store.Close()

	frame := make([]uint32, BlockBytes/4)
	for i := range frame {
		frame[i] = uint32(i) * 7
	}
	if err := store.WriteBlock(40, frame); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	got := make([]uint32, BlockBytes/4)
	if err := store.ReadBlock(40, got); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i := range frame {
		if got[i] != frame[i] {
			t.Fatalf("word %d = %d, want %d", i, got[i], frame[i])
		}
	}
}

func TestBlockStoreOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash1.img")
	store, err := Attach(path, 10)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer store.Close()

	frame := make([]uint32, BlockBytes/4)
	if err := store.WriteBlock(10, frame); err != ErrOutOfRange {
		t.Fatalf("WriteBlock(10) = %v, want ErrOutOfRange", err)
	}
	if err := store.WriteBlock(-1, frame); err != ErrOutOfRange {
		t.Fatalf("WriteBlock(-1) = %v, want ErrOutOfRange", err)
	}
}

func TestDecodeCHS(t *testing.T) {
	g := Geometry{MaxCyl: 10, MaxHead: 4, MaxSect: 32}
	cyl, head, sec, ok := DecodeCHS(g, 0)
	if !ok || cyl != 0 || head != 0 || sec != 0 {
		t.Fatalf("DecodeCHS(0) = %d,%d,%d,%v", cyl, head, sec, ok)
	}

	cyl, head, sec, ok = DecodeCHS(g, 32+5)
	if !ok || cyl != 0 || head != 1 || sec != 5 {
		t.Fatalf("DecodeCHS(37) = %d,%d,%d,%v", cyl, head, sec, ok)
	}

	_, _, _, ok = DecodeCHS(g, 10*4*32)
	if ok {
		t.Fatalf("DecodeCHS at capacity should be out of range")
	}
}

func TestValidUserRange(t *testing.T) {
	if !ValidUserRange(KUSEG, 128) {
		t.Fatalf("KUSEG start with small length should be valid")
	}
	if ValidUserRange(KUSEG-4, 4) {
		t.Fatalf("address below KUSEG should be invalid")
	}
	if ValidUserRange(StackTop-4, 8) {
		t.Fatalf("range crossing StackTop should be invalid")
	}
}

func TestValidFlashBlock(t *testing.T) {
	if ValidFlashBlock(FlashBlockMin - 1) {
		t.Fatalf("block below minimum should be invalid")
	}
	if !ValidFlashBlock(FlashBlockMin) {
		t.Fatalf("block at minimum should be valid")
	}
	if ValidFlashBlock(FlashBlockMax) {
		t.Fatalf("block at maximum should be invalid (exclusive upper bound)")
	}
}
