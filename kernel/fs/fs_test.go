package fs

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"path/filepath"
	"termos/kernel"
	"testing"
)

func mustInit(t *testing.T, image []byte) *FileSystem {
	t.Helper()
	var fs FileSystem
	if err := fs.Init(image, DefaultLimits); err != nil {
		t.Fatal(err)
	}
	return &fs
}

func helloImage(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder(DefaultLimits)
	if err := b.AddFile("hello", []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	return b.Build()
}

func referenceImage(t *testing.T) []byte {
	t.Helper()
	b := NewBuilder(DefaultLimits)
	b.AddDirectory(".")
	b.AddDevice("rtc")
	b.AddFile("frame0.txt", bytes.Repeat([]byte("~"), 187))
	b.AddFile("verylargetextwithverylongname.tx", bytes.Repeat([]byte("0123456789"), 530))
	b.AddFile("empty", nil)
	return b.Build()
}

func TestHelloScenario(t *testing.T) {
	fs := mustInit(t, helloImage(t))

	entry, err := fs.LookupByName("hello")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Type != TypeRegular || entry.Inode != 0 {
		t.Fatalf("expected regular file at inode 0; got %+v", entry)
	}

	buf := make([]byte, 11)
	if n, err := fs.ReadData(0, 0, buf); err != nil || n != 11 || string(buf) != "hello world" {
		t.Fatalf("expected to read %q; got %q (n=%d, err=%v)", "hello world", buf[:n], n, err)
	}

	buf = make([]byte, 100)
	n, err := fs.ReadData(0, 5, buf)
	if err != nil {
		t.Fatal(err)
	}
	if exp := " world"; n != 6 || string(buf[:n]) != exp {
		t.Fatalf("expected clamped read %q; got %q", exp, buf[:n])
	}
}

func TestInitRebuildsBitmaps(t *testing.T) {
	fs := mustInit(t, referenceImage(t))

	stats := fs.Stats()
	if exp := 5; stats.DirEntries != exp {
		t.Errorf("expected %d directory entries; got %d", exp, stats.DirEntries)
	}
	if exp := 3; stats.InodesUsed != exp {
		t.Errorf("expected %d used inodes; got %d", exp, stats.InodesUsed)
	}
	// 187 bytes -> 1 block, 5300 bytes -> 2 blocks, empty -> 0 blocks
	if exp := 3; stats.BlocksUsed != exp {
		t.Errorf("expected %d used blocks; got %d", exp, stats.BlocksUsed)
	}
	if stats.Inodes != 64 || stats.Blocks != 59 || stats.MaxDirEntries != 63 {
		t.Errorf("unexpected capacity %+v", stats)
	}

	if err := fs.Check(); err != nil {
		t.Fatalf("expected a freshly built image to pass Check; got %v", err)
	}
}

func TestInitErrors(t *testing.T) {
	specs := []struct {
		descr  string
		mutate func([]byte) []byte
		limits Limits
		expErr *kernel.Error
	}{
		{
			"short image",
			func(img []byte) []byte { return img[:100] },
			DefaultLimits,
			ErrImageTooSmall,
		},
		{
			"truncated data blocks",
			func(img []byte) []byte { return img[:len(img)-BlockSize] },
			DefaultLimits,
			ErrImageTooSmall,
		},
		{
			"inode count above limit",
			func(img []byte) []byte { return img },
			Limits{DirEntries: 63, Inodes: 10, DataBlocks: 59},
			ErrLimitsExceeded,
		},
		{
			"entry with out of range inode",
			func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[dirEntriesOffset+36:], 999)
				return img
			},
			DefaultLimits,
			ErrCorruptEntry,
		},
		{
			"inode with out of range block",
			func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[BlockSize+4:], 59)
				return img
			},
			DefaultLimits,
			ErrCorruptInode,
		},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			var fs FileSystem
			if err := fs.Init(spec.mutate(helloImage(t)), spec.limits); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	fs := mustInit(t, referenceImage(t))

	specs := []struct {
		name     string
		expErr   *kernel.Error
		expType  FileType
		expInode uint32
	}{
		{".", nil, TypeDirectory, 0},
		{"rtc", nil, TypeDevice, 0},
		{"frame0.txt", nil, TypeRegular, 0},
		{"verylargetextwithverylongname.tx", nil, TypeRegular, 1},
		{"verylargetextwithverylongname.txt", ErrNameTooLong, 0, 0},
		{"frame0", ErrNotFound, 0, 0},
		{"", ErrNotFound, 0, 0},
	}

	for specIndex, spec := range specs {
		entry, err := fs.LookupByName(spec.name)
		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			continue
		}
		if err == nil && (entry.Type != spec.expType || entry.Inode != spec.expInode || entry.Name != spec.name) {
			t.Errorf("[spec %d] expected %s entry at inode %d; got %+v", specIndex, spec.expType, spec.expInode, entry)
		}
	}

	if entry, err := fs.LookupByIndex(1); err != nil || entry.Name != "rtc" {
		t.Errorf("expected index 1 to be rtc; got %+v (%v)", entry, err)
	}
	if _, err := fs.LookupByIndex(5); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for index 5; got %v", err)
	}
	if _, err := fs.LookupByIndex(-1); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for index -1; got %v", err)
	}
}

func TestReadDir(t *testing.T) {
	fs := mustInit(t, referenceImage(t))

	var names []string
	for i := 0; ; i++ {
		name, err := fs.ReadDir(i)
		if err == ErrEndOfDirectory {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}

	exp := []string{".", "rtc", "frame0.txt", "verylargetextwithverylongname.tx", "empty"}
	if len(names) != len(exp) {
		t.Fatalf("expected %v; got %v", exp, names)
	}
	for i := range exp {
		if names[i] != exp[i] {
			t.Fatalf("expected %v; got %v", exp, names)
		}
	}

	if _, err := fs.ReadDir(6); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound past the end marker; got %v", err)
	}
}

func TestReadData(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	large := bytes.Repeat([]byte("0123456789"), 530)

	specs := []struct {
		descr  string
		inode  uint32
		offset uint32
		bufLen int
		exp    []byte
		expErr *kernel.Error
	}{
		{"whole file across blocks", 1, 0, 6000, large, nil},
		{"spanning the block boundary", 1, 4090, 12, large[4090:4102], nil},
		{"last byte", 1, 5299, 10, large[5299:], nil},
		{"at end of file", 1, 5300, 10, []byte{}, nil},
		{"past end of file", 1, 5301, 10, nil, ErrInvalidOffset},
		{"empty file", 2, 0, 10, []byte{}, nil},
		{"invalid inode", 64, 0, 10, nil, ErrInvalidInode},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			buf := make([]byte, spec.bufLen)
			n, err := fs.ReadData(spec.inode, spec.offset, buf)
			if err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
			if err == nil && !bytes.Equal(buf[:n], spec.exp) {
				t.Fatalf("expected to read %d bytes; got %d", len(spec.exp), n)
			}
		})
	}

	t.Run("corrupt block reference", func(t *testing.T) {
		image := referenceImage(t)
		fs := mustInit(t, image)
		binary.LittleEndian.PutUint32(image[2*BlockSize+8:], 4000)

		if _, err := fs.ReadData(1, 0, make([]byte, 5300)); err != ErrCorruptInode {
			t.Fatalf("expected ErrCorruptInode; got %v", err)
		}
	})
}

func TestCreateEntry(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	before := fs.Stats()

	if err := fs.CreateEntry("notes"); err != nil {
		t.Fatal(err)
	}

	entry, err := fs.LookupByName("notes")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Type != TypeRegular {
		t.Fatalf("expected a regular file; got %s", entry.Type)
	}
	if entry.Inode != 3 {
		t.Fatalf("expected first-fit inode 3; got %d", entry.Inode)
	}
	if length, _ := fs.Length(entry.Inode); length != 0 {
		t.Fatalf("expected zero length; got %d", length)
	}

	after := fs.Stats()
	if after.DirEntries != before.DirEntries+1 || after.InodesUsed != before.InodesUsed+1 || after.BlocksUsed != before.BlocksUsed {
		t.Fatalf("unexpected stats after create: before %+v after %+v", before, after)
	}

	specs := []struct {
		name   string
		expErr *kernel.Error
	}{
		{"notes", ErrExists},
		{"", ErrInvalidName},
		{"has space", ErrInvalidName},
		{"a-name-that-is-longer-than-32-bytes", ErrNameTooLong},
		{"exactly-thirty-two-bytes-long-ok", nil},
	}

	for specIndex, spec := range specs {
		if err := fs.CreateEntry(spec.name); err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}

	if entry, err := fs.LookupByName("exactly-thirty-two-bytes-long-ok"); err != nil || entry.Name != "exactly-thirty-two-bytes-long-ok" {
		t.Fatalf("expected to look up the 32 byte name; got %+v (%v)", entry, err)
	}
}

func TestCreateEntryExhaustion(t *testing.T) {
	t.Run("directory full", func(t *testing.T) {
		fs := mustInit(t, NewBuilder(Limits{DirEntries: 2, Inodes: 8, DataBlocks: 4}).Build())
		fs.limits.DirEntries = 2
		fs.CreateEntry("a")
		fs.CreateEntry("b")
		if err := fs.CreateEntry("c"); err != ErrDirectoryFull {
			t.Fatalf("expected ErrDirectoryFull; got %v", err)
		}
	})

	t.Run("no inodes", func(t *testing.T) {
		limits := Limits{DirEntries: 63, Inodes: 2, DataBlocks: 4}
		var fs FileSystem
		if err := fs.Init(NewBuilder(limits).Build(), limits); err != nil {
			t.Fatal(err)
		}
		fs.CreateEntry("a")
		fs.CreateEntry("b")
		if err := fs.CreateEntry("c"); err != ErrNoInodes {
			t.Fatalf("expected ErrNoInodes; got %v", err)
		}
	})

	t.Run("no data blocks", func(t *testing.T) {
		limits := Limits{DirEntries: 63, Inodes: 8, DataBlocks: 1}
		b := NewBuilder(limits)
		if err := b.AddFile("a", []byte("x")); err != nil {
			t.Fatal(err)
		}
		var fs FileSystem
		if err := fs.Init(b.Build(), limits); err != nil {
			t.Fatal(err)
		}
		before := fs.Stats()
		if err := fs.CreateEntry("new"); err != ErrNoSpace {
			t.Fatalf("expected ErrNoSpace; got %v", err)
		}
		if after := fs.Stats(); after != before {
			t.Errorf("expected a failed create to leave the volume untouched; before %+v after %+v", before, after)
		}
	})
}

func TestWriteDataExhaustion(t *testing.T) {
	specs := []struct {
		descr  string
		limits Limits
		expErr *kernel.Error
	}{
		{"directory full", Limits{DirEntries: 2, Inodes: 8, DataBlocks: 4}, ErrDirectoryFull},
		{"no inodes", Limits{DirEntries: 63, Inodes: 2, DataBlocks: 4}, ErrNoInodes},
	}

	for _, spec := range specs {
		t.Run(spec.descr, func(t *testing.T) {
			var fs FileSystem
			if err := fs.Init(NewBuilder(spec.limits).Build(), spec.limits); err != nil {
				t.Fatal(err)
			}
			fs.CreateEntry("a")
			fs.CreateEntry("b")
			entry, err := fs.LookupByName("a")
			if err != nil {
				t.Fatal(err)
			}

			if _, err := fs.WriteData(entry.Inode, []byte("data")); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}
			if length, _ := fs.Length(entry.Inode); length != 0 {
				t.Fatalf("expected the failed write to keep length 0; got %d", length)
			}

			// Releasing an entry makes room again
			if err := fs.DeleteEntry("b"); err != nil {
				t.Fatal(err)
			}
			if n, err := fs.WriteData(entry.Inode, []byte("data")); err != nil || n != 4 {
				t.Fatalf("expected the write to succeed; got %d, %v", n, err)
			}
		})
	}
}

func TestWriteDataRoundTrip(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	fs.CreateEntry("out")
	entry, _ := fs.LookupByName("out")

	specs := [][]byte{
		[]byte("short"),
		bytes.Repeat([]byte("x"), BlockSize),
		bytes.Repeat([]byte("yz"), BlockSize+7),
		{},
		[]byte("shrink again"),
	}

	for specIndex, data := range specs {
		n, err := fs.WriteData(entry.Inode, data)
		if err != nil {
			t.Fatalf("[spec %d] unexpected error: %v", specIndex, err)
		}
		if n != len(data) {
			t.Fatalf("[spec %d] expected to write %d bytes; wrote %d", specIndex, len(data), n)
		}

		buf := make([]byte, len(data))
		if n, err = fs.ReadData(entry.Inode, 0, buf); err != nil || n != len(data) || !bytes.Equal(buf, data) {
			t.Fatalf("[spec %d] round trip mismatch (n=%d, err=%v)", specIndex, n, err)
		}

		if err := fs.Check(); err != nil {
			t.Fatalf("[spec %d] Check failed after write: %v", specIndex, err)
		}
	}
}

func TestWriteDataErrors(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	fs.CreateEntry("big")
	entry, _ := fs.LookupByName("big")

	free := fs.Stats().Blocks - fs.Stats().BlocksUsed
	if _, err := fs.WriteData(entry.Inode, make([]byte, free*BlockSize+1)); err != ErrNoSpace {
		t.Fatalf("expected ErrNoSpace; got %v", err)
	}

	// A file may be rewritten using the blocks it already owns.
	if _, err := fs.WriteData(entry.Inode, make([]byte, free*BlockSize)); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteData(entry.Inode, bytes.Repeat([]byte{1}, free*BlockSize)); err != nil {
		t.Fatalf("expected rewrite of a full volume to succeed; got %v", err)
	}

	if _, err := fs.WriteData(entry.Inode, make([]byte, MaxFileSize+1)); err != ErrFileTooLarge {
		t.Fatalf("expected ErrFileTooLarge; got %v", err)
	}
	if _, err := fs.WriteData(40, []byte("x")); err != ErrInvalidInode {
		t.Fatalf("expected ErrInvalidInode for an unused inode; got %v", err)
	}

	// The failed writes must not have touched the file.
	if length, _ := fs.Length(entry.Inode); length != uint32(free*BlockSize) {
		t.Fatalf("expected failed writes to keep length %d; got %d", free*BlockSize, length)
	}
}

func TestDeleteEntry(t *testing.T) {
	t.Run("non-last entry compacts", func(t *testing.T) {
		fs := mustInit(t, referenceImage(t))
		before := fs.Entries()

		if err := fs.DeleteEntry("frame0.txt"); err != nil {
			t.Fatal(err)
		}

		after := fs.Entries()
		if len(after) != len(before)-1 {
			t.Fatalf("expected %d entries; got %d", len(before)-1, len(after))
		}
		for i := 0; i < 2; i++ {
			if after[i] != before[i] {
				t.Fatalf("expected entry %d to be unchanged", i)
			}
		}
		for i := 2; i < len(after); i++ {
			if after[i] != before[i+1] {
				t.Fatalf("expected entry %d to be %+v; got %+v", i, before[i+1], after[i])
			}
		}
		if _, err := fs.LookupByName("frame0.txt"); err != ErrNotFound {
			t.Fatalf("expected deleted file to be gone; got %v", err)
		}
		if err := fs.Check(); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("last entry only decrements", func(t *testing.T) {
		fs := mustInit(t, referenceImage(t))
		before := fs.Entries()

		if err := fs.DeleteEntry("empty"); err != nil {
			t.Fatal(err)
		}

		after := fs.Entries()
		if len(after) != len(before)-1 {
			t.Fatalf("expected %d entries; got %d", len(before)-1, len(after))
		}
		for i := range after {
			if after[i] != before[i] {
				t.Fatalf("expected entry %d to be unchanged", i)
			}
		}
	})

	t.Run("errors", func(t *testing.T) {
		fs := mustInit(t, referenceImage(t))
		specs := []struct {
			name   string
			expErr *kernel.Error
		}{
			{"missing", ErrNotFound},
			{"rtc", ErrNotRegular},
			{".", ErrNotRegular},
			{"a-name-that-is-longer-than-32-bytes", ErrNameTooLong},
		}
		for specIndex, spec := range specs {
			if err := fs.DeleteEntry(spec.name); err != spec.expErr {
				t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
			}
		}
	})

	t.Run("freed resources are reused", func(t *testing.T) {
		fs := mustInit(t, referenceImage(t))
		fs.DeleteEntry("frame0.txt")
		fs.CreateEntry("again")

		entry, _ := fs.LookupByName("again")
		if entry.Inode != 0 {
			t.Fatalf("expected the freed inode 0 to be reused; got %d", entry.Inode)
		}
	})
}

// The number of set block bits must always equal the sum of ceil(len/4096)
// over the live inodes.
func TestBitmapInvariant(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	rng := rand.New(rand.NewSource(391))
	names := []string{"a", "b", "c", "d", "e", "f"}

	for step := 0; step < 500; step++ {
		name := names[rng.Intn(len(names))]
		switch rng.Intn(3) {
		case 0:
			fs.CreateEntry(name)
		case 1:
			fs.DeleteEntry(name)
		case 2:
			if entry, err := fs.LookupByName(name); err == nil {
				fs.WriteData(entry.Inode, make([]byte, rng.Intn(5*BlockSize)))
			}
		}

		var expBlocks int
		for _, entry := range fs.Entries() {
			if entry.Type != TypeRegular {
				continue
			}
			length, _ := fs.Length(entry.Inode)
			expBlocks += int(blocksFor(length))
		}

		if got := fs.Stats().BlocksUsed; got != expBlocks {
			t.Fatalf("[step %d] expected %d used blocks; got %d", step, expBlocks, got)
		}
		if err := fs.Check(); err != nil {
			t.Fatalf("[step %d] Check failed: %v", step, err)
		}
	}

	// The rebuilt state must agree with the incrementally maintained one.
	var reloaded FileSystem
	if err := reloaded.Init(fs.Image(), DefaultLimits); err != nil {
		t.Fatal(err)
	}
	if reloaded.Stats() != fs.Stats() {
		t.Fatalf("expected reloaded stats %+v to match %+v", reloaded.Stats(), fs.Stats())
	}
}

func TestCheckDetectsMismatch(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	fs.blocks.Set(40)
	if err := fs.Check(); err != ErrBitmapMismatch {
		t.Fatalf("expected ErrBitmapMismatch; got %v", err)
	}

	fs = mustInit(t, referenceImage(t))
	fs.inodes.Set(20)
	if err := fs.Check(); err != ErrZombieInode {
		t.Fatalf("expected ErrZombieInode; got %v", err)
	}

	image := referenceImage(t)
	fs = mustInit(t, image)
	// point frame0.txt's first block at the large file's first block
	binary.LittleEndian.PutUint32(image[BlockSize+4:], 1)
	if err := fs.Check(); err != ErrSharedBlock {
		t.Fatalf("expected ErrSharedBlock; got %v", err)
	}
}

func TestComplete(t *testing.T) {
	fs := mustInit(t, referenceImage(t))
	fs.CreateEntry("frame1.txt")

	matches := fs.Complete("fra")
	if len(matches) != 2 || matches[0] != "frame0.txt" || matches[1] != "frame1.txt" {
		t.Fatalf("unexpected matches %v", matches)
	}
	if exp, got := "frame", CommonPrefix(matches); got != exp {
		t.Fatalf("expected common prefix %q; got %q", exp, got)
	}
	if got := fs.Complete("zzz"); len(got) != 0 {
		t.Fatalf("expected no matches; got %v", got)
	}
	if got := CommonPrefix(nil); got != "" {
		t.Fatalf("expected empty prefix; got %q", got)
	}
}

func TestExecutable(t *testing.T) {
	image := Executable(0x08048040, []byte("body"))

	entry, ok := ParseExecutable(image)
	if !ok || entry != 0x08048040 {
		t.Fatalf("expected entry 0x08048040; got 0x%x (%t)", entry, ok)
	}
	if string(image[ExecBodyOffset:]) != "body" {
		t.Fatalf("expected body at offset %d", ExecBodyOffset)
	}

	image[1] = 'X'
	if _, ok := ParseExecutable(image); ok {
		t.Fatal("expected bad magic to be rejected")
	}
	if _, ok := ParseExecutable([]byte{0x7f, 'E', 'L', 'F'}); ok {
		t.Fatal("expected a short header to be rejected")
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fs.img")
	image := referenceImage(t)

	if err := SaveVolume(path, image); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadVolume(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(loaded, image) {
		t.Fatal("expected loaded image to match the saved one")
	}

	if _, err := LoadVolume(filepath.Join(t.TempDir(), "missing.img")); err == nil {
		t.Fatal("expected an error for a missing volume")
	}
}
