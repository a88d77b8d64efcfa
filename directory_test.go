package fat16

import (
	"fmt"
	"io"
	"testing"

	"github.com/dsoprea/go-logging"
)

func TestOpenDirectory_rootOnly(t *testing.T) {
	b := newTestImageBuilder()

	volume, err := OpenVolume(b.device(), 0)
	if err != nil {
		panic(err)
	}

	defer volume.Close()

	_, err = OpenDirectory(volume, `\SUBDIR`)
	if log.Is(err, ErrNotRootPath) != true {
		t.Fatalf("Expected root-only error: [%v]", err)
	}

	_, err = OpenDirectory(volume, "/")
	if log.Is(err, ErrNotRootPath) != true {
		t.Fatalf("Expected root-only error for forward slash: [%v]", err)
	}

	dir, err := OpenDirectory(volume, RootDirectoryPath)
	if err != nil {
		panic(err)
	}

	dir.Close()
}

func TestDirectory_ReadEntry(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	b := newTestImageBuilder()
	b.addFile("README.TXT", []byte("filedata"))
	b.addFreeSlot()
	b.addFile("DATA.BIN", make([]byte, 10240))

	volume, err := OpenVolume(b.device(), 0)
	log.PanicIf(err)

	defer volume.Close()

	dir, err := OpenDirectory(volume, RootDirectoryPath)
	log.PanicIf(err)

	defer dir.Close()

	entry, err := dir.ReadEntry()
	log.PanicIf(err)

	if entry.Name != "README.TXT" || entry.Size != 8 {
		t.Fatalf("First entry not correct: %s", entry)
	}

	// The free slot between the two files is skipped silently.

	entry, err = dir.ReadEntry()
	log.PanicIf(err)

	if entry.Name != "DATA.BIN" || entry.Size != 10240 {
		t.Fatalf("Second entry not correct: %s", entry)
	}

	_, err = dir.ReadEntry()
	if err != io.EOF {
		t.Fatalf("Expected end-of-directory: [%v]", err)
	}

	_, err = dir.ReadEntry()
	if err != io.EOF {
		t.Fatalf("Expected end-of-directory to be sticky: [%v]", err)
	}
}

func TestDirectory_ReadEntry_attributes(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	b := newTestImageBuilder()
	b.addVolumeLabel("LABEL")
	b.addDirectory("SUBDIR")
	b.addFile("README.TXT", []byte("filedata"))

	volume, err := OpenVolume(b.device(), 0)
	log.PanicIf(err)

	defer volume.Close()

	dir, err := OpenDirectory(volume, RootDirectoryPath)
	log.PanicIf(err)

	defer dir.Close()

	entry, err := dir.ReadEntry()
	log.PanicIf(err)

	if entry.Name != "LABEL" || entry.IsDirectory != false {
		t.Fatalf("Label entry not correct: %s", entry)
	}

	entry, err = dir.ReadEntry()
	log.PanicIf(err)

	if entry.Name != "SUBDIR" || entry.IsDirectory != true {
		t.Fatalf("Directory entry not correct: %s", entry)
	}

	entry, err = dir.ReadEntry()
	log.PanicIf(err)

	if entry.Name != "README.TXT" || entry.IsArchived != true || entry.IsDirectory != false {
		t.Fatalf("File entry not correct: %s", entry)
	}
}

func TestDirectory_Rewind(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	b := newTestImageBuilder()
	b.addFile("README.TXT", []byte("filedata"))

	volume, err := OpenVolume(b.device(), 0)
	log.PanicIf(err)

	defer volume.Close()

	dir, err := OpenDirectory(volume, RootDirectoryPath)
	log.PanicIf(err)

	defer dir.Close()

	entry, err := dir.ReadEntry()
	log.PanicIf(err)

	_, err = dir.ReadEntry()
	if err != io.EOF {
		t.Fatalf("Expected end-of-directory: [%v]", err)
	}

	dir.Rewind()

	entryAgain, err := dir.ReadEntry()
	log.PanicIf(err)

	if entryAgain.Name != entry.Name {
		t.Fatalf("Rewound entry not correct: %s", entryAgain)
	}
}

func TestDirectory_fullRegion(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	// Fill every slot so there is no end-of-directory sentinel; iteration
	// must stop at the region's capacity on its own.

	b := newTestImageBuilder()

	for i := 0; i < testRootEntryCount; i++ {
		b.addRootEntry(encodeShortName(fmt.Sprintf("FILE%04d.DAT", i)), AttributeArchive, 0, 0)
	}

	volume, err := OpenVolume(b.device(), 0)
	log.PanicIf(err)

	defer volume.Close()

	dir, err := OpenDirectory(volume, RootDirectoryPath)
	log.PanicIf(err)

	defer dir.Close()

	entryCount := 0
	for {
		_, err := dir.ReadEntry()
		if err == io.EOF {
			break
		}

		log.PanicIf(err)

		entryCount++
	}

	if entryCount != testRootEntryCount {
		t.Fatalf("Entry count not correct: (%d)", entryCount)
	}
}
