package fat16

import (
	"testing"
	"time"

	"github.com/dsoprea/go-logging"
)

func TestParseShortNameEntry(t *testing.T) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err := errRaw.(error)

			log.PrintError(err)
			t.Fatalf("Test failed.")
		}
	}()

	b := newTestImageBuilder()
	b.addFile("README.TXT", []byte("filedata"))

	entryData := b.image[testRootFirstSector*SectorSize : testRootFirstSector*SectorSize+directoryEntrySize]

	sne, err := parseShortNameEntry(entryData)
	log.PanicIf(err)

	if sne.Filename() != "README.TXT" {
		t.Fatalf("Filename not correct: [%s]", sne.Filename())
	}

	if sne.FirstCluster() != 2 {
		t.Fatalf("First cluster not correct: (%d)", sne.FirstCluster())
	}

	if sne.FileSize != 8 {
		t.Fatalf("File size not correct: (%d)", sne.FileSize)
	}

	if sne.Attributes.IsArchive() != true {
		t.Fatalf("Archive attribute expected.")
	}

	if sne.IsFree() != false || sne.IsEndOfDirectory() != false {
		t.Fatalf("Entry misclassified as a marker slot.")
	}

	expectedModified := time.Date(2023, 11, 9, 12, 30, 0, 0, time.UTC)
	if sne.Modified() != expectedModified {
		t.Fatalf("Modified timestamp not correct: [%s]", sne.Modified())
	}
}

func TestShortNameEntry_markers(t *testing.T) {
	var sne ShortNameEntry

	if sne.IsEndOfDirectory() != true {
		t.Fatalf("Zeroed entry expected to be the end-of-directory sentinel.")
	}

	sne.DosName[0] = entryMarkerFree

	if sne.IsFree() != true {
		t.Fatalf("Free-slot marker not recognized.")
	}
}

func TestShortNameEntry_Dump(t *testing.T) {
	b := newTestImageBuilder()
	b.addFile("README.TXT", []byte("filedata"))

	sne, err := parseShortNameEntry(b.image[testRootFirstSector*SectorSize:])
	if err != nil {
		panic(err)
	}

	sne.Dump()
}

func TestEntryAttributes(t *testing.T) {
	ea := AttributeReadOnly | AttributeHidden | AttributeArchive

	if ea.IsReadOnly() != true || ea.IsHidden() != true || ea.IsArchive() != true {
		t.Fatalf("Set attributes not reported.")
	}

	if ea.IsSystem() != false || ea.IsVolumeLabel() != false || ea.IsDirectory() != false {
		t.Fatalf("Cleared attributes reported as set.")
	}

	ea.DumpBareIndented("  ")
}

func TestFatEntry_classification(t *testing.T) {
	if FatEntry(0).IsFree() != true {
		t.Fatalf("Zero entry expected to be free.")
	}

	if FatEntry(3).IsFree() != false || FatEntry(3).IsEndOfChain() != false {
		t.Fatalf("Chain link misclassified.")
	}

	if FatEntry(0xfff0).IsReserved() != true || FatEntry(0xfff6).IsReserved() != true {
		t.Fatalf("Reserved markers not recognized.")
	}

	if FatEntry(0xfff7).IsDefective() != true {
		t.Fatalf("Defect marker not recognized.")
	}

	for _, value := range []FatEntry{0xfff8, 0xffff} {
		if value.IsEndOfChain() != true {
			t.Fatalf("End-of-chain marker not recognized: (0x%04x)", uint16(value))
		}
	}
}

func TestDecodeDosTimestamp(t *testing.T) {
	date := uint16((2023-1980)<<9 | 11<<5 | 9)
	timeOfDay := uint16(23<<11 | 59<<5 | 29)

	decoded := decodeDosTimestamp(date, timeOfDay, 150)

	expected := time.Date(2023, 11, 9, 23, 59, 59, 500000000, time.UTC)
	if decoded != expected {
		t.Fatalf("Timestamp not decoded correctly: [%s]", decoded)
	}

	if decodeDosTimestamp(0, 0, 0).IsZero() != true {
		t.Fatalf("Zero date expected to decode to the zero time.")
	}
}
