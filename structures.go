// This file manages the low-level, on-disk storage structures.

package fat16

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

const (
	bootSectorSize     = 512
	directoryEntrySize = 32

	maxSectorsPerCluster = 64

	// The FAT16 discriminator window. A volume with fewer clusters is FAT12
	// and one with at least the maximum is FAT32, no matter what the BPB's
	// filesystem-type string claims.
	fat16MinClusterCount = 4085
	fat16MaxClusterCount = 65525
)

const (
	// The first name byte of a directory entry doubles as a slot marker.
	entryMarkerEndOfDirectory = 0x00
	entryMarkerFree           = 0xe5
)

var (
	requiredBootSignature = uint16(0xaa55)

	defaultEncoding = binary.LittleEndian
)

var (
	// ErrNotFat16Volume indicates that the boot sector failed validation or
	// that the derived geometry is not that of a FAT16 volume.
	ErrNotFat16Volume = errors.New("not a valid FAT16 volume")
)

// BootSector describes the main set of filesystem parameters. FAT16 keeps all
// of them in the first sector of the volume, little-endian and unaligned.
type BootSector struct {
	// JumpBoot contains the jump instruction that leads the CPU to the boot
	// code on a bootable volume. Nothing here interprets it.
	JumpBoot [3]byte

	// OemName is the ASCII name of the system that formatted the volume.
	OemName [8]byte

	// BytesPerSector is the count of bytes per logical sector. 512, 1024,
	// 2048, and 4096 occur in the wild; this driver requires 512.
	BytesPerSector uint16

	// SectorsPerCluster is the count of sectors per allocation unit. It must
	// be a power of two, and the cluster may not exceed 32KB.
	SectorsPerCluster uint8

	// ReservedSectorCount is the size of the reserved region, in sectors,
	// starting at the boot sector. It may not be zero.
	ReservedSectorCount uint16

	// NumberOfFats is the count of allocation-table copies. Two is nearly
	// universal, but any non-zero count is valid.
	NumberOfFats uint8

	// RootEntryCount is the capacity of the fixed root-directory region, in
	// 32-byte entries. FAT32 sets this to zero.
	RootEntryCount uint16

	// TotalSectors16 is the sector count of the volume if it fits in 16 bits,
	// else zero with the count carried by TotalSectors32.
	TotalSectors16 uint16

	// MediaType is 0xf8 for fixed media and 0xf0 for removable. Historical;
	// the low byte of FAT[0] repeats it.
	MediaType uint8

	// SectorsPerFat is the size of one allocation-table copy, in sectors.
	// FAT32 sets this to zero.
	SectorsPerFat uint16

	// SectorsPerTrack and NumberOfHeads describe the INT 13h geometry and
	// have no bearing on the filesystem layout.
	SectorsPerTrack uint16
	NumberOfHeads   uint16

	// HiddenSectors is the count of sectors preceding the partition.
	HiddenSectors uint32

	// TotalSectors32 is the sector count of the volume when TotalSectors16 is
	// zero.
	TotalSectors32 uint32

	// DriveNumber is the INT 13h drive number.
	DriveNumber uint8

	Reserved1 uint8

	// ExtendedBootSignature is 0x29 when the serial-number, label, and
	// filesystem-type fields that follow are populated.
	ExtendedBootSignature uint8

	// VolumeSerialNumber is the unique ID stamped at format time.
	VolumeSerialNumber uint32

	// VolumeLabel is the ASCII volume label, space-padded. It usually matches
	// the volume-label entry in the root directory.
	VolumeLabel [11]byte

	// FilesystemType is an ASCII hint such as "FAT16   ". Informational only;
	// the cluster count is the actual discriminator.
	FilesystemType [8]byte

	// BootCode is the boot-strapping machine code, if any.
	BootCode [448]byte

	// BootSignature must be 0xaa55 for the sector to be a boot sector at all.
	BootSignature uint16
}

// TotalSectors returns the effective sector count of the volume, preferring
// the 16-bit field when it is non-zero.
func (bs BootSector) TotalSectors() uint32 {
	if bs.TotalSectors16 != 0 {
		return uint32(bs.TotalSectors16)
	}

	return bs.TotalSectors32
}

// Label returns the volume label with the space padding removed.
func (bs BootSector) Label() string {
	return trimTrailingSpaces(bs.VolumeLabel[:])
}

// String returns a description of the boot sector.
func (bs BootSector) String() string {
	return fmt.Sprintf("BootSector<OEM=[%s] SN=(0x%08x) TYPE=[%s]>", trimTrailingSpaces(bs.OemName[:]), bs.VolumeSerialNumber, trimTrailingSpaces(bs.FilesystemType[:]))
}

// Dump prints all of the BPB parameters along with the common calculated ones.
func (bs BootSector) Dump() {
	fmt.Printf("Boot Sector\n")
	fmt.Printf("===========\n")
	fmt.Printf("\n")

	fmt.Printf("OemName: [%s]\n", trimTrailingSpaces(bs.OemName[:]))
	fmt.Printf("BytesPerSector: (%d)\n", bs.BytesPerSector)
	fmt.Printf("SectorsPerCluster: (%d)\n", bs.SectorsPerCluster)
	fmt.Printf("-> Bytes-per-cluster: (%d)\n", int(bs.SectorsPerCluster)*int(bs.BytesPerSector))
	fmt.Printf("ReservedSectorCount: (%d)\n", bs.ReservedSectorCount)
	fmt.Printf("NumberOfFats: (%d)\n", bs.NumberOfFats)
	fmt.Printf("RootEntryCount: (%d)\n", bs.RootEntryCount)
	fmt.Printf("TotalSectors16: (%d)\n", bs.TotalSectors16)
	fmt.Printf("TotalSectors32: (%d)\n", bs.TotalSectors32)
	fmt.Printf("-> Total sectors: (%d)\n", bs.TotalSectors())
	fmt.Printf("MediaType: (0x%02x)\n", bs.MediaType)
	fmt.Printf("SectorsPerFat: (%d)\n", bs.SectorsPerFat)
	fmt.Printf("SectorsPerTrack: (%d)\n", bs.SectorsPerTrack)
	fmt.Printf("NumberOfHeads: (%d)\n", bs.NumberOfHeads)
	fmt.Printf("HiddenSectors: (%d)\n", bs.HiddenSectors)
	fmt.Printf("DriveNumber: (0x%02x)\n", bs.DriveNumber)
	fmt.Printf("ExtendedBootSignature: (0x%02x)\n", bs.ExtendedBootSignature)
	fmt.Printf("VolumeSerialNumber: (0x%08x)\n", bs.VolumeSerialNumber)
	fmt.Printf("VolumeLabel: [%s]\n", bs.Label())
	fmt.Printf("FilesystemType: [%s]\n", trimTrailingSpaces(bs.FilesystemType[:]))
	fmt.Printf("\n")
}

// NewBootSectorFromBytes parses and validates one sector's worth of data as a
// FAT16 boot sector. Failed validations raise ErrNotFat16Volume.
func NewBootSectorFromBytes(data []byte) (bs BootSector, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if len(data) < bootSectorSize {
		log.Panicf("boot-sector data too small: (%d)", len(data))
	}

	err = restruct.Unpack(data[:bootSectorSize], defaultEncoding, &bs)
	log.PanicIf(err)

	if bs.BootSignature != requiredBootSignature {
		log.Panic(ErrNotFat16Volume)
	}

	if bs.BytesPerSector != SectorSize {
		log.Panic(ErrNotFat16Volume)
	}

	if isPowerOfTwo(bs.SectorsPerCluster) != true || bs.SectorsPerCluster > maxSectorsPerCluster {
		log.Panic(ErrNotFat16Volume)
	}

	if bs.NumberOfFats == 0 {
		log.Panic(ErrNotFat16Volume)
	}

	if bs.SectorsPerFat == 0 {
		log.Panic(ErrNotFat16Volume)
	}

	// fatgen103 requires exactly one reserved sector for FAT12/16, but
	// anything non-zero mounts everywhere else, so it does here, too.
	if bs.ReservedSectorCount == 0 {
		log.Panic(ErrNotFat16Volume)
	}

	if bs.TotalSectors() == 0 {
		log.Panic(ErrNotFat16Volume)
	}

	return bs, nil
}

// EntryAttributes is the attributes bitmask of one directory entry.
type EntryAttributes uint8

const (
	// AttributeReadOnly marks the file as not writable.
	AttributeReadOnly EntryAttributes = 0x01

	// AttributeHidden marks the entry as excluded from normal listings.
	AttributeHidden EntryAttributes = 0x02

	// AttributeSystem marks the entry as belonging to the operating system.
	AttributeSystem EntryAttributes = 0x04

	// AttributeVolumeLabel marks the entry as the volume label rather than a
	// real file. The cluster and size fields of such an entry carry no data.
	AttributeVolumeLabel EntryAttributes = 0x08

	// AttributeDirectory marks the entry as a subdirectory.
	AttributeDirectory EntryAttributes = 0x10

	// AttributeArchive is set when the file is created or modified; backup
	// tools clear it.
	AttributeArchive EntryAttributes = 0x20
)

// IsReadOnly indicates that the read-only attribute is set.
func (ea EntryAttributes) IsReadOnly() bool {
	return ea&AttributeReadOnly > 0
}

// IsHidden indicates that the hidden attribute is set.
func (ea EntryAttributes) IsHidden() bool {
	return ea&AttributeHidden > 0
}

// IsSystem indicates that the system attribute is set.
func (ea EntryAttributes) IsSystem() bool {
	return ea&AttributeSystem > 0
}

// IsVolumeLabel indicates that the entry is the volume label.
func (ea EntryAttributes) IsVolumeLabel() bool {
	return ea&AttributeVolumeLabel > 0
}

// IsDirectory indicates that the entry is a subdirectory.
func (ea EntryAttributes) IsDirectory() bool {
	return ea&AttributeDirectory > 0
}

// IsArchive indicates that the archive attribute is set.
func (ea EntryAttributes) IsArchive() bool {
	return ea&AttributeArchive > 0
}

// DumpBareIndented prints the attribute flags with arbitrary indentation.
func (ea EntryAttributes) DumpBareIndented(indent string) {
	fmt.Printf("%sRaw Value: (%08b)\n", indent, uint8(ea))
	fmt.Printf("%sIsReadOnly: [%v]\n", indent, ea.IsReadOnly())
	fmt.Printf("%sIsHidden: [%v]\n", indent, ea.IsHidden())
	fmt.Printf("%sIsSystem: [%v]\n", indent, ea.IsSystem())
	fmt.Printf("%sIsVolumeLabel: [%v]\n", indent, ea.IsVolumeLabel())
	fmt.Printf("%sIsDirectory: [%v]\n", indent, ea.IsDirectory())
	fmt.Printf("%sIsArchive: [%v]\n", indent, ea.IsArchive())
}

// ShortNameEntry is one 32-byte short-name (8.3) directory entry as stored on
// disk. Long-name (VFAT) entries are not interpreted by this driver.
type ShortNameEntry struct {
	// DosName is the raw 11-byte name: an 8-byte stem and a 3-byte extension,
	// both space-padded, no dot.
	DosName [11]byte

	// Attributes is the entry's attributes bitmask.
	Attributes EntryAttributes

	Reserved uint8

	// CreateTimeTenths carries the creation time's sub-two-second resolution
	// in 10ms units, 0-199.
	CreateTimeTenths uint8

	// CreateTime and CreateDate stamp the creation in DOS packed format.
	CreateTime uint16
	CreateDate uint16

	// AccessDate stamps the last read. There is no access time.
	AccessDate uint16

	// FirstClusterHigh is the high half of the first cluster number. It is
	// always zero on FAT12/16.
	FirstClusterHigh uint16

	// ModifiedTime and ModifiedDate stamp the last write.
	ModifiedTime uint16
	ModifiedDate uint16

	// FirstClusterLow is the first cluster of the entry's data.
	FirstClusterLow uint16

	// FileSize is the byte length of the file. Zero for directories and the
	// volume label.
	FileSize uint32
}

// IsEndOfDirectory indicates that this entry and every entry after it are
// unused.
func (sne ShortNameEntry) IsEndOfDirectory() bool {
	return sne.DosName[0] == entryMarkerEndOfDirectory
}

// IsFree indicates that the entry slot was deleted or never used, but entries
// may still follow it.
func (sne ShortNameEntry) IsFree() bool {
	return sne.DosName[0] == entryMarkerFree
}

// Filename returns the entry's name in the familiar NAME.EXT form.
func (sne ShortNameEntry) Filename() string {
	return formatShortName(sne.DosName)
}

// FirstCluster returns the first cluster of the entry's data. The high half
// is ignored, as it is only meaningful on FAT32.
func (sne ShortNameEntry) FirstCluster() uint16 {
	return sne.FirstClusterLow
}

// Created returns the creation timestamp.
func (sne ShortNameEntry) Created() time.Time {
	return decodeDosTimestamp(sne.CreateDate, sne.CreateTime, sne.CreateTimeTenths)
}

// Accessed returns the last-access date. The on-disk format has no time-of-
// day for accesses.
func (sne ShortNameEntry) Accessed() time.Time {
	return decodeDosTimestamp(sne.AccessDate, 0, 0)
}

// Modified returns the last-write timestamp.
func (sne ShortNameEntry) Modified() time.Time {
	return decodeDosTimestamp(sne.ModifiedDate, sne.ModifiedTime, 0)
}

// String returns a description of the entry.
func (sne ShortNameEntry) String() string {
	return fmt.Sprintf("ShortNameEntry<NAME=[%s] ATTRIBUTES=(%08b) FIRST-CLUSTER=(%d) SIZE=(%d)>", sne.Filename(), uint8(sne.Attributes), sne.FirstCluster(), sne.FileSize)
}

// Dump prints the interpreted fields of the entry.
func (sne ShortNameEntry) Dump() {
	fmt.Printf("Short-Name Entry: [%s]\n", sne.Filename())
	fmt.Printf("\n")

	fmt.Printf("  DosName: [%s]\n", string(sne.DosName[:]))
	fmt.Printf("  FirstCluster: (%d)\n", sne.FirstCluster())
	fmt.Printf("  FileSize: (%d)\n", sne.FileSize)
	fmt.Printf("  Created: [%s]\n", sne.Created())
	fmt.Printf("  Accessed: [%s]\n", sne.Accessed())
	fmt.Printf("  Modified: [%s]\n", sne.Modified())
	fmt.Printf("\n")

	fmt.Printf("  Attributes:\n")
	sne.Attributes.DumpBareIndented("    ")
	fmt.Printf("\n")
}

// parseShortNameEntry unpacks one 32-byte directory-entry slot.
func parseShortNameEntry(data []byte) (sne ShortNameEntry, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < directoryEntrySize {
		log.Panicf("directory-entry data too small: (%d)", len(data))
	}

	err = restruct.Unpack(data[:directoryEntrySize], defaultEncoding, &sne)
	log.PanicIf(err)

	return sne, nil
}

// decodeDosTimestamp converts a DOS packed date/time pair to a time.Time.
// The date counts years from 1980; the time has two-second resolution plus
// the optional 10ms-unit refinement. A zero date decodes to the zero time.
func decodeDosTimestamp(date, timeOfDay uint16, tenths uint8) time.Time {
	if date == 0 {
		return time.Time{}
	}

	year := 1980 + int(date>>9)
	month := time.Month((date >> 5) & 0x0f)
	day := int(date & 0x1f)

	hour := int(timeOfDay >> 11)
	minute := int((timeOfDay >> 5) & 0x3f)
	second := int(timeOfDay&0x1f)*2 + int(tenths)/100

	return time.Date(year, month, day, hour, minute, second, int(tenths)%100*10000000, time.UTC)
}

// FatEntry is one 16-bit entry of the allocation table. Entry N describes
// cluster N: either the next cluster of the chain that N belongs to, or one
// of the markers below.
type FatEntry uint16

// IsFree indicates that the cluster is unallocated. A free entry inside a
// chain means the volume is corrupt.
func (fe FatEntry) IsFree() bool {
	return fe == 0
}

// IsReserved indicates one of the reserved marker values.
func (fe FatEntry) IsReserved() bool {
	return fe >= 0xfff0 && fe <= 0xfff6
}

// IsDefective indicates that the cluster is marked as having bad sectors.
func (fe FatEntry) IsDefective() bool {
	return fe == 0xfff7
}

// IsEndOfChain indicates that no more clusters follow the cluster that led to
// this entry.
func (fe FatEntry) IsEndOfChain() bool {
	return fe >= 0xfff8
}
