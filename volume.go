// This file knows where the statically-located regions of a FAT16 volume are,
// how to validate them, and how to materialize cluster chains from the
// allocation table.

package fat16

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"github.com/dsoprea/go-logging"
)

var (
	// ErrFatMirrorMismatch indicates that the volume's allocation-table
	// copies are not byte-identical. The driver makes no attempt to decide
	// which copy to trust.
	ErrFatMirrorMismatch = errors.New("fat mirrors disagree")

	// ErrClusterChainMalformed indicates a chain that leads through a free,
	// reserved, or defective entry, leaves the valid cluster window, or never
	// terminates.
	ErrClusterChainMalformed = errors.New("cluster chain malformed")

	// ErrClusterOutOfRange indicates a cluster whose sectors fall outside the
	// data region.
	ErrClusterOutOfRange = errors.New("cluster not within data region")
)

var (
	volumeLogger = log.NewLogger("fat16.volume")
)

// Volume is one mounted FAT16 filesystem. It is immutable once opened and may
// back any number of files and directory iterators concurrently; those hold
// their own cursors.
type Volume struct {
	dev SectorDevice

	bootSector BootSector

	// firstVolumeSector is the device sector the volume starts at. All of
	// the region offsets below are volume-relative.
	firstVolumeSector uint32

	sectorsPerCluster   uint32
	bytesPerCluster     uint32
	reservedSectorCount uint32
	fatSectorCount      uint32
	rootFirstSector     uint32
	rootSectorCount     uint32
	rootEntryCount      uint32
	firstDataSector     uint32
	totalSectorCount    uint32
	dataSectorCount     uint32
	clusterCount        uint32

	fat []FatEntry
}

// OpenVolume mounts the FAT16 volume starting at the given device sector.
// The boot sector is validated, the geometry derived, and all allocation-
// table copies are loaded and cross-checked before the volume is usable.
func OpenVolume(dev SectorDevice, firstSector uint32) (volume *Volume, err error) {
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

	if dev == nil {
		log.Panicf("device is nil")
	}

	sectorData := make([]byte, SectorSize)

	err = dev.ReadSectors(firstSector, 1, sectorData)
	log.PanicIf(err)

	bs, err := NewBootSectorFromBytes(sectorData)
	log.PanicIf(err)

	volume = &Volume{
		dev:               dev,
		bootSector:        bs,
		firstVolumeSector: firstSector,
	}

	volume.deriveGeometry()

	err = volume.loadFat()
	log.PanicIf(err)

	volumeLogger.Debugf(nil, "Mounted FAT16 volume: label=[%s] clusters=(%d) bytes-per-cluster=(%d) first-data-sector=(%d)", bs.Label(), volume.clusterCount, volume.bytesPerCluster, volume.firstDataSector)

	return volume, nil
}

// deriveGeometry computes the region offsets and counts from the boot sector
// and enforces the FAT16 cluster-count window.
func (v *Volume) deriveGeometry() {
	bs := v.bootSector

	v.sectorsPerCluster = uint32(bs.SectorsPerCluster)
	v.bytesPerCluster = v.sectorsPerCluster * SectorSize
	v.reservedSectorCount = uint32(bs.ReservedSectorCount)
	v.fatSectorCount = uint32(bs.NumberOfFats) * uint32(bs.SectorsPerFat)
	v.rootEntryCount = uint32(bs.RootEntryCount)
	v.rootSectorCount = (v.rootEntryCount*directoryEntrySize + SectorSize - 1) / SectorSize
	v.rootFirstSector = v.reservedSectorCount + v.fatSectorCount
	v.firstDataSector = v.rootFirstSector + v.rootSectorCount
	v.totalSectorCount = bs.TotalSectors()

	if v.totalSectorCount <= v.firstDataSector {
		log.Panic(ErrNotFat16Volume)
	}

	v.dataSectorCount = v.totalSectorCount - v.firstDataSector
	v.clusterCount = v.dataSectorCount / v.sectorsPerCluster

	if v.clusterCount < fat16MinClusterCount || v.clusterCount >= fat16MaxClusterCount {
		log.Panic(ErrNotFat16Volume)
	}
}

// loadFat reads every allocation-table copy in one pass, requires them to be
// byte-identical, and decodes the first copy into 16-bit entries.
func (v *Volume) loadFat() (err error) {
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

	fatBytes := uint32(v.bootSector.SectorsPerFat) * SectorSize

	raw := make([]byte, v.fatSectorCount*SectorSize)

	err = v.dev.ReadSectors(v.firstVolumeSector+v.reservedSectorCount, v.fatSectorCount, raw)
	log.PanicIf(err)

	first := raw[:fatBytes]
	for i := uint32(1); i < uint32(v.bootSector.NumberOfFats); i++ {
		mirror := raw[i*fatBytes : (i+1)*fatBytes]

		if bytes.Equal(first, mirror) != true {
			log.Panic(ErrFatMirrorMismatch)
		}
	}

	// The on-disk table is little-endian; decoding entry-by-entry makes the
	// host's byte order irrelevant.

	entryCount := fatBytes / 2

	fat := make([]FatEntry, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		fat[i] = FatEntry(defaultEncoding.Uint16(first[i*2:]))
	}

	v.fat = fat

	return nil
}

// Close releases the allocation table. Files and directories derived from the
// volume must be closed first; the device is left open.
func (v *Volume) Close() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if v.fat == nil {
		log.Panicf("volume already closed")
	}

	v.fat = nil
	v.dev = nil

	return nil
}

// BootSector returns the parsed boot sector.
func (v *Volume) BootSector() BootSector {
	return v.bootSector
}

// Label returns the volume label from the boot sector.
func (v *Volume) Label() string {
	return v.bootSector.Label()
}

// SerialNumber returns the volume serial number stamped at format time.
func (v *Volume) SerialNumber() uint32 {
	return v.bootSector.VolumeSerialNumber
}

// ClusterCount returns the count of data clusters on the volume.
func (v *Volume) ClusterCount() uint32 {
	return v.clusterCount
}

// BytesPerCluster returns the allocation-unit size, in bytes.
func (v *Volume) BytesPerCluster() uint32 {
	return v.bytesPerCluster
}

// RootEntryCount returns the capacity of the root-directory region, in
// entries.
func (v *Volume) RootEntryCount() uint32 {
	return v.rootEntryCount
}

// FirstDataSector returns the volume-relative sector where the data region
// begins.
func (v *Volume) FirstDataSector() uint32 {
	return v.firstDataSector
}

// TotalSectors returns the sector count of the volume.
func (v *Volume) TotalSectors() uint32 {
	return v.totalSectorCount
}

// String returns a description of the volume.
func (v *Volume) String() string {
	return fmt.Sprintf("Volume<LABEL=[%s] SN=(0x%08x) CLUSTERS=(%d)>", v.Label(), v.SerialNumber(), v.clusterCount)
}

// Dump prints the boot sector and the derived geometry.
func (v *Volume) Dump() {
	v.bootSector.Dump()

	fmt.Printf("Derived Geometry\n")
	fmt.Printf("================\n")
	fmt.Printf("\n")

	fmt.Printf("FirstVolumeSector: (%d)\n", v.firstVolumeSector)
	fmt.Printf("BytesPerCluster: (%d)\n", v.bytesPerCluster)
	fmt.Printf("FatSectorCount: (%d)\n", v.fatSectorCount)
	fmt.Printf("RootFirstSector: (%d)\n", v.rootFirstSector)
	fmt.Printf("RootSectorCount: (%d)\n", v.rootSectorCount)
	fmt.Printf("FirstDataSector: (%d)\n", v.firstDataSector)
	fmt.Printf("DataSectorCount: (%d)\n", v.dataSectorCount)
	fmt.Printf("ClusterCount: (%d)\n", v.clusterCount)
	fmt.Printf("\n")
}

// clusterChain walks the allocation table from the given cluster and returns
// the full, ordered chain. Chains are short and rebuilt on every open rather
// than cached.
func (v *Volume) clusterChain(startCluster uint16) (chain []uint16, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	chain = make([]uint16, 0, 8)

	current := startCluster
	for {
		if uint32(current) < 2 || uint32(current) >= v.clusterCount+2 {
			log.Panic(ErrClusterChainMalformed)
		}

		chain = append(chain, current)

		// A chain longer than the cluster count can only be a cycle.
		if uint32(len(chain)) > v.clusterCount {
			log.Panic(ErrClusterChainMalformed)
		}

		if uint32(current) >= uint32(len(v.fat)) {
			log.Panic(ErrClusterChainMalformed)
		}

		next := v.fat[current]
		if next.IsEndOfChain() == true {
			break
		}

		if next.IsFree() == true || next.IsReserved() == true || next.IsDefective() == true {
			log.Panic(ErrClusterChainMalformed)
		}

		current = uint16(next)
	}

	return chain, nil
}

// readCluster reads all sectors of the given data cluster into `buffer`.
func (v *Volume) readCluster(cluster uint16, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	// Clusters number from two.
	firstSector := (uint32(cluster)-2)*v.sectorsPerCluster + v.firstDataSector

	if firstSector < v.firstDataSector || firstSector >= v.totalSectorCount {
		log.Panic(ErrClusterOutOfRange)
	}

	err = v.dev.ReadSectors(v.firstVolumeSector+firstSector, v.sectorsPerCluster, buffer)
	log.PanicIf(err)

	return nil
}

// readRootSector reads one sector of the fixed root-directory region.
func (v *Volume) readRootSector(sectorIndex uint32, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if sectorIndex >= v.rootSectorCount {
		log.Panic(ErrSectorOutOfRange)
	}

	err = v.dev.ReadSectors(v.firstVolumeSector+v.rootFirstSector+sectorIndex, 1, buffer)
	log.PanicIf(err)

	return nil
}

// findRootEntry loads the whole root region and scans it for the given name,
// case-insensitively. Iteration stops at the end-of-directory sentinel.
func (v *Volume) findRootEntry(filename string) (entry ShortNameEntry, found bool, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if v.rootSectorCount == 0 {
		return entry, false, nil
	}

	region := make([]byte, v.rootSectorCount*SectorSize)

	err = v.dev.ReadSectors(v.firstVolumeSector+v.rootFirstSector, v.rootSectorCount, region)
	log.PanicIf(err)

	for i := uint32(0); i < v.rootEntryCount; i++ {
		current, err := parseShortNameEntry(region[i*directoryEntrySize : (i+1)*directoryEntrySize])
		log.PanicIf(err)

		if current.IsEndOfDirectory() == true {
			break
		}

		if current.IsFree() == true {
			continue
		}

		if shortNamesEqualFold(current.Filename(), filename) == true {
			return current, true, nil
		}
	}

	return entry, false, nil
}
