package fat16

import (
	"encoding/binary"
)

// The tests synthesize FAT16 images in memory rather than shipping binary
// assets. The default geometry is small but real: 512-byte sectors, one
// sector per cluster, two FAT copies of 32 sectors each, a 512-entry root
// region, and 16384 total sectors, which puts the first data sector at 97
// and the cluster count at 16287.

const (
	testReservedSectors = 1
	testNumberOfFats    = 2
	testSectorsPerFat   = 32
	testRootEntryCount  = 512
	testTotalSectors    = 16384

	testFatFirstSector  = testReservedSectors
	testRootFirstSector = testReservedSectors + testNumberOfFats*testSectorsPerFat
	testFirstDataSector = testRootFirstSector + testRootEntryCount*directoryEntrySize/SectorSize
)

type testImageBuilder struct {
	image []byte

	sectorsPerCluster uint32
	bytesPerCluster   uint32

	nextCluster uint16
	entryIndex  uint32
}

// newTestImageBuilder builds an empty volume with the default geometry.
func newTestImageBuilder() *testImageBuilder {
	return newTestImageBuilderWithClustering(1, testTotalSectors)
}

// newTestImageBuilderWithClustering builds an empty volume with the given
// cluster size and sector count. The caller must pick a combination whose
// cluster count lands in the FAT16 window.
func newTestImageBuilderWithClustering(sectorsPerCluster uint8, totalSectors uint32) *testImageBuilder {
	b := &testImageBuilder{
		image: make([]byte, totalSectors*SectorSize),

		sectorsPerCluster: uint32(sectorsPerCluster),
		bytesPerCluster:   uint32(sectorsPerCluster) * SectorSize,

		nextCluster: 2,
	}

	image := b.image

	copy(image[0:], []byte{0xeb, 0x3c, 0x90})
	copy(image[3:], "MSDOS5.0")

	binary.LittleEndian.PutUint16(image[11:], SectorSize)
	image[13] = sectorsPerCluster
	binary.LittleEndian.PutUint16(image[14:], testReservedSectors)
	image[16] = testNumberOfFats
	binary.LittleEndian.PutUint16(image[17:], testRootEntryCount)

	if totalSectors < 0x10000 {
		binary.LittleEndian.PutUint16(image[19:], uint16(totalSectors))
	} else {
		binary.LittleEndian.PutUint32(image[32:], totalSectors)
	}

	image[21] = 0xf8
	binary.LittleEndian.PutUint16(image[22:], testSectorsPerFat)
	binary.LittleEndian.PutUint16(image[24:], 63)
	binary.LittleEndian.PutUint16(image[26:], 255)
	image[36] = 0x80
	image[38] = 0x29
	binary.LittleEndian.PutUint32(image[39:], 0x3d51a058)
	copy(image[43:], "TESTVOLUME ")
	copy(image[54:], "FAT16   ")
	binary.LittleEndian.PutUint16(image[510:], requiredBootSignature)

	// FAT[0] carries the media type; FAT[1] is fixed.
	b.setFatEntry(0, 0xfff8)
	b.setFatEntry(1, 0xffff)

	return b
}

// setFatEntry writes the entry into every FAT copy.
func (b *testImageBuilder) setFatEntry(cluster, value uint16) {
	for i := 0; i < testNumberOfFats; i++ {
		offset := (testFatFirstSector+i*testSectorsPerFat)*SectorSize + int(cluster)*2
		binary.LittleEndian.PutUint16(b.image[offset:], value)
	}
}

func (b *testImageBuilder) clusterOffset(cluster uint16) int {
	return (testFirstDataSector + (int(cluster)-2)*int(b.sectorsPerCluster)) * SectorSize
}

// addRootEntry appends one raw 32-byte entry to the root region.
func (b *testImageBuilder) addRootEntry(rawName [11]byte, attributes EntryAttributes, firstCluster uint16, size uint32) {
	offset := testRootFirstSector*SectorSize + int(b.entryIndex)*directoryEntrySize

	copy(b.image[offset:], rawName[:])
	b.image[offset+11] = uint8(attributes)

	// 2023-11-09 12:30:00, packed.
	binary.LittleEndian.PutUint16(b.image[offset+22:], 12<<11|30<<5)
	binary.LittleEndian.PutUint16(b.image[offset+24:], (2023-1980)<<9|11<<5|9)

	binary.LittleEndian.PutUint16(b.image[offset+26:], firstCluster)
	binary.LittleEndian.PutUint32(b.image[offset+28:], size)

	b.entryIndex++
}

// addFile allocates a cluster chain, lays the data into it, and appends a
// root entry for it.
func (b *testImageBuilder) addFile(filename string, data []byte) {
	if len(data) == 0 {
		b.addRootEntry(encodeShortName(filename), AttributeArchive, 0, 0)
		return
	}

	clusterCount := (len(data) + int(b.bytesPerCluster) - 1) / int(b.bytesPerCluster)

	firstCluster := b.nextCluster

	for i := 0; i < clusterCount; i++ {
		current := b.nextCluster
		b.nextCluster++

		end := (i + 1) * int(b.bytesPerCluster)
		if end > len(data) {
			end = len(data)
		}

		copy(b.image[b.clusterOffset(current):], data[i*int(b.bytesPerCluster):end])

		if i == clusterCount-1 {
			b.setFatEntry(current, 0xffff)
		} else {
			b.setFatEntry(current, current+1)
		}
	}

	b.addRootEntry(encodeShortName(filename), AttributeArchive, firstCluster, uint32(len(data)))
}

// addFreeSlot appends a deleted-entry slot.
func (b *testImageBuilder) addFreeSlot() {
	var rawName [11]byte
	rawName[0] = entryMarkerFree

	b.addRootEntry(rawName, 0, 0, 0)
}

// addVolumeLabel appends the volume-label entry.
func (b *testImageBuilder) addVolumeLabel(label string) {
	var rawName [11]byte
	copy(rawName[:], "           ")
	copy(rawName[:], label)

	b.addRootEntry(rawName, AttributeVolumeLabel, 0, 0)
}

// addDirectory appends a subdirectory entry. The directory's own cluster is
// allocated but left empty; this driver never descends into it.
func (b *testImageBuilder) addDirectory(name string) {
	cluster := b.nextCluster
	b.nextCluster++

	b.setFatEntry(cluster, 0xffff)

	b.addRootEntry(encodeShortName(name), AttributeDirectory, cluster, 0)
}

func (b *testImageBuilder) device() *ImageDevice {
	return NewImageDevice(b.image)
}

// encodeShortName packs NAME.EXT into the raw, space-padded 11-byte field.
func encodeShortName(filename string) (rawName [11]byte) {
	copy(rawName[:], "           ")

	dot := -1
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			dot = i
			break
		}
	}

	stem := filename
	if dot != -1 {
		stem = filename[:dot]
		copy(rawName[8:], filename[dot+1:])
	}

	copy(rawName[:8], stem)

	return rawName
}
