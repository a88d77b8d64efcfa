// This file models the block layer. Everything above it addresses the media
// as fixed-size sectors, so the driver can run against a raw image file or a
// plain byte-slice equally.

package fat16

import (
	"errors"
	"os"

	"github.com/dsoprea/go-logging"
)

// SectorSize is the only sector-size this driver supports. FAT16 media with
// 1024-, 2048-, or 4096-byte sectors exists but is rare and not handled here.
const SectorSize = 512

var (
	// ErrSectorOutOfRange indicates a read for one or more sectors that are
	// not within the device.
	ErrSectorOutOfRange = errors.New("sector range not within device")
)

// SectorDevice is an opaque source of fixed-size sectors. A read either
// completely fills the requested range or fails.
type SectorDevice interface {
	// ReadSectors copies `sectorCount` sectors starting at `firstSector` into
	// `buffer`. On error the contents of `buffer` are unspecified.
	ReadSectors(firstSector, sectorCount uint32, buffer []byte) (err error)

	// TotalSectors returns the number of whole sectors on the device.
	TotalSectors() uint32
}

// checkSectorRange asserts that the requested sector range is on the device
// and that the buffer can hold it.
func checkSectorRange(totalSectors, firstSector, sectorCount uint32, buffer []byte) {
	lastExcluded := uint64(firstSector) + uint64(sectorCount)
	if lastExcluded > uint64(totalSectors) {
		log.Panic(ErrSectorOutOfRange)
	}

	if uint64(len(buffer)) < uint64(sectorCount)*SectorSize {
		log.Panicf("sector buffer too small: (%d) < (%d)", len(buffer), uint64(sectorCount)*SectorSize)
	}
}

// FileDevice is a SectorDevice backed by a raw image file.
type FileDevice struct {
	f           *os.File
	sectorCount uint32
}

// OpenFileDevice opens the image at the given path. A trailing partial sector
// in the image is ignored.
func OpenFileDevice(filepath string) (fd *FileDevice, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	f, err := os.Open(filepath)
	log.PanicIf(err)

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		log.Panic(err)
	}

	fd = &FileDevice{
		f:           f,
		sectorCount: uint32(fi.Size() / SectorSize),
	}

	return fd, nil
}

// TotalSectors returns the number of whole sectors in the backing image.
func (fd *FileDevice) TotalSectors() uint32 {
	return fd.sectorCount
}

// ReadSectors reads the requested range from the backing image.
func (fd *FileDevice) ReadSectors(firstSector, sectorCount uint32, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	checkSectorRange(fd.sectorCount, firstSector, sectorCount, buffer)

	byteCount := int(sectorCount) * SectorSize

	_, err = fd.f.ReadAt(buffer[:byteCount], int64(firstSector)*SectorSize)
	log.PanicIf(err)

	return nil
}

// Close releases the underlying file handle. Volumes derived from the device
// must be closed first.
func (fd *FileDevice) Close() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = fd.f.Close()
	log.PanicIf(err)

	return nil
}

// ImageDevice is a SectorDevice over an in-memory image. It is what the tests
// mount, and is also useful for images that are already loaded or embedded.
type ImageDevice struct {
	data []byte
}

// NewImageDevice returns an ImageDevice over the given image bytes.
func NewImageDevice(data []byte) *ImageDevice {
	return &ImageDevice{
		data: data,
	}
}

// TotalSectors returns the number of whole sectors in the image.
func (id *ImageDevice) TotalSectors() uint32 {
	return uint32(len(id.data) / SectorSize)
}

// ReadSectors copies the requested range out of the image.
func (id *ImageDevice) ReadSectors(firstSector, sectorCount uint32, buffer []byte) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	checkSectorRange(id.TotalSectors(), firstSector, sectorCount, buffer)

	first := int64(firstSector) * SectorSize
	byteCount := int64(sectorCount) * SectorSize

	copy(buffer, id.data[first:first+byteCount])

	return nil
}
