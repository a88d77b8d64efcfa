// This file implements the stateful, streaming read path: a per-file cursor
// that maps a byte offset to cluster, sector, and byte, buffering exactly one
// cluster at a time.

package fat16

import (
	"errors"
	"fmt"
	"io"

	"github.com/dsoprea/go-logging"
)

var (
	// ErrFileNotFound indicates that no root-directory entry carries the
	// requested name.
	ErrFileNotFound = errors.New("file not found in root directory")

	// ErrIsADirectory indicates that the requested name resolves to a
	// subdirectory or the volume label rather than a regular file.
	ErrIsADirectory = errors.New("entry is a directory or volume label")

	// ErrSeekOutOfRange indicates a seek that would land outside the file.
	ErrSeekOutOfRange = errors.New("seek not within file")

	// ErrInvalidWhence indicates an unknown seek origin.
	ErrInvalidWhence = errors.New("invalid whence")
)

var (
	fileLogger = log.NewLogger("fat16.file")
)

// File is an open, read-only file. It holds a cursor and a one-cluster read
// buffer and is not safe for concurrent use; open the file twice to read it
// from two goroutines.
type File struct {
	volume *Volume

	chain []uint16
	size  int64

	offset int64

	// clusterBuffer holds the cluster that `offset` currently falls in. The
	// window [windowStart, windowEnd) is the slice of it that is loaded but
	// not yet consumed; an empty window forces a refill on the next read.
	clusterBuffer []byte
	windowStart   int
	windowEnd     int
}

// OpenFile looks the given 8.3 name up in the root directory, case-
// insensitively, and returns a handle positioned at offset zero.
func OpenFile(volume *Volume, filename string) (file *File, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if volume == nil {
		log.Panicf("volume is nil")
	}

	entry, found, err := volume.findRootEntry(filename)
	log.PanicIf(err)

	if found != true {
		log.Panic(ErrFileNotFound)
	}

	if entry.Attributes.IsDirectory() == true || entry.Attributes.IsVolumeLabel() == true {
		log.Panic(ErrIsADirectory)
	}

	// An empty file has no chain at all; its first-cluster field is
	// meaningless (usually zero).

	var chain []uint16
	if entry.FileSize > 0 {
		chain, err = volume.clusterChain(entry.FirstCluster())
		log.PanicIf(err)
	}

	file = &File{
		volume:        volume,
		chain:         chain,
		size:          int64(entry.FileSize),
		clusterBuffer: make([]byte, volume.bytesPerCluster),
	}

	fileLogger.Debugf(nil, "Opened file: name=[%s] size=(%d) chain-length=(%d)", entry.Filename(), file.size, len(chain))

	return file, nil
}

// Size returns the byte length of the file, fixed at open.
func (f *File) Size() int64 {
	return f.size
}

// Offset returns the current cursor position.
func (f *File) Offset() int64 {
	return f.offset
}

// Read implements io.Reader. It copies out of the buffered cluster window,
// refilling it one cluster at a time, and returns io.EOF once the cursor is
// at the end of the file.
func (f *File) Read(p []byte) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if f.clusterBuffer == nil {
		log.Panicf("file is closed")
	}

	if len(p) == 0 {
		return 0, nil
	}

	if f.offset >= f.size {
		return 0, io.EOF
	}

	for n < len(p) && f.offset < f.size {
		if f.windowStart >= f.windowEnd {
			err = f.fillWindow()
			log.PanicIf(err)
		}

		copied := copy(p[n:], f.clusterBuffer[f.windowStart:f.windowEnd])

		n += copied
		f.windowStart += copied
		f.offset += int64(copied)
	}

	return n, nil
}

// fillWindow loads the cluster that the cursor currently falls in and sets
// the window to the not-yet-consumed bytes of it: from the cursor's position
// within the cluster to the end of the cluster, or to the end of the file for
// the final cluster.
func (f *File) fillWindow() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	bytesPerCluster := int64(f.volume.bytesPerCluster)

	chainIndex := f.offset / bytesPerCluster
	if chainIndex >= int64(len(f.chain)) {
		log.Panic(ErrClusterOutOfRange)
	}

	err = f.volume.readCluster(f.chain[chainIndex], f.clusterBuffer)
	log.PanicIf(err)

	f.windowStart = int(f.offset % bytesPerCluster)

	if chainIndex == int64(len(f.chain))-1 {
		f.windowEnd = int(f.size - chainIndex*bytesPerCluster)
	} else {
		f.windowEnd = int(bytesPerCluster)
	}

	return nil
}

// ReadRecords reads up to `recordCount` records of `recordSize` bytes each
// into `p` and returns the count of complete records read, in the manner of
// C's fread. A zero-sized request reads nothing and returns zero.
func (f *File) ReadRecords(p []byte, recordSize, recordCount int) (recordsRead int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if recordSize < 0 || recordCount < 0 {
		log.Panicf("negative record geometry: (%d) x (%d)", recordSize, recordCount)
	}

	requested := recordSize * recordCount
	if requested == 0 {
		return 0, nil
	}

	if len(p) < requested {
		log.Panicf("record buffer too small: (%d) < (%d)", len(p), requested)
	}

	n := 0
	for n < requested {
		read, err := f.Read(p[n:requested])
		if err == io.EOF {
			break
		}

		log.PanicIf(err)

		n += read
	}

	if n == requested {
		return recordCount, nil
	}

	return n / recordSize, nil
}

// Seek implements io.Seeker, constrained to the file: the resulting offset
// must land in [0, size], and seeking forward from the end is rejected. The
// buffered window is invalidated so the next read refills it.
func (f *File) Seek(offset int64, whence int) (newOffset int64, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if f.clusterBuffer == nil {
		log.Panicf("file is closed")
	}

	var absolute int64

	switch whence {
	case io.SeekStart:
		absolute = offset
	case io.SeekCurrent:
		absolute = f.offset + offset
	case io.SeekEnd:
		if offset > 0 {
			log.Panic(ErrSeekOutOfRange)
		}

		absolute = f.size + offset
	default:
		log.Panic(ErrInvalidWhence)
	}

	if absolute < 0 || absolute > f.size {
		log.Panic(ErrSeekOutOfRange)
	}

	f.offset = absolute
	f.windowStart = f.windowEnd

	return absolute, nil
}

// Close releases the chain and the read buffer. The volume is left open.
func (f *File) Close() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if f.clusterBuffer == nil {
		log.Panicf("file already closed")
	}

	f.chain = nil
	f.clusterBuffer = nil
	f.volume = nil

	return nil
}

// String returns a description of the handle.
func (f *File) String() string {
	return fmt.Sprintf("File<SIZE=(%d) OFFSET=(%d) CHAIN-LENGTH=(%d)>", f.size, f.offset, len(f.chain))
}
