// This file supports enumerating the entries of the fixed root-directory
// region. Subdirectories are chains in the data region and are not traversed
// by this driver.

package fat16

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dsoprea/go-logging"
)

// RootDirectoryPath is the only path OpenDirectory accepts.
const RootDirectoryPath = `\`

const entriesPerSector = SectorSize / directoryEntrySize

var (
	// ErrNotRootPath indicates a directory path other than the root.
	ErrNotRootPath = errors.New("only the root directory can be opened")
)

// DirectoryEntry is the projection of one short-name entry that the iterator
// yields.
type DirectoryEntry struct {
	// Name is the formatted NAME.EXT form, at most twelve characters.
	Name string

	// Size is the byte length of the file; zero for directories.
	Size uint32

	// Modified is the last-write timestamp.
	Modified time.Time

	IsArchived  bool
	IsReadOnly  bool
	IsSystem    bool
	IsHidden    bool
	IsDirectory bool
}

// String returns a description of the entry.
func (de DirectoryEntry) String() string {
	return fmt.Sprintf("DirectoryEntry<NAME=[%s] SIZE=(%d) DIR=[%v]>", de.Name, de.Size, de.IsDirectory)
}

// Dump prints the fields of the entry.
func (de DirectoryEntry) Dump() {
	fmt.Printf("Directory Entry: [%s]\n", de.Name)
	fmt.Printf("\n")

	fmt.Printf("  Size: (%d)\n", de.Size)
	fmt.Printf("  Modified: [%s]\n", de.Modified)
	fmt.Printf("  IsArchived: [%v]\n", de.IsArchived)
	fmt.Printf("  IsReadOnly: [%v]\n", de.IsReadOnly)
	fmt.Printf("  IsSystem: [%v]\n", de.IsSystem)
	fmt.Printf("  IsHidden: [%v]\n", de.IsHidden)
	fmt.Printf("  IsDirectory: [%v]\n", de.IsDirectory)
	fmt.Printf("\n")
}

// Directory iterates the root-directory region, one entry per call. It holds
// a mutable cursor and is not safe for concurrent use.
type Directory struct {
	volume *Volume

	count uint32
	index uint32
	done  bool

	sectorBuffer []byte
}

// OpenDirectory returns an iterator over the given directory path. Only the
// literal root path is supported.
func OpenDirectory(volume *Volume, dirPath string) (dir *Directory, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if volume == nil {
		log.Panicf("volume is nil")
	}

	if dirPath != RootDirectoryPath {
		log.Panic(ErrNotRootPath)
	}

	dir = &Directory{
		volume:       volume,
		count:        volume.rootEntryCount,
		sectorBuffer: make([]byte, SectorSize),
	}

	return dir, nil
}

// ReadEntry returns the next in-use entry, or io.EOF at the end of the
// directory. The region is read one sector at a time. The loaded sector is
// not kept between calls, so every call reads the sector holding the next
// slot again, plus each further sector it reaches while skipping free slots.
func (dir *Directory) ReadEntry() (entry *DirectoryEntry, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if dir.sectorBuffer == nil {
		log.Panicf("directory is closed")
	}

	if dir.done == true {
		return nil, io.EOF
	}

	loadedSector := int64(-1)

	for dir.index < dir.count {
		sectorIndex := dir.index / entriesPerSector
		slot := dir.index % entriesPerSector

		if int64(sectorIndex) != loadedSector {
			err = dir.volume.readRootSector(sectorIndex, dir.sectorBuffer)
			log.PanicIf(err)

			loadedSector = int64(sectorIndex)
		}

		sne, err := parseShortNameEntry(dir.sectorBuffer[slot*directoryEntrySize : (slot+1)*directoryEntrySize])
		log.PanicIf(err)

		if sne.IsEndOfDirectory() == true {
			dir.done = true
			return nil, io.EOF
		}

		if sne.IsFree() == true {
			dir.index++
			continue
		}

		dir.index++

		entry = &DirectoryEntry{
			Name:     sne.Filename(),
			Size:     sne.FileSize,
			Modified: sne.Modified(),

			IsArchived:  sne.Attributes.IsArchive(),
			IsReadOnly:  sne.Attributes.IsReadOnly(),
			IsSystem:    sne.Attributes.IsSystem(),
			IsHidden:    sne.Attributes.IsHidden(),
			IsDirectory: sne.Attributes.IsDirectory(),
		}

		return entry, nil
	}

	dir.done = true

	return nil, io.EOF
}

// Rewind resets the iterator to the first entry.
func (dir *Directory) Rewind() {
	dir.index = 0
	dir.done = false
}

// Close releases the iterator. The volume is left open.
func (dir *Directory) Close() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if dir.sectorBuffer == nil {
		log.Panicf("directory already closed")
	}

	dir.volume = nil
	dir.sectorBuffer = nil

	return nil
}
