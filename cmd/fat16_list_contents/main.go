package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath    string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	FirstSector uint32 `short:"s" long:"first-sector" description:"Sector the volume starts at" default:"0"`
	ShowDetail  bool   `short:"d" long:"detail" description:"Show additional entry detail"`
}

var (
	rootArguments = new(rootParameters)
)

func attributesString(entry *fat16.DirectoryEntry) string {
	flags := []byte("-----")

	if entry.IsArchived == true {
		flags[0] = 'a'
	}

	if entry.IsReadOnly == true {
		flags[1] = 'r'
	}

	if entry.IsSystem == true {
		flags[2] = 's'
	}

	if entry.IsHidden == true {
		flags[3] = 'h'
	}

	if entry.IsDirectory == true {
		flags[4] = 'd'
	}

	return string(flags)
}

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	dev, err := fat16.OpenFileDevice(rootArguments.Filepath)
	log.PanicIf(err)

	defer dev.Close()

	volume, err := fat16.OpenVolume(dev, rootArguments.FirstSector)
	log.PanicIf(err)

	defer volume.Close()

	dir, err := fat16.OpenDirectory(volume, fat16.RootDirectoryPath)
	log.PanicIf(err)

	defer dir.Close()

	for {
		entry, err := dir.ReadEntry()
		if err == io.EOF {
			break
		}

		log.PanicIf(err)

		if rootArguments.ShowDetail == true {
			entry.Dump()
		} else {
			fmt.Printf("%15s %s %20s %s\n", humanize.Comma(int64(entry.Size)), attributesString(entry), entry.Modified, entry.Name)
		}
	}
}
