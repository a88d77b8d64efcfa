package main

import (
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath    string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	FirstSector uint32 `short:"s" long:"first-sector" description:"Sector the volume starts at" default:"0"`
}

var (
	rootArguments = new(rootParameters)
)

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

	volume.Dump()
}
