package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dsoprea/go-logging"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-fat16"
)

type rootParameters struct {
	Filepath       string `short:"f" long:"filepath" description:"File-path of FAT16 image" required:"true"`
	FirstSector    uint32 `short:"s" long:"first-sector" description:"Sector the volume starts at" default:"0"`
	ExtractName    string `short:"n" long:"name" description:"8.3 name of the file to extract" required:"true"`
	OutputFilepath string `short:"o" long:"output-filepath" description:"File-path to write to ('-' for STDOUT)" required:"true"`
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

	file, err := fat16.OpenFile(volume, rootArguments.ExtractName)
	if log.Is(err, fat16.ErrFileNotFound) == true {
		fmt.Printf("File not found.\n")
		os.Exit(2)
	}

	log.PanicIf(err)

	defer file.Close()

	var g *os.File

	if rootArguments.OutputFilepath == "-" {
		g = os.Stdout
	} else {
		g, err = os.Create(rootArguments.OutputFilepath)
		log.PanicIf(err)

		defer func() {
			g.Close()
		}()
	}

	written, err := io.Copy(g, file)
	log.PanicIf(err)

	if rootArguments.OutputFilepath != "-" {
		fmt.Printf("(%d) bytes written.\n", written)
	}
}
