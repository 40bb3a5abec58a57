package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"termos/kernel/fs"
	"termos/usr"

	_ "termos/usr/bin"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkimage] error: %s\n", err.Error())
	os.Exit(1)
}

func runTool() error {
	output := flag.String("out", "filesys.img", "the volume image to write")
	inodes := flag.Int("inodes", fs.DefaultLimits.Inodes, "the number of inodes of the volume")
	blocks := flag.Int("blocks", fs.DefaultLimits.DataBlocks, "the number of data blocks of the volume")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkimage: build a boot volume with the user programs and the given host files\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkimage [options] [file...]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *inodes <= 0 || *blocks <= 0 {
		exit(errors.New("the inode and block counts must be positive"))
	}

	files := make(map[string][]byte, flag.NArg())
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.Base(path)] = data
	}

	limits := fs.Limits{DirEntries: fs.MaxDirEntries, Inodes: *inodes, DataBlocks: *blocks}
	image, kerr := usr.NewVolume(limits, files)
	if kerr != nil {
		return kerr
	}

	if err := fs.SaveVolume(*output, image); err != nil {
		return err
	}
	fmt.Printf("%s: %d programs, %d files, %d bytes\n", *output, len(usr.Programs()), len(files), len(image))
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
