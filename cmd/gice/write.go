package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"
)

func writeCommand(args []string, log *zap.Logger) {
	fs := flag.NewFlagSet("write", flag.ExitOnError)
	var (
		sectors   int
		filename  string
		bulkErase bool
	)
	fs.IntVar(&sectors, "sectors", 1024, "chip sector count")
	fs.StringVar(&filename, "f", "", "input file")
	fs.BoolVar(&bulkErase, "e", false, "erase entire chip instead of just the written range")
	fs.Parse(args)

	if filename == "" && !bulkErase {
		fatalUsage("input file is required")
	}

	var data []byte
	if filename != "" {
		var err error
		data, err = os.ReadFile(filename)
		if err != nil {
			fatalf("failed to read file: %v", err)
		}
	}

	f, err := openFlash(sectors, log)
	if err != nil {
		fatalf("%v", err)
	}

	if err := f.PowerUp(); err != nil {
		fatalf("power up failed: %v", err)
	}
	defer f.PowerDown()

	ctx := context.Background()
	info := f.Info()

	eraseCount := info.SectorCount
	if !bulkErase {
		eraseCount = (len(data) + info.SectorSize - 1) / info.SectorSize
	}
	for s := 0; s < eraseCount; s++ {
		if err := f.EraseSector(ctx, s); err != nil {
			fatalf("erase sector %d failed: %v", s, err)
		}
	}

	if len(data) == 0 {
		return
	}
	if err := f.Write(ctx, 0, data); err != nil {
		fatalf("write flash failed: %v", err)
	}
}
