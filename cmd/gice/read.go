package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
)

func readCommand(args []string, log *zap.Logger) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	var (
		sectors int
		nread   int
		idOnly  bool
		outFile string
	)
	fs.IntVar(&sectors, "sectors", 1024, "chip sector count (for Info only)")
	fs.IntVar(&nread, "n", 256, "number of bytes to read")
	fs.BoolVar(&idOnly, "id", false, "only print flash ID and exit")
	fs.StringVar(&outFile, "o", "", "output file (default: hexdump)")
	fs.Parse(args)

	f, err := openFlash(sectors, log)
	if err != nil {
		fatalf("%v", err)
	}

	if err := f.PowerUp(); err != nil {
		fatalf("power up failed: %v", err)
	}
	defer f.PowerDown()

	id, name, err := f.ReadID()
	if err != nil {
		fatalf("read flash ID failed: %v", err)
	}
	if idOnly {
		fmt.Printf("%X\t%s\n", id, name)
		return
	}
	if name == "" {
		fmt.Fprintf(os.Stderr, "unknown flash ID (%X)\n", id)
	}

	ctx := context.Background()
	data := make([]byte, nread)
	if err := f.Read(ctx, 0, data); err != nil {
		fatalf("read flash failed: %v", err)
	}
	if outFile == "" {
		fmt.Println(hex.Dump(data))
		return
	}
	if err := os.WriteFile(outFile, data, 0644); err != nil {
		fmt.Fprintln(os.Stderr, "write file failed:", err)
	}
}
