// Command gice is the field tool for programming and inspecting the boot
// flash of an iCEBreaker-class FPGA board over an FT2232H USB-to-SPI bridge.
// It dispatches to info/read/write subcommands built on the flash/drivers
// packages.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
)

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func fatalUsage(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(2)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
	gice <command> [arguments]

Commands:
	info	 print FTDI device and EEPROM info
	read	 read flash memory
	write	 write flash memory
`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fatalf("logger setup failed: %v", err)
	}
	defer log.Sync()

	switch cmd := flag.Arg(0); cmd {
	case "info":
		infoCommand()
	case "read":
		readCommand(flag.Args()[1:], log)
	case "write":
		writeCommand(flag.Args()[1:], log)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", cmd)
		usage()
	}
}
