// Command roomnode boots a home-automation bus node: it brings up the boot
// flash and FRAM (real hardware over FT2232H/SPI, or in-memory doubles for
// bench testing), registers the node's storage arrays, restores its
// persistent counters, and runs the cooperative task event loop that drains
// every driver once per tick.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"

	"github.com/jochen0x90h/roomnode/counter"
	"github.com/jochen0x90h/roomnode/drivers"
	"github.com/jochen0x90h/roomnode/flash"
	"github.com/jochen0x90h/roomnode/fram"
	"github.com/jochen0x90h/roomnode/storage"
	"github.com/jochen0x90h/roomnode/task"
)

// endpointConfig is one bus endpoint's persisted configuration: its function
// type (light, switch, thermostat, ...) and a bitfield of per-endpoint flags.
// Grounded on the bus::EndpointType vocabulary the node firmware's
// Message.hpp builds on.
type endpointConfig struct {
	EndpointType uint8
	Flags        uint16
}

var endpointConfigSpec = storage.ArraySpec[endpointConfig]{
	Encode: func(v endpointConfig) []byte {
		return []byte{v.EndpointType, byte(v.Flags), byte(v.Flags >> 8)}
	},
	Decode: func(raw []byte) endpointConfig {
		return endpointConfig{EndpointType: raw[0], Flags: uint16(raw[1]) | uint16(raw[2])<<8}
	},
	RAMSize: func(endpointConfig) int { return 0 },
}

func main() {
	emulated := flag.Bool("emulated", true, "use in-memory flash/FRAM doubles instead of real hardware")
	serialPath := flag.String("serial", "", "multi-drop bus serial device (e.g. /dev/ttyUSB0); disabled if empty")
	tick := flag.Duration("tick", 10*time.Millisecond, "task loop tick interval")
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *emulated, *serialPath, *tick, log); err != nil {
		log.Fatal("roomnode: exiting", zap.Error(err))
	}
}

func run(ctx context.Context, emulated bool, serialPath string, tick time.Duration, log *zap.Logger) error {
	flashDev, framDev, err := openDevices(emulated, log)
	if err != nil {
		return err
	}

	st, err := storage.New(flashDev, storage.Config{
		PageStart:   0,
		PageCount:   16, // 8 sectors per region, two regions
		MaxElements: 64,
		RAMSize:     4096,
	}, log)
	if err != nil {
		return err
	}
	endpoints := storage.Register(st, endpointConfigSpec)
	if err := st.Init(ctx); err != nil {
		return err
	}
	log.Info("storage ready", zap.Int("endpoints", endpoints.Len()))

	counterMgr := counter.NewManager(framDev, counter.Config{Base: 0, Size: 1024}, log)
	bootCount, err := counter.New[uint32](ctx, counterMgr)
	if err != nil {
		return err
	}
	securitySeq, err := counter.New[uint32](ctx, counterMgr)
	if err != nil {
		return err
	}
	bootCount.Inc()
	log.Info("counters restored",
		zap.Uint32("bootCount", bootCount.Get()),
		zap.Uint32("securitySeq", securitySeq.Get()))

	loop := task.NewLoop(tick, log)
	loop.AddDriver(&counterFlushDriver{mgr: counterMgr})

	if serialPath != "" {
		bus, err := drivers.OpenSerialBus(serialPath, syscall.B9600, log)
		if err != nil {
			return err
		}
		defer bus.Close()
		loop.AddDriver(bus)
	}

	return loop.Run(ctx)
}

func openDevices(emulated bool, log *zap.Logger) (flash.Device, fram.Device, error) {
	if emulated {
		return flash.NewEmulated(16, 4096, 256), fram.NewEmulated(1024), nil
	}

	ft, err := drivers.OpenFT2232H()
	if err != nil {
		return nil, nil, err
	}
	const clock = 30 * physic.MegaHertz

	flashConn, err := drivers.ConnectSPI(ft, clock)
	if err != nil {
		return nil, nil, err
	}
	flashDev := flash.NewSPINORFlash(flashConn, ft.D4, 1024, log)

	framConn, err := drivers.ConnectSPI(ft, clock)
	if err != nil {
		return nil, nil, err
	}
	framDev := fram.NewSPIFRAM(framConn, ft.D5, 8192)

	return flashDev, framDev, nil
}

// counterFlushDriver adapts counter.Manager to task.Driver: the manager
// itself stays ignorant of the task runtime (see DESIGN.md), so the boot
// sequence is what wires its deferred writes into a tick.
type counterFlushDriver struct {
	mgr *counter.Manager
}

func (d *counterFlushDriver) Poll(ctx context.Context) error {
	return d.mgr.Flush(ctx)
}
