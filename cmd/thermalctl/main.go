// Command thermalctl runs the primary-mirror thermal supervisory
// control engine: it dials the FCU bus, glycol pump VFD, flow meter,
// and interlock/valve FPGA over Modbus/TCP, wires every collaborator
// into internal/app, and serves Prometheus metrics and a read-only
// status page over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skytelescope/mirrortherm/internal/app"
	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/control"
	"github.com/skytelescope/mirrortherm/internal/device"
	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/outerloop"
	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
	"github.com/skytelescope/mirrortherm/internal/telemetry"
	"github.com/skytelescope/mirrortherm/internal/valve"
	"github.com/skytelescope/mirrortherm/internal/webui"
)

// verbosity is a repeatable bare flag (-d, -d -d, -d -d -d, ...),
// counting how many times it was given.
type verbosity int

func (v *verbosity) String() string   { return fmt.Sprintf("%d", *v) }
func (v *verbosity) Set(string) error { *v++; return nil }
func (v *verbosity) IsBoolFlag() bool { return true }

func main() {
	var (
		noConsoleLog bool
		noFileLog    bool
		help         bool
		configRoot   string
		debugLevel   verbosity
		busDebugLevel verbosity
	)
	flag.BoolVar(&noConsoleLog, "b", false, "run without console log")
	flag.StringVar(&configRoot, "c", ".", "configuration root directory")
	flag.Var(&debugLevel, "d", "increase debug verbosity (repeatable)")
	flag.BoolVar(&noFileLog, "f", false, "run without file log")
	flag.BoolVar(&help, "h", false, "print usage and exit")
	flag.Var(&busDebugLevel, "s", "increase RPC-bus debug verbosity (repeatable)")
	flag.Parse()

	if help {
		flag.Usage()
		os.Exit(0)
	}

	logFile := configureLogging(configRoot, noConsoleLog, noFileLog)
	if logFile != nil {
		defer logFile.Close()
	}
	log.Printf("thermalctl starting: configRoot=%s debug=%d busDebug=%d", configRoot, debugLevel, busDebugLevel)

	if err := run(configRoot, int(debugLevel), int(busDebugLevel)); err != nil {
		log.Fatalf("startup failed: %v", err)
	}
}

// configureLogging routes log output to stderr and/or an append-mode
// log file under configRoot, per -b/-f. A failure to open the log
// file falls back to console-only rather than aborting startup.
func configureLogging(configRoot string, noConsoleLog, noFileLog bool) *os.File {
	var writers []io.Writer
	if !noConsoleLog {
		writers = append(writers, os.Stderr)
	}
	var f *os.File
	if !noFileLog {
		path := filepath.Join(configRoot, "thermalctl.log")
		var err error
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Printf("opening log file %q: %v (continuing without file log)", path, err)
		} else {
			writers = append(writers, f)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	log.SetOutput(io.MultiWriter(writers...))
	return f
}

// run dials every Modbus-backed device against the settings loaded
// from configRoot's Default configuration, wires the supervisory
// engine, and blocks serving HTTP until the process is signalled to
// exit.
func run(configRoot string, debugLevel, busDebugLevel int) error {
	initial, err := settings.Load(configRoot, "Default")
	if err != nil {
		return fmt.Errorf("loading initial settings: %w", err)
	}

	const dialTimeout = 5 * time.Second

	fcuClient, err := device.DialTCP(initial.FCU.Host, initial.FCU.Port, 1, dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing FCU bus: %w", err)
	}
	flowClient, err := device.DialTCP(initial.FlowMeter.Host, initial.FlowMeter.Port, initial.FlowMeter.UnitID, dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing flow meter: %w", err)
	}
	pumpClient, err := device.DialTCP(initial.GlycolPump.Host, initial.GlycolPump.Port, initial.GlycolPump.UnitID, dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing glycol pump VFD: %w", err)
	}
	fpgaClient, err := device.DialTCP(initial.FPGA.Host, initial.FPGA.Port, initial.FPGA.UnitID, dialTimeout)
	if err != nil {
		return fmt.Errorf("dialing interlock/valve FPGA: %w", err)
	}

	fcuBus := device.NewFCUBus(fcuClient, initial.FCU)
	flowMeter := device.NewFlowMeter(flowClient)
	pump := device.NewGlycolPump(pumpClient)
	fpga := device.NewFPGA(fpgaClient)
	thermocouple := device.NewGlycolThermocouple(fpga)

	publisher := telemetry.NewPrometheusPublisher(prometheus.DefaultRegisterer)
	publisher.PublishLogLevel(debugLevel)

	interlockData := &interlock.Data{}
	interlockModel := interlock.NewModel(interlock.DefaultSettings(), interlockData, fpga)
	interlockCtx := interlock.NewContext(interlockModel)

	valveCtl := valve.NewFineController(initial.MixingValve, time.Now())
	glycolLoop := control.NewGlycolLoop(initial.Setpoint)
	heaterFanCtl := control.NewHeaterFanControl()

	queue := command.NewQueue()
	loadFn := func(label string) (*settings.Root, error) { return settings.Load(configRoot, label) }
	controller := supervisor.New(fcuBus, pump, interlockCtx, loadFn, publisher)

	glycolTimestep := durationFromSeconds(initial.Setpoint.TimestepSeconds)
	heaterFanTimestep := durationFromSeconds(initial.Heaters.IntervalSeconds)
	scheduler := outerloop.NewScheduler(queue, controller, glycolTimestep, heaterFanTimestep)

	application := app.New(app.Config{
		Queue:              queue,
		Controller:         controller,
		Scheduler:          scheduler,
		Adapter:            nil, // the RPC/event bus surface is external; no concrete transport is wired here
		FCUBus:             fcuBus,
		Pump:               pump,
		FlowMeter:          flowMeter,
		FPGA:               fpga,
		Thermocouple:       thermocouple,
		ValveCtl:           valveCtl,
		GlycolLoop:         glycolLoop,
		HeaterFanCtl:       heaterFanCtl,
		InterlockCtx:       interlockCtx,
		InterlockData:      interlockData,
		Publisher:          publisher,
		NumFCU:             initial.FCU.NumILC,
		SavedSetpointsPath: filepath.Join(configRoot, "SavedSetpoints.yaml"),
		NozzleTablePath:    filepath.Join(configRoot, "AirNozzles.csv"),
	})

	status := webui.New(controller, interlockCtx, interlockData)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", status)

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		log.Printf("serving metrics and status on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Printf("received %s, shutting down", s)
		application.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	application.Run()
	log.Printf("thermalctl exited cleanly")
	return nil
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
