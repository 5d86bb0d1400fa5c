// Package app wires every collaborator into the supervisory concurrency
// model: the controller thread that drains the command queue (and, for
// the Update command, performs the periodic device-I/O body), the
// outer-loop scheduler thread, the external-command adapter thread, and
// the per-device polling threads.
package app

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skytelescope/mirrortherm/internal/command"
	"github.com/skytelescope/mirrortherm/internal/control"
	"github.com/skytelescope/mirrortherm/internal/device"
	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/outerloop"
	"github.com/skytelescope/mirrortherm/internal/rpc"
	"github.com/skytelescope/mirrortherm/internal/safety"
	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
	"github.com/skytelescope/mirrortherm/internal/telemetry"
	"github.com/skytelescope/mirrortherm/internal/valve"
)

// Application owns every long-lived goroutine and the collaborators the
// Update command's device-I/O body needs, none of which
// internal/supervisor is allowed to reach directly.
type Application struct {
	queue      *command.Queue
	controller *supervisor.Controller
	scheduler  *outerloop.Scheduler
	adapter    *rpc.Adapter

	fcuBus       *device.FCUBus
	pump         *device.GlycolPump
	flowMeter    *device.FlowMeter
	fpga         *device.FPGA
	thermocouple *device.GlycolThermocouple

	valveCtl     valveFineController
	glycolLoop   *control.GlycolLoop
	heaterFanCtl *control.HeaterFanControl

	interlockCtx  *interlock.Context
	interlockData *interlock.Data

	publisher          telemetry.Publisher
	savedSetpointsPath string
	nozzleTablePath    string

	mu                     sync.Mutex
	appliedGlycolSetpoint  float64
	appliedHeatersSetpoint float64
	heaterPWMPercent       []float64
	lastAbsoluteTemp       []float64
	lastEnabledMask        uint64
	numFCU                 int

	// Per-device last-sample buffers for the independent poll threads
	// (spec's Thread (4)): each guarded by its own mutex rather than mu,
	// since flow meter, pump VFD, and thermocouple poll on their own
	// cadence, independent of the controller/outer-loop threads.
	flowMu   sync.Mutex
	lastFlow telemetry.FlowMeterSample

	pumpMu   sync.Mutex
	lastPump telemetry.GlycolPumpSample

	thermoMu         sync.Mutex
	lastThermoFrame  device.ThermocoupleFrame
	lastThermoSample bool

	running int32
	wg      sync.WaitGroup
}

// valveFineController is the subset of valve.FineController Application
// calls, narrowed so tests can substitute a fake.
type valveFineController interface {
	SetTarget(demand float64, now time.Time)
	GetTarget(valvePosition float64, now time.Time) (target float64, ok bool, fault *safety.Fault)
	Mode() valve.Mode
}

// Config bundles every collaborator Application needs. Fields left nil
// (adapter, flow meter, pump, thermocouple) are treated as optional: Run
// does not start their thread.
type Config struct {
	Queue        *command.Queue
	Controller   *supervisor.Controller
	Scheduler    *outerloop.Scheduler
	Adapter      *rpc.Adapter
	FCUBus       *device.FCUBus
	Pump         *device.GlycolPump
	FlowMeter    *device.FlowMeter
	FPGA         *device.FPGA
	Thermocouple *device.GlycolThermocouple
	ValveCtl     valveFineController
	GlycolLoop   *control.GlycolLoop
	HeaterFanCtl *control.HeaterFanControl
	InterlockCtx       *interlock.Context
	InterlockData      *interlock.Data
	Publisher          telemetry.Publisher
	NumFCU             int
	SavedSetpointsPath string
	NozzleTablePath    string
}

func New(cfg Config) *Application {
	return &Application{
		queue:            cfg.Queue,
		controller:       cfg.Controller,
		scheduler:        cfg.Scheduler,
		adapter:          cfg.Adapter,
		fcuBus:           cfg.FCUBus,
		pump:             cfg.Pump,
		flowMeter:        cfg.FlowMeter,
		fpga:             cfg.FPGA,
		thermocouple:     cfg.Thermocouple,
		valveCtl:         cfg.ValveCtl,
		glycolLoop:       cfg.GlycolLoop,
		heaterFanCtl:     cfg.HeaterFanCtl,
		interlockCtx:       cfg.InterlockCtx,
		interlockData:      cfg.InterlockData,
		publisher:          cfg.Publisher,
		savedSetpointsPath: cfg.SavedSetpointsPath,
		nozzleTablePath:    cfg.NozzleTablePath,
		heaterPWMPercent:   make([]float64, cfg.NumFCU),
		lastAbsoluteTemp:   make([]float64, cfg.NumFCU),
		numFCU:             cfg.NumFCU,
		running:            1,
	}
}

func (a *Application) isRunning() bool { return atomic.LoadInt32(&a.running) != 0 }

// Stop flips the running flag every thread observes between iterations.
func (a *Application) Stop() { atomic.StoreInt32(&a.running, 0) }

// Run starts every long-lived thread and blocks until Stop is called and
// all threads have joined. Per spec's Thread (4), flow meter, pump VFD,
// and glycol thermocouple each get their own ~0.5Hz poll thread,
// independent of the controller and outer-loop threads; a device left
// unconfigured in Config just doesn't get a thread.
func (a *Application) Run() {
	a.wg.Add(2)
	go a.controllerLoop()
	go a.outerLoopThread()

	if a.flowMeter != nil {
		a.wg.Add(1)
		go a.devicePollThread("flow meter", 2*time.Second, a.pollFlowMeter)
	}
	if a.pump != nil {
		a.wg.Add(1)
		go a.devicePollThread("pump vfd", 2*time.Second, a.pollPump)
	}
	if a.thermocouple != nil {
		a.wg.Add(1)
		go a.devicePollThread("glycol thermocouple", 2*time.Second, a.pollThermocouple)
	}
	if a.adapter != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.adapter.Run()
		}()
	}
	a.wg.Wait()
}

// controllerLoop is the sole mutator thread: it dequeues
// one command at a time (1ms poll when empty), intercepts Update and
// ApplySetpoint to run their Application-level side effects, and routes
// everything else straight to the supervisor.
func (a *Application) controllerLoop() {
	defer a.wg.Done()
	for a.isRunning() {
		cmd, ok := a.queue.Pop()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		a.execute(cmd)
	}
	for _, cmd := range a.queue.Drain() {
		cmd.Sink.AckFailed(command.ExecutionBlocked, "execution aborted")
	}
}

func (a *Application) execute(cmd command.Command) {
	switch cmd.Kind {
	case command.Update:
		a.executeUpdate(cmd)
	case command.Start:
		a.controller.Dispatch(a.wrapStart(cmd))
	case command.ApplySetpoint:
		a.controller.Dispatch(a.wrapApplySetpoint(cmd))
	case command.HeaterFanDemand:
		a.controller.Dispatch(a.wrapHeaterFanDemand(cmd))
	case command.SetMixingValve, command.CoolantPumpPower, command.CoolantPumpStart,
		command.CoolantPumpStop, command.CoolantPumpFrequency, command.CoolantPumpReset:
		a.controller.Dispatch(a.wrapEngineeringDevice(cmd))
	default:
		a.controller.Dispatch(cmd)
	}
}

// wrapEngineeringDevice performs the actual manual-actuator device I/O
// for the engineering-only commands once the supervisor's own state
// gate (dispatchEngineeringOnly) has accepted the command; the
// supervisor itself never reaches into internal/device.
func (a *Application) wrapEngineeringDevice(cmd command.Command) command.Command {
	cmd.Sink = engineeringDeviceSink{inner: cmd.Sink, app: a, cmd: cmd}
	return cmd
}

type engineeringDeviceSink struct {
	inner command.Sink
	app   *Application
	cmd   command.Command
}

func (s engineeringDeviceSink) AckInProgress() { s.inner.AckInProgress() }
func (s engineeringDeviceSink) AckComplete() {
	if err := s.app.applyEngineeringDevice(s.cmd); err != nil {
		log.Printf("%s: %v", s.cmd.Kind, err)
	}
	s.inner.AckComplete()
}
func (s engineeringDeviceSink) AckNotPermitted(kind command.RejectKind, msg string) {
	s.inner.AckNotPermitted(kind, msg)
}
func (s engineeringDeviceSink) AckFailed(kind command.RejectKind, msg string) {
	s.inner.AckFailed(kind, msg)
}

// applyEngineeringDevice performs one manual-actuator command's device
// write, once the supervisor has already confirmed it is legal.
func (a *Application) applyEngineeringDevice(cmd command.Command) error {
	if cmd.Kind != command.SetMixingValve && a.pump == nil {
		return fmt.Errorf("no glycol pump VFD configured")
	}
	switch cmd.Kind {
	case command.SetMixingValve:
		a.valveCtl.SetTarget(cmd.Params.MixingValveTarget, time.Now())
		return nil
	case command.CoolantPumpPower:
		return a.pump.SetPower(cmd.Params.PumpPower)
	case command.CoolantPumpStart:
		return a.pump.Start()
	case command.CoolantPumpStop:
		return a.pump.Stop()
	case command.CoolantPumpFrequency:
		return a.pump.Frequency(cmd.Params.PumpFrequencyHz)
	case command.CoolantPumpReset:
		return a.pump.Reset()
	default:
		return fmt.Errorf("unhandled engineering device command %s", cmd.Kind)
	}
}

// wrapStart loads the nozzle table and restores any saved setpoints
// once the supervisor's own Start side effects (interlock start, pump
// power, FCU mode broadcast) have completed.
func (a *Application) wrapStart(cmd command.Command) command.Command {
	cmd.Sink = startSink{inner: cmd.Sink, app: a}
	return cmd
}

type startSink struct {
	inner command.Sink
	app   *Application
}

func (s startSink) AckInProgress() { s.inner.AckInProgress() }
func (s startSink) AckComplete() {
	s.app.publishNozzleTable()
	s.app.restoreSavedSetpoints()
	s.inner.AckComplete()
}
func (s startSink) AckNotPermitted(kind command.RejectKind, msg string) {
	s.inner.AckNotPermitted(kind, msg)
}
func (s startSink) AckFailed(kind command.RejectKind, msg string) { s.inner.AckFailed(kind, msg) }

// publishNozzleTable loads the informational air-nozzle CSV, if
// configured, and publishes its type tally once. Parse failures are
// logged and otherwise ignored: no live control depends on this table.
func (a *Application) publishNozzleTable() {
	if a.nozzleTablePath == "" {
		return
	}
	table, err := settings.LoadNozzleTable(a.nozzleTablePath)
	if err != nil {
		log.Printf("start: loading nozzle table: %v", err)
		return
	}
	installed, blocked, offset, covered, superShort := table.Counts()
	a.publisher.PublishAirNozzles(installed, blocked, offset, covered, superShort)
}

// restoreSavedSetpoints loads the persisted glycol/heaters setpoint
// snapshot, if configured and not older than the loaded settings'
// SavedSetpointsMaxAge, and applies it as the Application-level
// setpoint baseline without requiring a fresh applySetpoint command.
func (a *Application) restoreSavedSetpoints() {
	if a.savedSetpointsPath == "" {
		return
	}
	root := a.controller.Settings()
	if root == nil {
		return
	}
	maxAge := time.Duration(root.Setpoint.SavedSetpointsMaxAge) * time.Second
	saved := settings.LoadSavedSetpoints(a.savedSetpointsPath, maxAge, time.Now())
	if !saved.IsValid() {
		return
	}
	a.mu.Lock()
	a.appliedGlycolSetpoint = saved.Glycol
	a.appliedHeatersSetpoint = saved.Heaters
	a.mu.Unlock()
	a.publisher.PublishAppliedSetpoint(saved.Glycol, saved.Heaters)
}

// persistSetpoints writes the applied setpoint back to disk so it
// survives a restart, if a saved-setpoints path is configured.
func (a *Application) persistSetpoints(glycol, heaters float64) {
	if a.savedSetpointsPath == "" {
		return
	}
	if err := settings.SaveSetpoints(a.savedSetpointsPath, glycol, heaters, time.Now()); err != nil {
		log.Printf("applySetpoint: persisting setpoints: %v", err)
	}
}

// wrapApplySetpoint records the applied setpoints only once the
// supervisor's own state gating accepts the command.
func (a *Application) wrapApplySetpoint(cmd command.Command) command.Command {
	cmd.Sink = applySetpointSink{inner: cmd.Sink, app: a, glycol: cmd.Params.SetpointGlycol, heaters: cmd.Params.SetpointHeaters}
	return cmd
}

type applySetpointSink struct {
	inner           command.Sink
	app             *Application
	glycol, heaters float64
}

func (s applySetpointSink) AckInProgress() { s.inner.AckInProgress() }
func (s applySetpointSink) AckComplete() {
	s.app.mu.Lock()
	s.app.appliedGlycolSetpoint = s.glycol
	s.app.appliedHeatersSetpoint = s.heaters
	s.app.mu.Unlock()
	s.app.persistSetpoints(s.glycol, s.heaters)
	s.inner.AckComplete()
}
func (s applySetpointSink) AckNotPermitted(kind command.RejectKind, msg string) {
	s.inner.AckNotPermitted(kind, msg)
}
func (s applySetpointSink) AckFailed(kind command.RejectKind, msg string) { s.inner.AckFailed(kind, msg) }

// wrapHeaterFanDemand applies the operator-commanded heater PWM/fan RPM
// directly to the FCU bus once the supervisor accepts the command
// (Engineering-only), overriding the automatic heater/fan control task.
func (a *Application) wrapHeaterFanDemand(cmd command.Command) command.Command {
	cmd.Sink = heaterFanDemandSink{inner: cmd.Sink, app: a, pwm: cmd.Params.HeaterPWM, rpm: cmd.Params.FanRPM}
	return cmd
}

type heaterFanDemandSink struct {
	inner    command.Sink
	app      *Application
	pwm, rpm []float64
}

func (s heaterFanDemandSink) AckInProgress() { s.inner.AckInProgress() }
func (s heaterFanDemandSink) AckComplete() {
	s.app.applyManualHeaterFanDemand(s.pwm, s.rpm)
	s.inner.AckComplete()
}
func (s heaterFanDemandSink) AckNotPermitted(kind command.RejectKind, msg string) {
	s.inner.AckNotPermitted(kind, msg)
}
func (s heaterFanDemandSink) AckFailed(kind command.RejectKind, msg string) {
	s.inner.AckFailed(kind, msg)
}

func (a *Application) applyManualHeaterFanDemand(pwm, rpm []float64) {
	a.mu.Lock()
	n := len(a.heaterPWMPercent)
	heaterRaw := make([]int, n)
	fanRaw := make([]int, n)
	for i := 0; i < n; i++ {
		if i < len(pwm) {
			a.heaterPWMPercent[i] = pwm[i]
		}
		heaterRaw[i] = clampByte(int(math.Round(255 * a.heaterPWMPercent[i] / 100.0)))
		if i < len(rpm) {
			fanRaw[i] = clampByte(int(math.Round(rpm[i])))
		}
	}
	a.mu.Unlock()
	if err := a.fcuBus.ApplyHeaterFanTargets(heaterRaw, fanRaw); err != nil {
		log.Printf("heaterFanDemand: %v", err)
		return
	}
	a.publisher.PublishFCUTargets(toFloat64(heaterRaw), toFloat64(fanRaw))
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func toFloat64(vs []int) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}

// tryStep runs one Update sub-step, logging and swallowing its error:
// device I/O errors are non-fatal, so one failing step never blocks the
// rest of the Update command.
func (a *Application) tryStep(name string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("update: %s: %v", name, err)
	}
}

// executeUpdate performs the Update command's device-I/O body.
func (a *Application) executeUpdate(cmd command.Command) {
	cmd.Sink.AckInProgress()
	state := a.controller.State()
	active := state == supervisor.Enabled || state == supervisor.Engineering

	a.tryStep("fcu poll", func() error {
		data := a.fcuBus.Poll(active)
		a.mu.Lock()
		copy(a.lastAbsoluteTemp, data.Absolute)
		a.mu.Unlock()
		a.publisher.PublishThermalData(data)
		return nil
	})

	a.tryStep("mixing valve fine control", func() error {
		position, err := a.fpga.MixingValvePosition()
		if err != nil {
			return err
		}
		settings := a.controller.Settings()
		percent := settings.MixingValve.PositionToPercents(position)
		target, ok, fault := a.valveCtl.GetTarget(percent, time.Now())
		if fault != nil {
			a.controller.Escalate(fault)
			if err := a.fpga.Panic(); err != nil {
				log.Printf("mixing valve panic: %v", err)
			}
			return fault
		}
		if ok {
			commanded := settings.MixingValve.PercentsToCommanded(target)
			if err := a.fpga.SetMixingValvePosition(commanded); err != nil {
				return err
			}
		}
		a.publisher.PublishMixingValve(telemetry.MixingValveSample{
			Mode:               a.valveCtl.Mode().String(),
			CurrentPercent:     percent,
			CompensatedPercent: target,
		})
		return nil
	})

	a.tryStep("enabled ILC publish", func() error {
		mask := a.fcuBus.EnabledMask()
		a.mu.Lock()
		changed := mask != a.lastEnabledMask
		a.lastEnabledMask = mask
		a.mu.Unlock()
		if changed {
			a.publisher.PublishEnabledILC(mask)
		}
		return nil
	})

	a.tryStep("heartbeat toggle", func() error {
		result := a.interlockCtx.Update()
		if result.Kind == interlock.ResultFault {
			log.Printf("interlock: %s", result.Description)
		}
		a.publisher.PublishHeartbeat(a.interlockData.HeartbeatCommand)
		return nil
	})

	cmd.Sink.AckComplete()
}

// outerLoopThread wakes every 500ms and acts on the scheduler's
// decisions. The glycol and heater/fan control tasks are not Commands
// (they run on their own, slower cadence outside the command queue);
// this goroutine executes them directly when due, rather than routing
// them through the single-consumer command queue.
func (a *Application) outerLoopThread() {
	defer a.wg.Done()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for a.isRunning() {
		now := <-ticker.C
		result := a.scheduler.Tick(now)
		if result.GlycolDue {
			a.runGlycolTask(now)
		}
		if result.HeaterFanDue {
			a.runHeaterFanTask()
		}
	}
}

// runGlycolTask steps the glycol control loop off the thermocouple poll
// thread's last-sample buffer, rather than re-reading the FPGA itself:
// the thermocouple has its own independent poll thread (pollThermocouple),
// so a second concurrent Read here would race it on the same device.
func (a *Application) runGlycolTask(now time.Time) {
	a.mu.Lock()
	setpoint := a.appliedGlycolSetpoint
	a.mu.Unlock()

	a.thermoMu.Lock()
	frame := a.lastThermoFrame
	haveSample := a.lastThermoSample
	a.thermoMu.Unlock()
	if !haveSample {
		return
	}
	avg, ok := frame.MirrorLoopAverage()
	if !ok {
		return
	}
	percent, ok := a.glycolLoop.Step(avg, setpoint)
	if !ok {
		return
	}
	a.valveCtl.SetTarget(percent, now)
}

func (a *Application) runHeaterFanTask() {
	a.mu.Lock()
	absoluteTemp := append([]float64(nil), a.lastAbsoluteTemp...)
	heaterPWM := append([]float64(nil), a.heaterPWMPercent...)
	heatersSetpoint := a.appliedHeatersSetpoint
	a.mu.Unlock()

	heaterRaw, fanRaw := a.heaterFanCtl.Step(heaterPWM, absoluteTemp, heatersSetpoint)
	if err := a.fcuBus.ApplyHeaterFanTargets(heaterRaw, fanRaw); err != nil {
		log.Printf("heater/fan control task: %v", err)
		return
	}
	a.publisher.PublishFCUTargets(toFloat64(heaterRaw), toFloat64(fanRaw))
}

// pollFlowMeter reads the flow meter, updates its per-device last-sample
// buffer, and publishes directly, on its own thread independent of the
// controller and outer-loop cadences.
func (a *Application) pollFlowMeter() {
	sample, err := a.flowMeter.Read()
	if err != nil {
		log.Printf("flow meter poll: %v", err)
		return
	}
	out := telemetry.FlowMeterSample{
		FlowRate:    float64(sample.FlowRate),
		Temperature: float64(sample.SignalStrength),
	}
	a.flowMu.Lock()
	a.lastFlow = out
	a.flowMu.Unlock()
	a.publisher.PublishFlowMeter(out)
}

// pollPump reads the glycol pump VFD, updates its per-device last-sample
// buffer, publishes directly, and on a motor-overload status bit
// escalates and drives the mixing valve closed, on its own thread
// independent of the controller and outer-loop cadences.
func (a *Application) pollPump() {
	sample, err := a.pump.Read()
	if err != nil {
		log.Printf("pump vfd poll: %v", err)
		return
	}
	out := telemetry.GlycolPumpSample{
		RunningFrequencyHz: sample.RunningFrequencyHz,
		Status2:            uint32(sample.Status2),
		Fault:              sample.Status2.MotorOverload(),
	}
	a.pumpMu.Lock()
	a.lastPump = out
	a.pumpMu.Unlock()
	a.publisher.PublishGlycolPump(out)
	if sample.Status2.MotorOverload() {
		a.controller.Escalate(safety.New(safety.EGWPump, "glycol pump VFD reports motor overload (status2=0x%04x)", uint16(sample.Status2)))
		if a.fpga != nil {
			if err := a.fpga.Panic(); err != nil {
				log.Printf("glycol pump fault panic: %v", err)
			}
		}
	}
}

// pollThermocouple reads the glycol thermocouple frame, updates its
// per-device last-sample buffer (runGlycolTask's only source for it),
// and publishes the mirror-loop average directly, on its own thread
// independent of the controller and outer-loop cadences.
func (a *Application) pollThermocouple() {
	frame, err := a.thermocouple.Read()
	if err != nil {
		log.Printf("glycol thermocouple poll: %v", err)
		return
	}
	a.thermoMu.Lock()
	a.lastThermoFrame = frame
	a.lastThermoSample = true
	a.thermoMu.Unlock()

	avg, ok := frame.MirrorLoopAverage()
	if !ok {
		return
	}
	a.mu.Lock()
	setpoint := a.appliedGlycolSetpoint
	a.mu.Unlock()
	a.publisher.PublishGlycolLoopTemperature(setpoint, avg)
}

// devicePollThread runs fn on a fixed period until Stop, one goroutine
// per independently-polled device.
func (a *Application) devicePollThread(name string, period time.Duration, fn func()) {
	defer a.wg.Done()
	log.Printf("%s: poll thread started (period %s)", name, period)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for a.isRunning() {
		<-ticker.C
		fn()
	}
}
