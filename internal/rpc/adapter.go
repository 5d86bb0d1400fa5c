package rpc

import (
	"time"

	"github.com/skytelescope/mirrortherm/internal/command"
)

// Request is one inbound RPC invocation, named command
// surface (including legacy aliases).
type Request struct {
	ID     string
	Name   string
	Params command.Params
}

// Surface is the opaque external RPC transport this adapter polls;
// scopes the transport itself out, so this interface is the
// entire seam the adapter depends on.
type Surface interface {
	PollOnce() ([]Request, error)
	Respond(id string, code Code, subcode int, hasSubcode bool)
}

// aliases maps the legacy command names onto their
// canonical command.Kind.
var aliases = map[string]command.Kind{
	"start":                command.Start,
	"enable":               command.Enable,
	"disable":              command.Disable,
	"standby":              command.Standby,
	"exitControl":          command.ExitControl,
	"setLogLevel":          command.SetLogLevel,
	"setEngineeringMode":   command.SetEngineeringMode,
	"heaterFanDemand":      command.HeaterFanDemand,
	"setMixingValve":       command.SetMixingValve,
	"coolantPumpPower":     command.CoolantPumpPower,
	"coolantPumpStart":     command.CoolantPumpStart,
	"coolantPumpStop":      command.CoolantPumpStop,
	"coolantPumpFrequency": command.CoolantPumpFrequency,
	"coolantPumpReset":     command.CoolantPumpReset,
	"applySetpoint":        command.ApplySetpoint,

	// legacy aliases
	"enterControl":      command.Start,
	"enterEngineering":  command.EnterEngineering,
	"exitEngineering":   command.ExitEngineering,
	"abort":             command.ExitControl,
	"setFanPWM":         command.HeaterFanDemand,
	"setHeaterPWM":      command.HeaterFanDemand,
	"setSimulationMode": command.SetEngineeringMode,
	"setValue":          command.SetMixingValve,
	"setVFD":            command.CoolantPumpFrequency,
}

// ResolveKind maps an RPC command name (including legacy aliases) onto
// its canonical command.Kind
func ResolveKind(name string) (command.Kind, bool) {
	kind, ok := aliases[name]
	return kind, ok
}

// sink adapts one Request's lifecycle to command.Sink, replying to the
// RPC surface via TranslateAck as each ack arrives.
type sink struct {
	surface Surface
	id      string
}

func (s sink) AckInProgress() {
	code, sub, has := TranslateAck(command.Ack{State: command.AckInProgress})
	s.surface.Respond(s.id, code, sub, has)
}

func (s sink) AckComplete() {
	code, sub, has := TranslateAck(command.Ack{State: command.AckComplete})
	s.surface.Respond(s.id, code, sub, has)
}

func (s sink) AckNotPermitted(kind command.RejectKind, msg string) {
	code, sub, has := TranslateAck(command.Ack{State: command.AckNotPermitted, Kind: kind, Msg: msg})
	s.surface.Respond(s.id, code, sub, has)
}

func (s sink) AckFailed(kind command.RejectKind, msg string) {
	code, sub, has := TranslateAck(command.Ack{State: command.AckFailed, Kind: kind, Msg: msg})
	s.surface.Respond(s.id, code, sub, has)
}

// Adapter polls Surface once per iteration (a short sleep between
// passes) and enqueues recognised requests onto queue.
type Adapter struct {
	surface     Surface
	queue       *command.Queue
	pollPeriod  time.Duration
	keepRunning bool
}

func NewAdapter(surface Surface, queue *command.Queue, pollPeriod time.Duration) *Adapter {
	return &Adapter{surface: surface, queue: queue, pollPeriod: pollPeriod, keepRunning: true}
}

// Stop signals Run's loop to exit after its current iteration.
func (a *Adapter) Stop() { a.keepRunning = false }

// Run polls until Stop is called; unrecognised command names are
// rejected immediately with InvalidParameter.
func (a *Adapter) Run() {
	for a.keepRunning {
		requests, err := a.surface.PollOnce()
		if err == nil {
			for _, req := range requests {
				a.dispatch(req)
			}
		}
		time.Sleep(a.pollPeriod)
	}
}

func (a *Adapter) dispatch(req Request) {
	kind, ok := ResolveKind(req.Name)
	snk := sink{surface: a.surface, id: req.ID}
	if !ok {
		snk.AckFailed(command.InvalidParameter, "unknown command name "+req.Name)
		return
	}
	a.queue.Push(command.Command{Kind: kind, Params: req.Params, Sink: snk, Submitted: time.Now()})
}
