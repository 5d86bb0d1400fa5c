package interlock

// Sampler is the minimal interface the evaluator needs from the hardware
// FPGA collaborator: reading the most recent digital-input sample and writing the
// heartbeat register. The real FPGA driver and its register map are out
// of scope; this is the only seam the core depends on.
type Sampler interface {
	LatestDigitalInputs() RawSample
	WriteHeartbeat(bool) error
}

// Model is the pure evaluator: it decodes the raw status
// word into the nine named booleans and drives the heartbeat toggle. It
// never mutates severity fields or transitions state — that is left to
// the state machine in state.go so bypass/Engineering overrides can be
// layered on top without touching this evaluator.
type Model struct {
	settings Settings
	data     *Data
	sampler  Sampler

	heartbeatCounter uint32
}

func NewModel(settings Settings, data *Data, sampler Sampler) *Model {
	return &Model{
		settings:         settings,
		data:             data,
		sampler:          sampler,
		heartbeatCounter: settings.HeartbeatTogglePeriod,
	}
}

// Update reads the latest digital-input sample, decodes the nine named
// signals, and advances the heartbeat toggle counter
func (m *Model) Update() {
	if m.heartbeatCounter == 0 {
		m.heartbeatCounter = m.settings.HeartbeatTogglePeriod
	}
	m.heartbeatCounter--
	if m.heartbeatCounter == 0 {
		m.data.HeartbeatCommand = !m.data.HeartbeatCommand
		if m.sampler != nil {
			_ = m.sampler.WriteHeartbeat(m.data.HeartbeatCommand)
		}
		m.heartbeatCounter = m.settings.HeartbeatTogglePeriod
	}

	var sample RawSample
	if m.sampler != nil {
		sample = m.sampler.LatestDigitalInputs()
	}
	m.data.SampleTimestamp = sample.Timestamp
	m.data.RawSample = sample.Word

	for i := SignalName(0); i < numSignals; i++ {
		m.data.Active[i] = m.settings.Signals[i].Decode.Evaluate(uint64(sample.Word))
	}
}

// Data returns the evaluator's mutable state, for the state machine.
func (m *Model) Data() *Data { return m.data }

// Settings returns the evaluator's configuration, for the state machine.
func (m *Model) Settings() Settings { return m.settings }
