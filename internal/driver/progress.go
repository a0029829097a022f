package driver

import "time"

// Stage describes a step of one module's compilation.
type Stage string

const (
	StageAnalyze   Stage = "analyze"
	StageTranslate Stage = "translate"
	StageLower     Stage = "lower"
	StageEmit      Stage = "emit"
	StageArchive   Stage = "archive"
)

// Status captures progress state within a stage.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusWorking Status = "working"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Event reports progress of one module. Phase is set for lowering events.
type Event struct {
	Module  string
	Stage   Stage
	Phase   string
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. CompileAll may call OnEvent from
// several goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

type progress struct {
	sink   ProgressSink
	module string
}

func (p progress) emit(stage Stage, status Status, err error, elapsed time.Duration) {
	if p.sink == nil {
		return
	}
	p.sink.OnEvent(Event{Module: p.module, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

// step reports stage as working and returns the function that closes it.
func (p progress) step(stage Stage) func(error) {
	start := time.Now()
	p.emit(stage, StatusWorking, nil, 0)
	return func(err error) {
		status := StatusDone
		if err != nil {
			status = StatusError
		}
		p.emit(stage, status, err, time.Since(start))
	}
}

func (p progress) phase(name string) {
	if p.sink == nil {
		return
	}
	p.sink.OnEvent(Event{Module: p.module, Stage: StageLower, Phase: name, Status: StatusDone})
}
