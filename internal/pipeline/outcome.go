package pipeline

import "errors"

type Kind string

const (
	KindSuccess           Kind = "success"
	KindProcessFailure    Kind = "process_failure"
	KindValidationFailure Kind = "validation_failure"
	KindTransportFailure  Kind = "transport_failure"
	KindFilesystemFailure Kind = "filesystem_failure"
	// KindAborted covers errors outside the taxonomy, e.g. context cancellation.
	KindAborted Kind = "aborted"
)

// Outcome is the tagged result of a backup or restore pipeline. Exactly the
// fields relevant to Kind are populated.
type Outcome struct {
	Kind Kind

	// ProcessFailure. ExitCode is -1 when the process never started or died from a signal.
	Process    string
	ExitCode   int
	StderrTail string

	// ValidationFailure.
	Reason string

	// TransportFailure, FilesystemFailure, aborted.
	Cause error
}

func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Message renders the outcome as a single log-friendly line.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindSuccess:
		return "success"
	case KindProcessFailure:
		if o.Cause != nil {
			return o.Cause.Error()
		}
		return o.Process + " failed"
	case KindValidationFailure:
		return o.Reason
	default:
		if o.Cause != nil {
			return o.Cause.Error()
		}
		return string(o.Kind)
	}
}

// Classify maps an error returned by the pipeline, validator or transfer
// layers onto an Outcome. A nil error is Success.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Kind: KindSuccess}
	}
	var (
		spawnErr *SpawnError
		exitErr  *ExitError
		valErr   *ValidationError
		trErr    *TransportError
		fsErr    *FilesystemError
	)
	switch {
	case errors.As(err, &spawnErr):
		return Outcome{Kind: KindProcessFailure, Process: spawnErr.Name, ExitCode: -1, Cause: err}
	case errors.As(err, &exitErr):
		return Outcome{Kind: KindProcessFailure, Process: exitErr.Name, ExitCode: exitErr.ExitCode, StderrTail: exitErr.StderrTail, Cause: err}
	case errors.As(err, &valErr):
		return Outcome{Kind: KindValidationFailure, Reason: valErr.Reason, Cause: err}
	case errors.As(err, &trErr):
		return Outcome{Kind: KindTransportFailure, Cause: err}
	case errors.As(err, &fsErr):
		return Outcome{Kind: KindFilesystemFailure, Cause: err}
	default:
		return Outcome{Kind: KindAborted, Cause: err}
	}
}
