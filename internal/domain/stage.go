package domain

// Stage is the position of the pipeline. upload, transcribe, analyze and
// complete are the progress states shown to the user.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageUpload     Stage = "upload"
	StageTranscribe Stage = "transcribe"
	StageAnalyze    Stage = "analyze"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Busy reports whether a pipeline is in flight in this stage.
func (s Stage) Busy() bool {
	switch s {
	case StageUpload, StageTranscribe, StageAnalyze:
		return true
	default:
		return false
	}
}

// CanTransition enforces the forward-only pipeline edges.
func CanTransition(from, to Stage) bool {
	if to == StageError {
		return from.Busy()
	}
	switch from {
	case StageIdle:
		return to == StageUpload
	case StageUpload:
		return to == StageTranscribe
	case StageTranscribe:
		return to == StageAnalyze
	case StageAnalyze:
		return to == StageComplete
	case StageComplete, StageError:
		return to == StageIdle
	default:
		return false
	}
}
