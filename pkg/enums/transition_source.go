package enums

// TransitionSource records which part of the system moved an intent.
type TransitionSource string

const (
	TransitionSourceEngine   TransitionSource = "engine"
	TransitionSourceInitiate TransitionSource = "initiate"
	TransitionSourceCallback TransitionSource = "callback"
	TransitionSourceSweep    TransitionSource = "sweep"
)
