package reload

// State is the phase of the reload cycle. Together with the pending flag it
// is the whole reload status, guarded by one mutex in the Controller.
type State int

const (
	// Idle: the worker runs the current generation and no cycle is in flight.
	Idle State = iota
	// Building: the build command or the load of the next generation is running.
	Building
	// Swapping: the worker is being stopped and restarted on the new generation.
	Swapping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Swapping:
		return "swapping"
	default:
		return "unknown"
	}
}
