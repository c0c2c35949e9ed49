package convert

// Activation is the mode context: it holds the network currently targeted
// by emission, or nothing when eager mode is active. It is an explicit,
// injectable object rather than process-global state so independent replays
// (and tests) cannot cross-talk; one Activation serves one thread of
// control and provides no internal locking.
type Activation struct {
	stack []Network
}

// NewActivation returns an empty activation (eager mode).
func NewActivation() *Activation {
	return &Activation{}
}

// Current returns the network emission currently targets, or nil when
// eager mode is active. This is the single accessor the dispatch engine
// consults per operation.
func (a *Activation) Current() Network {
	if a == nil || len(a.stack) == 0 {
		return nil
	}
	return a.stack[len(a.stack)-1]
}

// Enter makes net the current network. Activating a network while another
// is already active is a misuse; build nested sub-networks through
// EnterNested, which makes the intent explicit.
func (a *Activation) Enter(net Network) error {
	if net == nil {
		return &ModeContextMisuseError{Reason: "Enter called with nil network"}
	}
	if len(a.stack) > 0 {
		return &ModeContextMisuseError{Reason: "a network is already active; use EnterNested for explicit nesting"}
	}
	a.stack = append(a.stack, net)
	return nil
}

// EnterNested pushes net on top of an already-active network. Exits must
// unwind in FILO order.
func (a *Activation) EnterNested(net Network) error {
	if net == nil {
		return &ModeContextMisuseError{Reason: "EnterNested called with nil network"}
	}
	a.stack = append(a.stack, net)
	return nil
}

// Exit deactivates the current network, restoring the previous one (or
// eager mode). Exiting with no active network is a misuse.
func (a *Activation) Exit() error {
	if len(a.stack) == 0 {
		return &ModeContextMisuseError{Reason: "Exit called with no active network"}
	}
	a.stack = a.stack[:len(a.stack)-1]
	return nil
}

// Use is the scoped form of Enter: it activates net and returns a release
// function that deactivates it. The release function must run on all paths
// (defer it); releasing twice is a misuse.
func (a *Activation) Use(net Network) (func() error, error) {
	if err := a.Enter(net); err != nil {
		return nil, err
	}
	return a.releaseFunc(net), nil
}

// UseNested is the scoped form of EnterNested.
func (a *Activation) UseNested(net Network) (func() error, error) {
	if err := a.EnterNested(net); err != nil {
		return nil, err
	}
	return a.releaseFunc(net), nil
}

func (a *Activation) releaseFunc(net Network) func() error {
	released := false
	return func() error {
		if released {
			return &ModeContextMisuseError{Reason: "release called twice for the same activation"}
		}
		if a.Current() != net {
			return &ModeContextMisuseError{Reason: "release does not match the current activation (unbalanced nesting)"}
		}
		released = true
		return a.Exit()
	}
}
