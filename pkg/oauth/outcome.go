package oauth

// Action tells the calling layer whether request handling may proceed.
type Action int

const (
	// Continue means the request may be handled normally.
	Continue Action = iota

	// Redirect means the caller must send a redirect to Location and stop
	// handling the request.
	Redirect
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Outcome is returned by operations that may end request processing.
type Outcome struct {
	Action   Action
	Location string
}

// Redirected reports whether the caller must stop and redirect.
func (o Outcome) Redirected() bool {
	return o.Action == Redirect
}

func continueOutcome() Outcome {
	return Outcome{Action: Continue}
}

func redirectTo(location string) Outcome {
	return Outcome{Action: Redirect, Location: location}
}
