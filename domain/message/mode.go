// Package message provides canned responses, composition modes, and the
// composed reply with its turn trace.
package message

// CompositionMode governs how free generation and canned templates combine.
type CompositionMode string

const (
	// ModeFluid allows free generation; canned responses are used
	// opportunistically when their fields are satisfied and a signal
	// phrase plausibly matches.
	ModeFluid CompositionMode = "fluid"

	// ModeComposited generates text that must conform stylistically and
	// structurally to the nearest matching canned response.
	ModeComposited CompositionMode = "composited"

	// ModeStrict permits only verbatim canned-response output. With no
	// signal-matched template the turn reports NoApprovedResponse rather
	// than generating.
	ModeStrict CompositionMode = "strict"
)

// ParseMode converts a string to a CompositionMode. Empty defaults to fluid.
func ParseMode(s string) (CompositionMode, bool) {
	switch s {
	case "", "fluid":
		return ModeFluid, true
	case "composited":
		return ModeComposited, true
	case "strict":
		return ModeStrict, true
	default:
		return ModeFluid, false
	}
}
