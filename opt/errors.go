package opt

import "errors"

// Error kinds surfaced by the core. Wrap with fmt.Errorf("%w: ...") and test
// with errors.Is.
var (
	// ErrInvalidNetwork means the network snapshot violates a structural
	// invariant; the scenario fails before the first generation.
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrInvalidParameters means a scenario's parameters failed validation;
	// the scenario is refused at submit time.
	ErrInvalidParameters = errors.New("invalid parameters")
)
