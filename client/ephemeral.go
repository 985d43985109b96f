package client

import "github.com/secsync/secsync/ephemeral"

// EphemeralSessionHolder lazily creates the per-connection ephemeral
// session, since session creation needs randomness and Context.reset must
// stay infallible.
type EphemeralSessionHolder struct {
	session *ephemeral.Session
}

func newEphemeralSessionHolder() *EphemeralSessionHolder {
	return &EphemeralSessionHolder{}
}

// Get returns the session, creating it on first use.
func (h *EphemeralSessionHolder) Get() (*ephemeral.Session, error) {
	if h.session == nil {
		s, err := ephemeral.New()
		if err != nil {
			return nil, err
		}
		h.session = s
	}
	return h.session, nil
}
