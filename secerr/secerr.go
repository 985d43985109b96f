// Package secerr carries secsync's stable, language-portable protocol error
// codes. These are wire/log values, not a generic wrap chain: a SECSYNC_ERROR
// code must mean the same thing on every client regardless of implementation
// language, so it is a plain string constant, never derived from Go's error
// text.
package secerr

// Code is a stable SECSYNC_ERROR_* identifier.
type Code string

const (
	// Snapshot verify/decrypt family (101-199). secsync only distinguishes
	// a handful by number; the rest of the 101-199 range is reserved for
	// future snapshot failure modes.
	CodeSnapshotSignatureInvalid Code = "SECSYNC_ERROR_101"
	CodeSnapshotParentProofMismatch Code = "SECSYNC_ERROR_102"
	CodeSnapshotDocIDMismatch Code = "SECSYNC_ERROR_103"
	CodeSnapshotMissedUpdates Code = "SECSYNC_ERROR_104"
	CodeSnapshotDecryptionFailed Code = "SECSYNC_ERROR_105"

	CodeEphemeralDecryptionFailed Code = "SECSYNC_ERROR_21"
	CodeEphemeralNoValidSession   Code = "SECSYNC_ERROR_22"
	CodeEphemeralReplay           Code = "SECSYNC_ERROR_23"
	CodeEphemeralInvalidClient    Code = "SECSYNC_ERROR_24"
	CodeEphemeralUnknownType      Code = "SECSYNC_ERROR_25"
	CodeEphemeralDocIDMismatch    Code = "SECSYNC_ERROR_26"
	CodeEphemeralUnexpected       Code = "SECSYNC_ERROR_36"
	CodeEphemeralSignatureInvalid Code = "SECSYNC_ERROR_38"

	CodeUpdateSignatureOrAEAD    Code = "SECSYNC_ERROR_212"
	CodeUpdateWrongSnapshot      Code = "SECSYNC_ERROR_213"
	CodeUpdateClockOutOfSequence Code = "SECSYNC_ERROR_214"
)

// Error is a secsync protocol error: a stable code plus human context.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

// New builds a protocol error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Is reports whether err is a secsync protocol error carrying code.
func Is(err error, code Code) bool {
	se, ok := err.(*Error)
	return ok && se.Code == code
}
