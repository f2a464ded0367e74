package gpubuf

import "errors"

// Staging contract errors. These are panic values (wrapped with context),
// raised when a caller breaks the register/fetch/submit/recall protocol.
// Recover and test them with errors.Is.
var (
	// ErrBeltRegistered is raised when a belt name is registered twice.
	ErrBeltRegistered = errors.New("gpubuf: staging belt already registered")

	// ErrBeltUnknown is raised when fetching a belt that was never registered.
	ErrBeltUnknown = errors.New("gpubuf: staging belt not registered")

	// ErrBeltInUse is raised when a belt is fetched while another Stager
	// holds it, or when the factory is submitted with a Stager still alive.
	ErrBeltInUse = errors.New("gpubuf: staging belt in use")

	// ErrZeroSizeWrite is raised for staging areas of zero bytes.
	ErrZeroSizeWrite = errors.New("gpubuf: zero-size staging write")

	// ErrStagerReleased is raised when a Stager is used after Release.
	ErrStagerReleased = errors.New("gpubuf: stager already released")

	// ErrInvalidChunkSize is raised when a belt is registered with a zero
	// chunk size or one above the factory's maximum chunk size.
	ErrInvalidChunkSize = errors.New("gpubuf: invalid staging chunk size")

	// ErrInvalidAlignment is raised by WithChunkAlignment for alignments
	// that are not a power of two multiple of 4.
	ErrInvalidAlignment = errors.New("gpubuf: invalid staging alignment")
)

// ErrStagingTooLarge is returned for staging areas larger than the
// factory's maximum chunk size.
var ErrStagingTooLarge = errors.New("gpubuf: staging area too large")
