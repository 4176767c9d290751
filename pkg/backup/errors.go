package backup

import "errors"

var (
	// ErrInvalidMagic indicates the file does not start with the
	// container magic number.
	ErrInvalidMagic = errors.New("backup: magic number mismatch")

	// ErrUnsupportedVersion indicates the container format version is
	// not supported by this build.
	ErrUnsupportedVersion = errors.New("backup: unsupported format version")

	// ErrCorrupt indicates the container is truncated or structurally
	// damaged.
	ErrCorrupt = errors.New("backup: container truncated or corrupt")

	// ErrIntegrityFailed indicates the HMAC over the container did not
	// verify: either the passphrase is wrong or the file was tampered with.
	ErrIntegrityFailed = errors.New("backup: integrity check failed (wrong passphrase or tampered file)")

	// ErrEmptyPassphrase indicates an empty backup passphrase.
	ErrEmptyPassphrase = errors.New("backup: passphrase cannot be empty")
)
