package chip

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

var (
	// ErrNotStarted is returned by operations issued before Begin.
	ErrNotStarted = errors.New(errors.CodeConflict, "chip: Begin has not been called")

	// ErrOutOfRange is returned for accesses past the chip capacity.
	ErrOutOfRange = errors.New(errors.CodeInvalidInput, "chip: address out of range")

	// ErrTimeout is returned when the chip stays busy past the wait
	// timeout.
	ErrTimeout = errors.New(errors.CodeTimeout, "chip: timed out waiting for ready")
)

// transportError wraps a bus failure with the opcode that was running.
func transportError(err error, op byte) error {
	return errors.WithContext(
		errors.Wrap(err, errors.CodeUnavailable, "chip: spi transfer failed"),
		"opcode", fmt.Sprintf("0x%02X", op),
	)
}
