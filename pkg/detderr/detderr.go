// Package detderr defines the error taxonomy used to classify admission
// failures across the pipeline, per the propagation policy of the talker
// admission flow: validation and allocation errors are recovered locally,
// effector errors may quarantine an interface, framing errors only ever
// drop a connection.
package detderr

import "github.com/pkg/errors"

// Kind classifies an error so callers can decide how to surface it without
// string-matching messages.
type Kind int

const (
	// KindValidation covers malformed requests: bad MAC/VID/PCP, offset >=
	// period, oversize frame, txmax/txmin mismatch.
	KindValidation Kind = iota
	// KindUnknownDevice covers an interface with no registered Device Profile.
	KindUnknownDevice
	// KindNoCapacity covers Mapping exhaustion (TC, queue, or priority).
	KindNoCapacity
	// KindScheduleConflict covers Scheduler slot overlap.
	KindScheduleConflict
	// KindEffectorTransient covers an action failure whose undo succeeded.
	KindEffectorTransient
	// KindEffectorFatal covers an action failure whose undo also failed;
	// the owning InterfaceContext must be quarantined.
	KindEffectorFatal
	// KindProtocol covers framing/decoding errors; the connection is
	// dropped without a response.
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnknownDevice:
		return "unknown_device"
	case KindNoCapacity:
		return "no_capacity"
	case KindScheduleConflict:
		return "schedule_conflict"
	case KindEffectorTransient:
		return "effector_transient"
	case KindEffectorFatal:
		return "effector_fatal"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a classified, wrapped error.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

// GetKind returns the classification of the detderr.Error that err wraps
// and true, or a zero Kind and false if err does not wrap one.
func GetKind(err error) (Kind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.kind, true
	}
	return 0, false
}

// New creates a classified error with a message.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies an existing error, preserving it for errors.Unwrap/Is/As.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// Validation, UnknownDevice, NoCapacity, ScheduleConflict, EffectorTransient,
// EffectorFatal and Protocol are convenience constructors mirroring the
// taxonomy in spec.md section 7.

func Validation(msg string) error         { return New(KindValidation, msg) }
func UnknownDevice(msg string) error      { return New(KindUnknownDevice, msg) }
func NoCapacity(msg string) error         { return New(KindNoCapacity, msg) }
func ScheduleConflict(msg string) error   { return New(KindScheduleConflict, msg) }
func EffectorTransient(err error) error   { return Wrap(KindEffectorTransient, err, "effector action failed, rolled back") }
func EffectorFatal(err error) error       { return Wrap(KindEffectorFatal, err, "effector rollback failed, interface quarantined") }
func Protocol(msg string) error           { return New(KindProtocol, msg) }
