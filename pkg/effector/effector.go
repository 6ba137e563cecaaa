package effector

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/agl-detd/detd-go/pkg/detderr"
)

// Effector applies an ordered list of Actions against a System, rolling
// the whole transaction back if any Action fails partway through.
// Grounded on the teacher's pkg/tc.Actuator.Actuate, which walks a list of
// tc objects and bails out on the first netlink error; Effector generalizes
// the bail-out into an explicit reverse walk over what had already
// succeeded.
type Effector struct {
	sys System
}

// New returns an Effector that renders Actions against sys.
func New(sys System) *Effector {
	return &Effector{sys: sys}
}

// Apply applies actions in order. If one fails, every already-applied
// action is undone in reverse order before Apply returns. A failure while
// applying is reported as effector_transient (spec.md section 7): the
// interface is unchanged and the caller may retry. A failure while
// undoing is more serious — the interface is left in an unknown mix of
// applied and reverted state — and is reported as effector_fatal, per
// spec.md section 4.6's "quarantine" note.
func (e *Effector) Apply(actions []Action) error {
	txn := uuid.New().String()
	applied := make([]Action, 0, len(actions))

	for _, action := range actions {
		klog.V(2).Infof("effector[%s]: applying %s", txn, action)
		if err := action.Apply(e.sys); err != nil {
			klog.Warningf("effector[%s]: %s failed: %v; rolling back %d action(s)", txn, action, err, len(applied))
			if uerr := e.rollback(txn, applied); uerr != nil {
				return detderr.EffectorFatal(errors.Wrapf(uerr,
					"rollback failed after %s errored (%v); system state is unverified (txn %s)", action, err, txn))
			}
			return detderr.EffectorTransient(errors.Wrapf(err, "applying %s (txn %s)", action, txn))
		}
		applied = append(applied, action)
	}

	return nil
}

func (e *Effector) rollback(txn string, applied []Action) error {
	for i := len(applied) - 1; i >= 0; i-- {
		action := applied[i]
		klog.V(2).Infof("effector[%s]: undoing %s", txn, action)
		if err := action.Undo(e.sys); err != nil {
			return errors.Wrapf(err, "undoing %s", action)
		}
	}
	return nil
}
