package facilitator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SettleEvent is the context handed to settlement lifecycle hooks.
// Result is nil for before-settle hooks and populated afterwards.
type SettleEvent struct {
	Ctx          context.Context
	Payload      PaymentPayloadV2
	Requirements PaymentRequirementsV2
	Result       *SettleResponse
	Timestamp    time.Time
}

// SettleHook observes a settlement lifecycle point. Hooks run synchronously
// in registration order after the settlement response is computed but
// before it is returned; a returned error or panic is logged and never
// affects the settlement result.
type SettleHook func(SettleEvent) error

// Extension is a named handle for attaching settlement hooks, returned by
// Registry.RegisterExtension.
type Extension struct {
	name string

	beforeSettle  []SettleHook
	afterSettle   []SettleHook
	settleFailure []SettleHook
}

func (e *Extension) Name() string { return e.name }

// OnBeforeSettle attaches a hook invoked before the mechanism settles.
func (e *Extension) OnBeforeSettle(hook SettleHook) *Extension {
	e.beforeSettle = append(e.beforeSettle, hook)
	return e
}

// OnAfterSettle attaches a hook invoked after a successful settlement.
func (e *Extension) OnAfterSettle(hook SettleHook) *Extension {
	e.afterSettle = append(e.afterSettle, hook)
	return e
}

// OnSettleFailure attaches a hook invoked when settlement fails.
func (e *Extension) OnSettleFailure(hook SettleHook) *Extension {
	e.settleFailure = append(e.settleFailure, hook)
	return e
}

// fireSettleHooks runs one lifecycle stage across all registered
// extensions. Panics are recovered so a misbehaving hook cannot take down
// the settlement path.
func (r *Registry) fireSettleHooks(log *logrus.Entry, stage string, ev SettleEvent) {
	r.mu.RLock()
	exts := r.extensions
	r.mu.RUnlock()

	for _, ext := range exts {
		var hooks []SettleHook
		switch stage {
		case "beforeSettle":
			hooks = ext.beforeSettle
		case "afterSettle":
			hooks = ext.afterSettle
		case "settleFailure":
			hooks = ext.settleFailure
		}
		for _, hook := range hooks {
			runHook(log.WithFields(logrus.Fields{"extension": ext.name, "stage": stage}), hook, ev)
		}
	}
}

func runHook(log *logrus.Entry, hook SettleHook, ev SettleEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Warn("settlement hook panicked")
		}
	}()
	if err := hook(ev); err != nil {
		log.WithError(err).Warn("settlement hook failed")
	}
}
