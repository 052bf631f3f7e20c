package grn

import "context"

// HookEvent names a point in the draft lifecycle.
type HookEvent string

const (
	AfterCreate HookEvent = "after_create"
	AfterSeal   HookEvent = "after_seal"
	AfterSubmit HookEvent = "after_submit"
)

// Hook observes a committed draft. Hooks get a copy and cannot change stored state.
type Hook func(ctx context.Context, draft *Draft) error

// HookRegistry stores lifecycle hooks for drafts.
type HookRegistry struct {
	hooks map[HookEvent][]Hook
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: make(map[HookEvent][]Hook)}
}

// On registers a hook for the event. Register hooks before serving traffic.
func (r *HookRegistry) On(event HookEvent, hook Hook) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run executes the hooks for the event in registration order, stopping at the first error.
func (r *HookRegistry) Run(ctx context.Context, event HookEvent, draft *Draft) error {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, draft); err != nil {
			return err
		}
	}
	return nil
}
