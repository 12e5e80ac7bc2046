// internal/reconcile/reconcile.go

// Package reconcile keeps the URL and the chat context converged. It runs a
// small rule machine: each Tick inspects the navigator's current route and
// the controller's state, fires at most one rule, and applies exactly one
// side effect. Repeated ticks reach a fixed point within one step for any
// consistent input.
package reconcile

import (
	"log/slog"

	"github.com/user/studychat/internal/chat"
	"github.com/user/studychat/internal/route"
	"github.com/user/studychat/internal/types"
)

// Rule identifies which reconciliation rule fired on a Tick.
type Rule int

const (
	// RuleNone: state already converged, nothing fired.
	RuleNone Rule = iota
	// RuleClearOnNavigate: explicit navigation to a bare category path
	// cleared the current session.
	RuleClearOnNavigate
	// RulePublishSession: a freshly-created session id was written into the
	// URL (replace, no history entry).
	RulePublishSession
	// RuleSwitchCategory: the URL named a different category; the context
	// followed it.
	RuleSwitchCategory
	// RuleFollowSession: the URL named a different session in the same
	// category; the context adopted it. Also covers the clear case where
	// the URL went bare while idle.
	RuleFollowSession
	// RuleInitialCategory: no chat route at all; the configured initial
	// category was adopted.
	RuleInitialCategory
)

func (r Rule) String() string {
	switch r {
	case RuleNone:
		return "none"
	case RuleClearOnNavigate:
		return "clear_on_navigate"
	case RulePublishSession:
		return "publish_session"
	case RuleSwitchCategory:
		return "switch_category"
	case RuleFollowSession:
		return "follow_session"
	case RuleInitialCategory:
		return "initial_category"
	}
	return "unknown"
}

// Reconciler drives the rule machine over a navigator/controller pair.
type Reconciler struct {
	nav     route.Navigator
	ctrl    *chat.Controller
	initial types.ChatCategory
	log     *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) { r.log = log }
}

// New creates a Reconciler. initial is the category adopted when the URL
// carries no chat route at all ("" disables that rule).
func New(nav route.Navigator, ctrl *chat.Controller, initial types.ChatCategory, opts ...Option) *Reconciler {
	r := &Reconciler{nav: nav, ctrl: ctrl, initial: initial, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick runs one reconciliation step and reports which rule fired. Rules are
// checked in priority order; the first match wins and applies its single
// side effect.
func (r *Reconciler) Tick() Rule {
	cur := r.nav.Current()
	phase := r.ctrl.Phase()
	category := r.ctrl.Category()
	session := r.ctrl.CurrentSession()

	rule := r.evaluate(cur, phase, category, session)
	if rule != RuleNone {
		r.log.Debug("reconciled",
			"rule", rule,
			"route", cur.Path(),
			"category", category,
			"session", session,
			"phase", phase,
		)
	}
	return rule
}

func (r *Reconciler) evaluate(cur route.Route, phase chat.Phase, category types.ChatCategory, session types.SessionID) Rule {
	// Rule 1: explicit navigation to a bare category path drops the
	// session. Gated on the navigating phase so a URL that is merely
	// lagging behind a fresh session is not mistaken for user intent.
	if phase == chat.PhaseNavigating && cur.Category == category && category != "" && cur.SessionID == "" && session != "" {
		r.ctrl.ClearSession()
		return RuleClearOnNavigate
	}

	// Rule 2: a session the backend just issued gets published to the URL.
	// Replace, not push: the bare path and the id path are the same
	// logical place, so Back must skip over it.
	if phase == chat.PhaseSessionJustCreated && category != "" && session != "" && cur.SessionID == "" {
		r.nav.Replace(route.Route{Category: category, SessionID: session})
		r.ctrl.MarkURLSynced()
		return RulePublishSession
	}

	// Rule 3: the URL is authoritative for the category.
	if !cur.IsZero() && cur.Category != category {
		if err := r.ctrl.SwitchCategory(cur.Category); err != nil {
			r.log.Warn("category switch failed", "category", cur.Category, "error", err)
			return RuleNone
		}
		return RuleSwitchCategory
	}

	// Rule 4: same category, session drift. The URL id wins; a bare URL
	// clears only when idle and no send is streaming (otherwise it is just
	// the URL lagging behind rule 2).
	if !cur.IsZero() && cur.Category == category {
		if cur.SessionID != "" && cur.SessionID != session {
			r.ctrl.AdoptSession(cur.SessionID)
			return RuleFollowSession
		}
		if cur.SessionID == "" && session != "" && phase == chat.PhaseIdle && !r.ctrl.SendInFlight() {
			r.ctrl.ClearSession()
			return RuleFollowSession
		}
	}

	// Rule 5: no chat route yet; bootstrap the configured category.
	if cur.IsZero() && category == "" && r.initial != "" {
		if err := r.ctrl.SwitchCategory(r.initial); err != nil {
			r.log.Warn("initial category invalid", "category", r.initial, "error", err)
			return RuleNone
		}
		return RuleInitialCategory
	}

	return RuleNone
}
