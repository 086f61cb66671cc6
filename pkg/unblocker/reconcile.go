package unblocker

import (
	"strings"

	"github.com/rs/zerolog"
)

const (
	MutationAttributes = "attributes"
	MutationChildList  = "childList"
)

// MutationRecord is one entry of a mutation batch.
type MutationRecord struct {
	Type          string
	Target        Element
	AttributeName string
	AddedNodes    []Element
}

// ObserveOptions select what an Observer reports.
type ObserveOptions struct {
	Subtree         bool
	Attributes      bool
	ChildList       bool
	AttributeFilter []string
}

// Observer subscribes to mutation batches under root. The callback runs after
// the mutations have already taken effect.
type Observer interface {
	Observe(root Element, opts ObserveOptions, callback func([]MutationRecord)) error
}

// Reconciler rewrites tracked attributes that were set without going through
// an interceptor.
type Reconciler struct {
	n      *Normalizer
	names  map[string]struct{}
	filter []string
	logger zerolog.Logger
}

func NewReconciler(n *Normalizer, logger zerolog.Logger, names ...string) *Reconciler {
	if len(names) == 0 {
		names = TrackedAttributes
	}
	r := &Reconciler{
		n:      n,
		names:  make(map[string]struct{}, len(names)),
		filter: append([]string(nil), names...),
		logger: logger,
	}
	for _, name := range names {
		r.names[strings.ToLower(name)] = struct{}{}
	}
	return r
}

// Attach registers the reconciler on root. The subscription lives as long as
// the document.
func (r *Reconciler) Attach(obs Observer, root Element) error {
	return obs.Observe(root, ObserveOptions{
		Subtree:         true,
		Attributes:      true,
		ChildList:       true,
		AttributeFilter: r.filter,
	}, func(records []MutationRecord) {
		if n := r.Reconcile(records); n > 0 {
			r.logger.Debug().Int("rewritten", n).Int("records", len(records)).Msg("reconciled mutation batch")
		}
	})
}

// Reconcile processes one mutation batch and returns how many attributes it
// wrote back. Its own writes show up in the next batch as already proxied,
// so a node settles after at most one extra pass.
func (r *Reconciler) Reconcile(records []MutationRecord) int {
	var count int
	for _, rec := range records {
		switch rec.Type {
		case MutationAttributes:
			if rec.Target == nil || !r.tracked(rec.AttributeName) {
				continue
			}
			if r.fixAttribute(rec.Target, rec.AttributeName) {
				count++
			}
		case MutationChildList:
			for _, el := range rec.AddedNodes {
				count += r.Sweep(el)
			}
		}
	}
	return count
}

// Sweep rewrites tracked attributes on el and all of its descendants.
func (r *Reconciler) Sweep(el Element) int {
	if el == nil {
		return 0
	}
	var count int
	for _, name := range r.filter {
		if r.fixAttribute(el, name) {
			count++
		}
	}
	for _, child := range el.Children() {
		count += r.Sweep(child)
	}
	return count
}

func (r *Reconciler) tracked(name string) bool {
	_, ok := r.names[strings.ToLower(name)]
	return ok
}

func (r *Reconciler) fixAttribute(el Element, name string) bool {
	value, ok := el.GetAttribute(name)
	if !ok || value == "" || strings.HasPrefix(value, r.n.cfg.Prefix) {
		return false
	}

	res := r.n.Rewrite(value)
	if !res.Changed() || res.Value == value {
		return false
	}
	if err := el.SetAttribute(name, res.Value); err != nil {
		r.logger.Debug().Err(err).Str("attribute", name).Msg("attribute write-back failed")
		return false
	}
	return true
}
