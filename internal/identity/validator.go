package identity

import (
	"fmt"

	"git.home.luguber.info/inful/chronicle/internal/foundation/errors"
)

// DefaultMaxChainDepth bounds causation chain traversal. Chains deeper than
// this almost always indicate a process manager feedback loop rather than
// legitimate workflow depth.
const DefaultMaxChainDepth = 100

var (
	// ErrUnparsableID is returned when a wire id is neither a UUID nor a ContentID.
	ErrUnparsableID = errors.IdentityError("identifier is neither a uuid nor a content id").Build()

	// ErrInvalidIdentity is returned when a triple violates the root or
	// inheritance laws.
	ErrInvalidIdentity = errors.IdentityError("message identity violates correlation laws").Build()

	// ErrCyclicCausation is returned when a causation chain revisits a
	// message id or exceeds the configured depth.
	ErrCyclicCausation = errors.IdentityError("cyclic or excessively deep causation chain").
				WithSeverity(errors.SeverityFatal).Build()
)

// Validator checks identity triples and causation chains.
type Validator struct {
	// MaxChainDepth caps CheckChain traversal; zero means DefaultMaxChainDepth.
	MaxChainDepth int
}

// Validate checks a single identity triple. A triple is valid when it is
// either a proper root (all three ids equal) or a proper derived identity
// (message id distinct from causation id). A message that claims to cause
// itself without being fully self-correlated is rejected.
func (v Validator) Validate(m MessageIdentity) error {
	if m.MessageID.IsZero() || m.CorrelationID.IsZero() || m.CausationID.IsZero() {
		return ErrInvalidIdentity.WithContext("reason", "zero id in triple")
	}
	if m.IsRoot() {
		return nil
	}
	if m.MessageID.Equal(m.CausationID) {
		return ErrInvalidIdentity.WithContext("reason", "non-root message caused by itself").
			WithContext("message_id", m.MessageID.String())
	}
	return nil
}

// CheckChain validates a causation chain ordered root first. It verifies
// every triple individually, that each link inherits the chain's correlation
// id and names its predecessor as causation, that no message id repeats, and
// that the chain does not exceed the depth cap.
func (v Validator) CheckChain(chain []MessageIdentity) error {
	if len(chain) == 0 {
		return nil
	}
	maxDepth := v.MaxChainDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxChainDepth
	}
	if len(chain) > maxDepth {
		return ErrCyclicCausation.WithContext("depth", fmt.Sprintf("%d", len(chain))).
			WithContext("max_depth", fmt.Sprintf("%d", maxDepth))
	}

	root := chain[0]
	if !root.IsRoot() {
		return ErrInvalidIdentity.WithContext("reason", "chain does not start at a root")
	}

	seen := make(map[string]struct{}, len(chain))
	seen[root.MessageID.String()] = struct{}{}

	for i := 1; i < len(chain); i++ {
		m := chain[i]
		if err := v.Validate(m); err != nil {
			return err
		}
		if !m.CorrelationID.Equal(root.CorrelationID) {
			return ErrInvalidIdentity.WithContext("reason", "correlation id not inherited").
				WithContext("position", fmt.Sprintf("%d", i))
		}
		if !m.CausationID.Equal(chain[i-1].MessageID) {
			return ErrInvalidIdentity.WithContext("reason", "causation id does not name predecessor").
				WithContext("position", fmt.Sprintf("%d", i))
		}
		key := m.MessageID.String()
		if _, dup := seen[key]; dup {
			return ErrCyclicCausation.WithContext("message_id", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
