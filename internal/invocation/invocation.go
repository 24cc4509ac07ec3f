// invocation.go — I, the immutable invocation descriptor that is the
// sole key of the broker registry. Construction is total but
// validating, per spec.md §4.1: any null-equivalent field yields
// NullArgument, an invalid name yields InvalidName, a negative
// duration or retry_limit yields InvalidArgument.
package invocation

import (
	"time"

	"github.com/heutelbeck/attribute-stream-broker/internal/attrname"
	"github.com/heutelbeck/attribute-stream-broker/internal/attrvalue"
	"github.com/heutelbeck/attribute-stream-broker/internal/errs"
)

// Invocation is an immutable, structurally-hashable request for one
// attribute's value stream.
type Invocation struct {
	name           string
	entity         *attrvalue.Value // nil: absent (environment attribute)
	arguments      []attrvalue.Value
	variables      map[string]attrvalue.Value
	variableOrder  []string // variable keys in sorted order, for the digest
	initialTimeout time.Duration
	pollInterval   time.Duration
	backoff        time.Duration
	retryLimit     int
}

// Params are the fields needed to construct an Invocation. Arguments
// and Variables must be non-nil (possibly empty); passing nil for
// either is treated as a null-equivalent field.
type Params struct {
	Name           string
	Entity         *attrvalue.Value
	Arguments      []attrvalue.Value
	Variables      map[string]attrvalue.Value
	InitialTimeout time.Duration
	PollInterval   time.Duration
	Backoff        time.Duration
	RetryLimit     int
}

// New validates p and constructs an Invocation, or returns a
// NullArgument/InvalidName/InvalidArgument error.
func New(p Params) (*Invocation, error) {
	if p.Name == "" {
		return nil, errs.NullArgument("name")
	}
	if !attrname.Valid(p.Name) {
		return nil, errs.InvalidName(p.Name)
	}
	if p.Arguments == nil {
		return nil, errs.NullArgument("arguments")
	}
	if p.Variables == nil {
		return nil, errs.NullArgument("variables")
	}
	if p.InitialTimeout < 0 {
		return nil, errs.InvalidArgument("initial_timeout", "must not be negative")
	}
	if p.PollInterval < 0 {
		return nil, errs.InvalidArgument("poll_interval", "must not be negative")
	}
	if p.Backoff < 0 {
		return nil, errs.InvalidArgument("backoff", "must not be negative")
	}
	if p.RetryLimit < 0 {
		return nil, errs.InvalidArgument("retry_limit", "must not be negative")
	}

	args := make([]attrvalue.Value, len(p.Arguments))
	copy(args, p.Arguments)

	vars := make(map[string]attrvalue.Value, len(p.Variables))
	order := make([]string, 0, len(p.Variables))
	for k, v := range p.Variables {
		vars[k] = v
		order = append(order, k)
	}
	sortStrings(order)

	var entity *attrvalue.Value
	if p.Entity != nil {
		e := *p.Entity
		entity = &e
	}

	return &Invocation{
		name:           p.Name,
		entity:         entity,
		arguments:      args,
		variables:      vars,
		variableOrder:  order,
		initialTimeout: p.InitialTimeout,
		pollInterval:   p.PollInterval,
		backoff:        p.Backoff,
		retryLimit:     p.RetryLimit,
	}, nil
}

func sortStrings(s []string) {
	// Small insertion sort: variable maps are tiny (policy inputs),
	// and this avoids importing sort for a handful of keys.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Name returns the fully-qualified attribute name.
func (i *Invocation) Name() string { return i.name }

// Entity returns the parent value and whether it is present.
func (i *Invocation) Entity() (attrvalue.Value, bool) {
	if i.entity == nil {
		return attrvalue.Undefined, false
	}
	return *i.entity, true
}

// Arguments returns a copy of the ordered argument sequence.
func (i *Invocation) Arguments() []attrvalue.Value {
	cp := make([]attrvalue.Value, len(i.arguments))
	copy(cp, i.arguments)
	return cp
}

// Variable looks up a named variable.
func (i *Invocation) Variable(name string) (attrvalue.Value, bool) {
	v, ok := i.variables[name]
	return v, ok
}

// InitialTimeout returns the configured initial timeout.
func (i *Invocation) InitialTimeout() time.Duration { return i.initialTimeout }

// PollInterval returns the configured poll interval.
func (i *Invocation) PollInterval() time.Duration { return i.pollInterval }

// Backoff returns the configured backoff.
func (i *Invocation) Backoff() time.Duration { return i.backoff }

// RetryLimit returns the configured retry limit.
func (i *Invocation) RetryLimit() int { return i.retryLimit }

// Equal reports structural equality over every field, per spec.md §3.
func (i *Invocation) Equal(other *Invocation) bool {
	if i == other {
		return true
	}
	if i == nil || other == nil {
		return false
	}
	if i.name != other.name ||
		i.initialTimeout != other.initialTimeout ||
		i.pollInterval != other.pollInterval ||
		i.backoff != other.backoff ||
		i.retryLimit != other.retryLimit {
		return false
	}

	ie, iok := i.Entity()
	oe, ook := other.Entity()
	if iok != ook {
		return false
	}
	if iok && !ie.Equal(oe) {
		return false
	}

	if len(i.arguments) != len(other.arguments) {
		return false
	}
	for idx := range i.arguments {
		if !i.arguments[idx].Equal(other.arguments[idx]) {
			return false
		}
	}

	if len(i.variables) != len(other.variables) {
		return false
	}
	for k, v := range i.variables {
		ov, ok := other.variables[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}

	return true
}
