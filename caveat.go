package proxion

import (
	"errors"
	"fmt"
)

// Caveat is a named predicate over a [RequestContext]. The id is the
// only part of a caveat that crosses the signing boundary; two caveats
// with equal ids are semantically interchangeable.
type Caveat interface {
	// CaveatID returns the stable identifier the token signature
	// commits to. Constructors derive it deterministically from the
	// caveat's parameters.
	CaveatID() string

	// Evaluate reports whether the request satisfies the caveat. A
	// false result with a nil error is an ordinary predicate failure;
	// a non-nil error means the predicate could not be computed at all.
	Evaluate(ctx *RequestContext) (bool, error)
}

// evaluateCaveat runs a caveat predicate, converting panics into errors
// so a misbehaving predicate can never take down a validation call.
func evaluateCaveat(c Caveat, ctx *RequestContext) (ok bool, err error) {
	if c == nil {
		return false, errors.New("nil caveat")
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("caveat predicate: %v", r)
		}
	}()

	return c.Evaluate(ctx)
}

// Custom wraps a caller-supplied predicate under a caller-chosen id.
// The id is committed to by the signature like any other caveat, but
// custom caveats have no wire form; see [EncodeToken].
type Custom struct {
	ID        string
	Predicate func(*RequestContext) bool
}

func NewCustom(id string, predicate func(*RequestContext) bool) *Custom {
	return &Custom{ID: id, Predicate: predicate}
}

func (c *Custom) CaveatID() string { return c.ID }

func (c *Custom) Evaluate(ctx *RequestContext) (bool, error) {
	if c.Predicate == nil {
		return false, errors.New("custom caveat: nil predicate")
	}
	return c.Predicate(ctx), nil
}
