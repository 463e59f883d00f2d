// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package policy describes the capability-query interface that an external
// authorization engine offers to policy predicates, together with the
// predicates used by this project. No policy engine is implemented here.
//
// A predicate inspects the evaluation context and calls Grant to allow the
// request. A predicate that returns without granting denies it.
package policy

// Attribute is a multi-valued identity attribute.
type Attribute interface {
	// AsString returns the value at index i, or "" when out of range.
	AsString(i int) string
}

// Attributes looks up identity attributes by name.
type Attributes interface {
	// Value returns the named attribute, or nil when the identity lacks it.
	Value(name string) Attribute
}

// Identity is the subject of an evaluation.
type Identity interface {
	Attributes() Attributes
}

// EvaluationContext exposes the subject of an evaluation.
type EvaluationContext interface {
	Identity() Identity
}

// Evaluation is handed to a predicate by the authorization engine.
type Evaluation interface {
	Context() EvaluationContext
	Grant()
}

// Predicate is an authorization policy.
type Predicate func(Evaluation)

// AttributeEquals grants when the first value of the named identity
// attribute equals want.
func AttributeEquals(name, want string) Predicate {
	return func(e Evaluation) {
		attr := e.Context().Identity().Attributes().Value(name)
		if attr == nil {
			return
		}
		if attr.AsString(0) == want {
			e.Grant()
		}
	}
}

// LocationExternal grants identities whose location attribute is "external".
var LocationExternal = AttributeEquals("location", "external")

// Evaluate runs predicate against ctx and reports whether it granted.
func Evaluate(ctx EvaluationContext, predicate Predicate) bool {
	e := &evaluation{ctx: ctx}
	predicate(e)
	return e.granted
}

type evaluation struct {
	ctx     EvaluationContext
	granted bool
}

func (e *evaluation) Context() EvaluationContext { return e.ctx }

func (e *evaluation) Grant() { e.granted = true }
