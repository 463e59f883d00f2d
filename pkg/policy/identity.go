// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package policy

import "github.com/stacklok/thv-auth/pkg/auth/identity"

// ForIdentity exposes the claims of id as an evaluation context.
func ForIdentity(id *identity.Identity) EvaluationContext {
	return identityContext{id: id}
}

type identityContext struct {
	id *identity.Identity
}

func (c identityContext) Identity() Identity { return c }

func (c identityContext) Attributes() Attributes { return c }

func (c identityContext) Value(name string) Attribute {
	values := c.id.ClaimValues(name)
	if values == nil {
		return nil
	}
	return stringValues(values)
}

type stringValues []string

func (v stringValues) AsString(i int) string {
	if i < 0 || i >= len(v) {
		return ""
	}
	return v[i]
}
