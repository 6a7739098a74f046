// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package taint implements the taint lattice and the forward propagation engine. Given a function
// with a declared sensitivity contour, it computes a Label for every SSA value by a block-by-block
// fixpoint over the CFG. The lattice has height three (Public < Unknown < Secret) and propagation
// is monotone, so the fixpoint always terminates.
//
// Memory is modeled conservatively. Each statically known location carries its own label, and a
// location's label is joined into every load from it. A store of a secret through a computed
// address, which could alias any known location, lowers the precision of all known locations to at
// most Unknown. Loads through computed addresses are Public only while no secret is known to live
// anywhere; as soon as one does, they cannot be proven distinct from it and become Unknown.
//
// Declassification is honored only at an explicit declassify marker: it downgrades exactly the
// named value to Public and appends an audit record. It emits no finding by itself.
package taint

import "github.com/awslabs/ar-ct-tools/analysis/ir"

// Label is a point in the taint lattice. The order is Public < Unknown < Secret and Join takes the
// maximum: any secret input makes the output secret, and mixing public with unknown yields
// unknown.
type Label uint8

const (
	// Public labels values with no dependence on secret data.
	Public Label = iota
	// Unknown labels values of undetermined provenance.
	Unknown
	// Secret labels values causally dependent on secret data.
	Secret
)

// Join returns the least upper bound of the two labels.
func (l Label) Join(o Label) Label {
	if o > l {
		return o
	}
	return l
}

func (l Label) String() string {
	switch l {
	case Public:
		return "public"
	case Unknown:
		return "unknown"
	case Secret:
		return "secret"
	default:
		return "invalid"
	}
}

// FromSensitivity maps a declared sensitivity to its lattice point.
func FromSensitivity(s ir.Sensitivity) Label {
	switch s {
	case ir.SensSecret:
		return Secret
	case ir.SensUnknown:
		return Unknown
	default:
		return Public
	}
}
