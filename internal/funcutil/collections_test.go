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

package funcutil

import (
	"testing"

	"golang.org/x/exp/slices"
)

func TestMapParallelPreservesOrder(t *testing.T) {
	n := 1000
	in := make([]int, n)
	for i := range in {
		in[i] = i
	}
	double := func(x int) int { return 2 * x }

	for _, routines := range []int{1, 4, 16} {
		got := MapParallel(in, double, routines)
		want := Map(in, double)
		if !slices.Equal(got, want) {
			t.Errorf("MapParallel with %d routines reordered its output", routines)
		}
	}
}

func TestMapParallelEmpty(t *testing.T) {
	got := MapParallel(nil, func(x int) int { return x }, 4)
	if len(got) != 0 {
		t.Errorf("MapParallel(nil) = %v, want empty", got)
	}
}

func TestSetToOrderedSlice(t *testing.T) {
	set := map[int]bool{5: true, 1: true, 3: false, 2: true}
	if got := SetToOrderedSlice(set); !slices.Equal(got, []int{1, 2, 5}) {
		t.Errorf("SetToOrderedSlice = %v, want [1 2 5]", got)
	}
}

func TestContains(t *testing.T) {
	xs := []string{"load", "store", "branch"}
	if !Contains(xs, "store") {
		t.Errorf("Contains should find an element")
	}
	if Contains(xs, "scrub") {
		t.Errorf("Contains should not find a missing element")
	}
}
