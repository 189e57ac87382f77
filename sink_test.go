// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForEachDeliversEveryItemThenCompletes(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("for-each")

	var got []int64
	completed := false

	ForEach(Range(c, 1, 40), func(v int64) { got = append(got, v) }, nil, func() { completed = true })
	drainAll(c)

	assert.Len(t, got, 40)
	assert.Equal(t, int64(1), got[0])
	assert.Equal(t, int64(40), got[39])
	assert.True(t, completed)
}

func TestForEachForwardsError(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator("for-each-error")
	boom := errors.New("boom")

	var got error
	ForEach(Fail[int](c, boom), func(int) {}, func(err error) { got = err }, nil)
	drainAll(c)

	assert.ErrorIs(t, got, boom)
}
