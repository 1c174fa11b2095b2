// host_test.go: host contract helper tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameEngine(t *testing.T) {
	a := &fakeEngine{name: "A"}
	b := &fakeEngine{name: "A"}

	assert.True(t, SameEngine(a, a))
	assert.False(t, SameEngine(a, b), "equal fields are not identity")
	assert.True(t, SameEngine(nil, nil))
	assert.False(t, SameEngine(a, nil))
	assert.False(t, SameEngine(nil, a))

	wrapped := &wrappedEngine{inner: a}
	twice := &wrappedEngine{inner: wrapped}
	assert.True(t, SameEngine(wrapped, a))
	assert.True(t, SameEngine(a, twice))
	assert.False(t, SameEngine(twice, b))

	empty := &wrappedEngine{}
	assert.True(t, SameEngine(empty, empty), "a wrapper without inner engine is itself")
}

func TestMapBundle(t *testing.T) {
	bundle := MapBundle{AccessKeyKey: "S", LabelKey: "Add as Search Engine..."}

	label, err := bundle.String(LabelKey)
	require.NoError(t, err)
	assert.Equal(t, "Add as Search Engine...", label)

	_, err = bundle.String("missing")
	require.Error(t, err)
	assert.Equal(t, ErrCodeLocaleLookup, string(ErrorCodeOf(err)))

	assert.Equal(t, []string{AccessKeyKey, LabelKey}, bundle.Keys())
}
