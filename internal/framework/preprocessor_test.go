package framework

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStopsOnError(t *testing.T) {
	var trail []string
	boom := errors.New("boom")

	err := NewPreProcessor([]Step{
		{Name: "a", Func: func(context.Context) error { return nil }},
		{Name: "b", Func: func(context.Context) error { return boom }},
		{Name: "c", Func: func(context.Context) error { t.Fatal("c must not run"); return nil }},
	}).OnEnter(func(name string) { trail = append(trail, name) }).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "b failed")
	assert.Equal(t, []string{"a", "b"}, trail)
}

func TestRunErrStopIsSuccess(t *testing.T) {
	ran := 0
	err := NewPreProcessor([]Step{
		{Name: "a", Func: func(context.Context) error { ran++; return ErrStop }},
		{Name: "b", Func: func(context.Context) error { ran++; return nil }},
	}).Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, ran)
}
