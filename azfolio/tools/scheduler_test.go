package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Run(t *testing.T) {
	var ran []string
	fail := true

	scheduler := NewScheduler()
	scheduler.Add("first", func(context.Context) error {
		ran = append(ran, "first")
		return nil
	})
	scheduler.Add("second", func(context.Context) error {
		ran = append(ran, "second")
		if fail {
			return errors.New("boom")
		}
		return nil
	})
	scheduler.Add("third", func(context.Context) error {
		ran = append(ran, "third")
		return nil
	})

	err := scheduler.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"first", "second", "third"}, ran)
	assert.Equal(t, []string{"second"}, scheduler.Pending())

	fail = false
	require.NoError(t, scheduler.Run(context.Background()))
	assert.Empty(t, scheduler.Pending())
	assert.Equal(t, []string{"first", "second", "third", "second"}, ran)
}

func TestScheduler_Cancelled(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.Add("job", func(context.Context) error {
		t.Fatal("job must not run")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := scheduler.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"job"}, scheduler.Pending())
}
