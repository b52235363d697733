package webservices

import (
	"context"
	"testing"
	"time"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayerSet_get(t *testing.T) {
	_, _, layerSet := newTestLayerSet(t)

	first, err := layerSet.get(context.Background(), "points")
	require.NoError(t, err)
	assert.Equal(t, "Points", first.catalogLayer.Label)

	second, err := layerSet.get(context.Background(), "points")
	require.NoError(t, err)
	assert.True(t, first == second, "the layer should only be opened once")

	_, err = layerSet.get(context.Background(), "rivers")
	assert.Equal(t, ErrLayerNotFound, errorsx.Cause(err))

	_, err = layerSet.get(context.Background(), "broken")
	require.Error(t, err)
	assert.Nil(t, layerSet.entry("broken").opened)
}

func TestLayerSet_get_otherLayerOpening(t *testing.T) {
	_, _, layerSet := newTestLayerSet(t)

	// holds the lock an open of "area" would hold
	opening := layerSet.entry("area")
	opening.mu.Lock()
	defer opening.mu.Unlock()

	done := make(chan errorsx.Error, 1)
	go func() {
		_, err := layerSet.get(context.Background(), "points")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("opening a layer waited for another layer to open")
	}
}
