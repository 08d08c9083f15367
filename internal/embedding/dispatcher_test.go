package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	dim     int
	failOn  string
	lastErr error
}

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == f.failOn {
		return nil, fmt.Errorf("fake backend: forced failure")
	}
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(len(text)) / float32(i+1)
	}
	return vec, nil
}

func (f *fakeBackend) Dim() int     { return f.dim }
func (f *fakeBackend) Name() string { return "fake" }

func TestDispatcherEmbed(t *testing.T) {
	d, err := NewDispatcher(&fakeBackend{dim: 4}, 2, 8)
	require.NoError(t, err)
	defer d.Close()

	vec, err := d.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestDispatcherEmbedBatch(t *testing.T) {
	d, err := NewDispatcher(&fakeBackend{dim: 3}, 3, 16)
	require.NoError(t, err)
	defer d.Close()

	texts := []string{"a", "bb", "ccc", "dddd"}
	vecs, err := d.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for _, v := range vecs {
		assert.Len(t, v, 3)
	}
}

func TestDispatcherEmbedBatchPropagatesError(t *testing.T) {
	d, err := NewDispatcher(&fakeBackend{dim: 3, failOn: "bad"}, 2, 8)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.EmbedBatch(context.Background(), []string{"ok", "bad"})
	assert.Error(t, err)
}

func TestDispatcherRejectsNilBackend(t *testing.T) {
	_, err := NewDispatcher(nil, 2, 8)
	assert.Error(t, err)
}
