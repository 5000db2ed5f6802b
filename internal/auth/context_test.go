package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Actor{}, ActorFrom(ctx))
	_, ok := UserID(ctx)
	assert.False(t, ok)

	ctx = WithActor(ctx, Actor{UserID: 42, Capability: Editor})
	a := ActorFrom(ctx)
	assert.True(t, a.AtLeast(Editor))
	assert.True(t, a.AtLeast(Author))
	assert.False(t, a.AtLeast(Administrator))

	id, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestParseCapability(t *testing.T) {
	assert.Equal(t, Administrator, ParseCapability("administrator"))
	assert.Equal(t, Subscriber, ParseCapability("subscriber"))
	assert.Equal(t, None, ParseCapability("guest"))
	assert.Equal(t, "editor", Editor.String())
	assert.Equal(t, "unknown", Capability(99).String())
}
