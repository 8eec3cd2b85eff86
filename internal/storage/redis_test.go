package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a reachable server; set REDIS_URL to run.
func TestRedisAreaPropagatesAcrossHandles(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "marketminds-test-" + uuid.NewString()
	defer client.Del(ctx, prefix+":"+AreaSync)

	writer, err := NewRedisArea(ctx, AreaSync, prefix, client)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := NewRedisArea(ctx, AreaSync, prefix, client)
	require.NoError(t, err)
	defer reader.Close()

	sub := reader.Subscribe()
	defer sub.Close()

	require.NoError(t, writer.Set(ctx, map[string]json.RawMessage{"theme": json.RawMessage(`"blue"`)}))

	cs := receive(t, sub)
	assert.JSONEq(t, `"blue"`, string(cs.Changes["theme"].NewValue))

	items, err := reader.Get(ctx, "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"blue"`, string(items["theme"]))
}

// failPublish rejects PUBLISH commands and lets everything else through
type failPublish struct{}

func (failPublish) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	if cmd.Name() == "publish" {
		return ctx, errors.New("publish rejected")
	}
	return ctx, nil
}

func (failPublish) AfterProcess(ctx context.Context, cmd redis.Cmder) error { return nil }

func (failPublish) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (failPublish) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error { return nil }

func TestRedisAreaStoredWriteSurvivesPublishFailure(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := ConnectRedis(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	prefix := "marketminds-test-" + uuid.NewString()
	defer client.Del(ctx, prefix+":"+AreaSync)

	area, err := NewRedisArea(ctx, AreaSync, prefix, client)
	require.NoError(t, err)
	area.SetLogger(log.New(io.Discard, "", 0))
	defer area.Close()

	sub := area.Subscribe()
	defer sub.Close()

	client.AddHook(failPublish{})

	require.NoError(t, area.Set(ctx, map[string]json.RawMessage{"theme": json.RawMessage(`"dark"`)}))

	cs := receive(t, sub)
	assert.JSONEq(t, `"dark"`, string(cs.Changes["theme"].NewValue))

	items, err := area.Get(ctx, "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(items["theme"]))

	require.NoError(t, area.Remove(ctx, "theme"))
	cs = receive(t, sub)
	assert.True(t, cs.Changes["theme"].Removed())
}
