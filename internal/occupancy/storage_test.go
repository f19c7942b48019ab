package occupancy

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoskela/presence-platform/pkg/redis"
)

// fakeRedis is an in-memory stand-in for the Redis client interface.
type fakeRedis struct {
	values map[string]string
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.values[key] = fmt.Sprintf("%v", value)
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, redis.ErrNotFound)
	}
	return v, nil
}

func (f *fakeRedis) HSet(_ context.Context, key, field string, value interface{}) error {
	if f.hashes[key] == nil {
		f.hashes[key] = make(map[string]string)
	}
	f.hashes[key][field] = fmt.Sprintf("%v", value)
	return nil
}

func (f *fakeRedis) HGet(_ context.Context, key, field string) (string, error) {
	v, ok := f.hashes[key][field]
	if !ok {
		return "", fmt.Errorf("hash %s field %s: %w", key, field, redis.ErrNotFound)
	}
	return v, nil
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	return f.hashes[key], nil
}

func (f *fakeRedis) ZAdd(context.Context, string, float64, interface{}) error { return nil }
func (f *fakeRedis) ZRemRangeByScore(context.Context, string, string, string) error {
	return nil
}
func (f *fakeRedis) ZCard(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeRedis) ZRangeByScoreWithScores(context.Context, string, float64, float64) ([]redis.ZMember, error) {
	return nil, nil
}
func (f *fakeRedis) Expire(context.Context, string, time.Duration) error { return nil }
func (f *fakeRedis) Ping(context.Context) error                          { return nil }
func (f *fakeRedis) Close() error                                        { return nil }

func TestStorageSnapshotRoundTrip(t *testing.T) {
	storage := NewStorage(newFakeRedis(), slog.Default())
	ctx := context.Background()

	missing, err := storage.GetSnapshot(ctx, "living_room")
	require.NoError(t, err)
	assert.Nil(t, missing)

	snapshot := AreaSnapshot{
		AreaID:      "living_room",
		Probability: 0.73,
		Occupied:    true,
		Threshold:   50,
		EvaluatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Sensors:     2,
		Decaying:    1,
	}
	require.NoError(t, storage.StoreSnapshot(ctx, snapshot))

	got, err := storage.GetSnapshot(ctx, "living_room")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, snapshot, *got)
}

func TestStorageThreshold(t *testing.T) {
	storage := NewStorage(newFakeRedis(), slog.Default())
	ctx := context.Background()

	_, ok, err := storage.GetThreshold(ctx, "living_room")
	require.NoError(t, err)
	assert.False(t, ok, "no override stored yet")

	require.NoError(t, storage.StoreThreshold(ctx, "living_room", 65))

	value, ok, err := storage.GetThreshold(ctx, "living_room")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 65, value)
}

func TestStoragePriorsRoundTrip(t *testing.T) {
	storage := NewStorage(newFakeRedis(), slog.Default())
	ctx := context.Background()

	empty, err := storage.LoadPriors(ctx, "living_room")
	require.NoError(t, err)
	assert.Empty(t, empty)

	models := map[SensorType]PriorModel{
		SensorMotion: {PTrue: 0.6, PFalse: 0.08, Prior: 0.4},
		SensorMedia:  {PTrue: 0.45, PFalse: 0.06, Prior: 0.4},
	}
	require.NoError(t, storage.StorePriors(ctx, "living_room", models))

	got, err := storage.LoadPriors(ctx, "living_room")
	require.NoError(t, err)
	assert.Equal(t, models, got)

	// Another area remains empty
	other, err := storage.LoadPriors(ctx, "bedroom")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStorageLoadPriorsSkipsCorruptEntries(t *testing.T) {
	fake := newFakeRedis()
	storage := NewStorage(fake, slog.Default())
	ctx := context.Background()

	require.NoError(t, storage.StorePriors(ctx, "living_room", map[SensorType]PriorModel{
		SensorMotion: {PTrue: 0.6, PFalse: 0.08, Prior: 0.4},
	}))
	fake.values[redis.AreaPriorsKey("living_room", string(SensorMedia))] = "{broken"

	got, err := storage.LoadPriors(ctx, "living_room")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, SensorMotion)
}
