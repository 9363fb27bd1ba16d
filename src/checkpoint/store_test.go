package checkpoint

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaenova/chatd/src/aisdk"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	pb, err := OpenPebble(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { pb.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"pebble": pb,
	}
}

func TestEmptyThreadHead(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			head, err := store.GetState(context.Background(), "t1", "")
			require.NoError(t, err)
			assert.Empty(t, head.ID)
			assert.Equal(t, "t1", head.ThreadID)
			assert.Empty(t, head.Messages)
		})
	}
}

func TestAppendChain(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c1, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewUserMessage("m1", "hello"),
			})
			require.NoError(t, err)

			c2, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewAssistantMessage("m2", "hi there", nil),
			})
			require.NoError(t, err)
			assert.NotEqual(t, c1, c2)

			head, err := store.GetState(ctx, "t1", "")
			require.NoError(t, err)
			assert.Equal(t, c2, head.ID)
			assert.Equal(t, c1, head.ParentID)
			require.Len(t, head.Messages, 2)
			assert.Equal(t, "m1", head.Messages[0].ID)
			assert.Equal(t, "m2", head.Messages[1].ID)

			first, err := store.GetState(ctx, "t1", c1)
			require.NoError(t, err)
			require.Len(t, first.Messages, 1)
			assert.Empty(t, first.ParentID)
		})
	}
}

func TestForkFromOlderCheckpoint(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c1, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewUserMessage("m1", "first"),
			})
			require.NoError(t, err)
			_, err = store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewAssistantMessage("m2", "reply", nil),
			})
			require.NoError(t, err)

			// Appending to the older checkpoint forks the thread; the fork
			// becomes the new head.
			fork, err := store.Append(ctx, "t1", c1, []*aisdk.Message{
				aisdk.NewUserMessage("m3", "edited"),
			})
			require.NoError(t, err)

			head, err := store.GetState(ctx, "t1", "")
			require.NoError(t, err)
			assert.Equal(t, fork, head.ID)
			assert.Equal(t, c1, head.ParentID)
			require.Len(t, head.Messages, 2)
			assert.Equal(t, "m1", head.Messages[0].ID)
			assert.Equal(t, "m3", head.Messages[1].ID)
		})
	}
}

func TestAppendReplacesByMessageID(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			c1, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewUserMessage("m1", "original"),
				aisdk.NewAssistantMessage("m2", "reply", nil),
			})
			require.NoError(t, err)

			// Re-sending a message id forks at that point: the edited
			// message replaces the original and the tail is dropped.
			c2, err := store.Append(ctx, "t1", c1, []*aisdk.Message{
				aisdk.NewUserMessage("m1", "edited"),
			})
			require.NoError(t, err)

			head, err := store.GetState(ctx, "t1", c2)
			require.NoError(t, err)
			require.Len(t, head.Messages, 1)
			assert.Equal(t, "m1", head.Messages[0].ID)
			assert.Equal(t, "edited", head.Messages[0].Text())
		})
	}
}

func TestGetStateUnknownCheckpoint(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetState(context.Background(), "t1", "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAppendUnknownParent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Append(context.Background(), "t1", "missing", []*aisdk.Message{
				aisdk.NewUserMessage("", "hi"),
			})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestGetHistory(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var ids []string
			for _, text := range []string{"a", "b", "c"} {
				id, err := store.Append(ctx, "t1", "", []*aisdk.Message{
					aisdk.NewUserMessage("", text),
				})
				require.NoError(t, err)
				ids = append(ids, id)
			}

			history, err := store.GetHistory(ctx, "t1", 0)
			require.NoError(t, err)
			require.Len(t, history, 3)
			for i, ckpt := range history {
				assert.Equal(t, ids[i], ckpt.ID)
			}

			limited, err := store.GetHistory(ctx, "t1", 2)
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, ids[0], limited[0].ID)
			assert.Equal(t, ids[1], limited[1].ID)
		})
	}
}

func TestThreadsAreIsolated(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewUserMessage("", "only in t1"),
			})
			require.NoError(t, err)

			head, err := store.GetState(ctx, "t2", "")
			require.NoError(t, err)
			assert.Empty(t, head.Messages)

			history, err := store.GetHistory(ctx, "t2", 0)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestStateIsImmutable(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Append(ctx, "t1", "", []*aisdk.Message{
				aisdk.NewUserMessage("m1", "original"),
			})
			require.NoError(t, err)

			head, err := store.GetState(ctx, "t1", "")
			require.NoError(t, err)
			head.Messages[0].Parts[0].Text = "mutated"

			again, err := store.GetState(ctx, "t1", "")
			require.NoError(t, err)
			assert.Equal(t, "original", again.Messages[0].Text())
		})
	}
}
