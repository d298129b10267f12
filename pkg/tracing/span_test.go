package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTrace(t *testing.T) {
	ctx, root := Start(context.Background(), "search", "req-1")
	_, child := Start(ctx, "execute", "ignored")
	child.SetAttr("cache_hit", true)
	child.End()
	root.End()

	assert.Same(t, root, FromContext(ctx))
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "req-1", child.TraceID)
	assert.Nil(t, FromContext(context.Background()))
}

func TestLogWritesOneRecordPerSpanAtDebug(t *testing.T) {
	ctx, root := Start(context.Background(), "search", "req-2")
	_, child := Start(ctx, "highlight", "")
	child.End()
	root.End()

	var buf bytes.Buffer
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=search")
	assert.Contains(t, lines[1], "span=highlight")
	assert.Contains(t, lines[1], "depth=1")

	buf.Reset()
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Empty(t, buf.String(), "info level skips spans")
}
