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

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	rankCtx, rank := StartChildSpan(ctx, "rank")
	rank.SetAttr("hits", 12)
	_, inner := StartChildSpan(rankCtx, "similarity")
	inner.End()
	rank.End()
	_, rr := StartChildSpan(ctx, "rerank")
	rr.End()
	root.End()

	assert.Same(t, root, SpanFromContext(ctx))
	require.Len(t, root.Children(), 2)
	assert.Equal(t, "req-1", inner.TraceID)
	assert.Same(t, inner, root.Find("similarity"))
	assert.Nil(t, root.Find("missing"))
	assert.Equal(t, 12, root.Find("rank").Attr("hits"))
}

func TestEnd_Idempotent(t *testing.T) {
	_, s := StartSpan(context.Background(), "x", "")
	s.End()
	d := s.Duration
	s.End()
	assert.Equal(t, d, s.Duration)
}

func TestChildWithoutParent(t *testing.T) {
	ctx, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
	assert.Same(t, s, SpanFromContext(ctx))
}

func TestLog_DebugOnly(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-2")
	_, c := StartChildSpan(ctx, "rank")
	c.End()
	root.End()

	var buf bytes.Buffer
	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	assert.Empty(t, buf.String())

	root.Log(ctx, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	assert.Equal(t, 2, strings.Count(buf.String(), "msg=span"))
	assert.Contains(t, buf.String(), "trace_id=req-2")
}
