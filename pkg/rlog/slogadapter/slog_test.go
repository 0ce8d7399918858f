package slogadapter

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"rtype/pkg/rlog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	buf.Reset()
	return line
}

func TestWithBindsFields(t *testing.T) {
	var buf bytes.Buffer
	l := rlog.With(NewJSON(&buf, "info"), "server", "abc")

	l.Info("player joined", "client", 3)
	line := decode(t, &buf)
	require.Equal(t, "player joined", line["msg"])
	require.Equal(t, "abc", line["server"])
	require.EqualValues(t, 3, line["client"])
}

func TestErrorsAreRenderedAsText(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "debug")

	l.Warn("send failed", "error", eris.New("socket closed"))
	line := decode(t, &buf)
	require.Equal(t, "WARN", line["level"])
	require.Contains(t, line["error"], "socket closed")
}

func TestLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSON(&buf, "loud")

	l.Debug("hidden")
	require.Zero(t, buf.Len())
	l.Info("shown")
	require.NotZero(t, buf.Len())
}
