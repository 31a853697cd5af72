package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDiscards(t *testing.T) {
	require.NoError(t, Init(Options{}))
	assert.False(t, L.IsLevelEnabled(logrus.DebugLevel), "debug must be off by default")
	Debugf("nothing %d", 1) // must not panic
}

func TestInitJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Init(Options{Enabled: true, Level: "debug", Output: &out, JSON: true}))
	t.Cleanup(func() { _ = Init(Options{}) })

	WithFn("HeapAlloc").WithField("size", 16).Debug("redirected")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &rec))
	assert.Equal(t, "HeapAlloc", rec["fn"])
	assert.Equal(t, "redirected", rec["msg"])
	assert.EqualValues(t, 16, rec["size"])
}

func TestInitBadLevel(t *testing.T) {
	err := Init(Options{Enabled: true, Level: "chatty"})
	assert.Error(t, err)
}
