package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "debug", JSON: true, Output: &buf}))
	t.Cleanup(func() { _ = Init(Options{}) })

	WithTree(42).Debug("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, float64(42), entry["tree"])
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestInitLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Output: &buf}))
	t.Cleanup(func() { _ = Init(Options{}) })

	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	logrus.Info("hidden")
	assert.Empty(t, buf.String())

	assert.Error(t, Init(Options{Level: "loud", Output: &buf}))
}
