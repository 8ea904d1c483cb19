package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-anomaly-detector/analytics"
	"stream-anomaly-detector/models"
)

func runReplay(t *testing.T, input string, anomaliesOnly bool) (string, error) {
	t.Helper()
	classifier, err := analytics.NewAnomalyClassifier(models.DetectorConfig{WindowSize: 4, Threshold: 2})
	require.NoError(t, err)

	var out bytes.Buffer
	err = replay(strings.NewReader(input), &out, classifier, anomaliesOnly)
	return out.String(), err
}

const replayInput = `# warm-up
1
-1

1
-1
-5
`

func TestReplayPrintsEveryRow(t *testing.T) {
	out, err := runReplay(t, replayInput, false)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	// header, five rows, blank line, summary
	require.Len(t, lines, 8)
	assert.Contains(t, lines[1], "N/A")
	assert.Contains(t, lines[5], "-5.00")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[5]), "true"))
	assert.Contains(t, lines[7], "samples=5 anomalies=1")
}

func TestReplayIsDeterministic(t *testing.T) {
	first, err := runReplay(t, replayInput, false)
	require.NoError(t, err)
	second, err := runReplay(t, replayInput, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReplayAnomaliesOnly(t *testing.T) {
	out, err := runReplay(t, replayInput, true)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "true")
}

func TestReplayRejectsBadInput(t *testing.T) {
	_, err := runReplay(t, "1\nabc\n", false)
	assert.ErrorContains(t, err, "line 2")

	_, err = runReplay(t, "1\nNaN\n", false)
	assert.ErrorIs(t, err, analytics.ErrNonFiniteValue)
}

func TestReplayCommandWithFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "values.txt")
	require.NoError(t, os.WriteFile(path, []byte("10\n10\n10\n10\n10\n1000\n"), 0o600))

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"replay", "--window", "5", "--threshold", "3", path})
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), "samples=6 anomalies=0")
}

func TestRootRejectsInvalidThresholdFlag(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader("1\n"))
	root.SetArgs([]string{"replay", "--threshold", "-2"})
	err := root.Execute()
	assert.ErrorIs(t, err, analytics.ErrInvalidThreshold)
}
