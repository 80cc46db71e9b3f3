package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscribeCommandPrintsTranscript(t *testing.T) {
	t.Parallel()

	out := new(bytes.Buffer)
	var gotPath string

	app := &appState{
		transcribeFn: func(_ context.Context, audioPath string) (string, error) {
			gotPath = audioPath
			return "hello world", nil
		},
	}

	cmd := newTranscribeCmd(app)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"/tmp/audio.wav"})

	err := cmd.Execute()
	require.NoError(t, err)
	require.Equal(t, "/tmp/audio.wav", gotPath)
	require.Equal(t, "hello world\n", out.String())
}

func TestTranscribeCommandPropagatesError(t *testing.T) {
	t.Parallel()

	app := &appState{
		transcribeFn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("engine missing")
		},
	}

	cmd := newTranscribeCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"/tmp/audio.wav"})

	err := cmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "engine missing")
}

func TestTranscribeCommandRequiresArgument(t *testing.T) {
	t.Parallel()

	app := &appState{}
	cmd := newTranscribeCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
}
