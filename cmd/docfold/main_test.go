package main

import (
	"flag"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	newContext := func(level string) *cli.Context {
		set := flag.NewFlagSet("test", flag.ContinueOnError)
		set.String("log-level", level, "")
		return cli.NewContext(cli.NewApp(), set, nil)
	}

	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
			assert.NoError(t, setupLogger(newContext(level)), level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		err := setupLogger(newContext("verbose"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestParseMetaFlags(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		metadata, err := parseMetaFlags(nil)
		require.NoError(t, err)
		assert.Nil(t, metadata)
	})

	t.Run("key value pairs", func(t *testing.T) {
		metadata, err := parseMetaFlags([]string{"author=jane", "source=manual"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"author": "jane", "source": "manual"}, metadata)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		metadata, err := parseMetaFlags([]string{"query=a=b"})
		require.NoError(t, err)
		assert.Equal(t, "a=b", metadata["query"])
	})

	t.Run("missing value separator", func(t *testing.T) {
		_, err := parseMetaFlags([]string{"justakey"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected key=value")
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := parseMetaFlags([]string{"=value"})
		assert.Error(t, err)
	})
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "heading", firstLine("  heading\nbody\n"))
	assert.Equal(t, "plain", firstLine("plain"))

	long := make([]byte, 150)
	for i := range long {
		long[i] = 'x'
	}
	got := firstLine(string(long))
	assert.Len(t, got, 103)
	assert.Contains(t, got, "...")
}
