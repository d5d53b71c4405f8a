package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, Selection{TargetLanguage: "Spanish", Level: "A1", NativeLanguage: "English"}, cfg.Selection)
	assert.True(t, cfg.Markdown)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendURL, cfg.BackendURL)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := filepath.Join(t.TempDir(), "storyteller.yaml")

	cfg := DefaultConfig()
	cfg.BackendURL = "http://story.local:9000"
	cfg.Timeout = 15 * time.Second
	cfg.Selection = Selection{TargetLanguage: "Turkish", Level: "B1", NativeLanguage: "German"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://story.local:9000", loaded.BackendURL)
	assert.Equal(t, 15*time.Second, loaded.Timeout)
	assert.Equal(t, cfg.Selection, loaded.Selection)
	assert.Equal(t, path, loaded.Path)
}

func TestLoad_FlatYAML(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := filepath.Join(t.TempDir(), "storyteller.yaml")
	content := "target_language: French\nlevel: C1\ntimeout: 5s\nmarkdown: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "French", cfg.Selection.TargetLanguage)
	assert.Equal(t, "C1", cfg.Selection.Level)
	assert.Equal(t, "English", cfg.Selection.NativeLanguage)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.Markdown)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("level: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_EnvOverride(t *testing.T) {
	t.Setenv(EnvBackendURL, "https://stories.example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://stories.example.com", cfg.BackendURL)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendURL = "localhost:8000"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Selection.Level = "D4"
	assert.Error(t, cfg.Validate())
}

func TestSelection_With(t *testing.T) {
	sel := DefaultSelection()

	next, err := sel.With(FieldLevel, "B2")
	require.NoError(t, err)
	assert.Equal(t, "B2", next.Level)
	assert.Equal(t, "A1", sel.Level, "original must be unchanged")

	_, err = sel.With(FieldTarget, "Klingon")
	assert.Error(t, err)

	_, err = sel.With("dialect", "x")
	assert.Error(t, err)
}

func TestSelection_NextWraps(t *testing.T) {
	sel := DefaultSelection()
	sel.Level = "C2"
	next, err := sel.Next(FieldLevel)
	require.NoError(t, err)
	assert.Equal(t, "A1", next.Level)

	sel.NativeLanguage = "not-listed"
	next, err = sel.Next(FieldNative)
	require.NoError(t, err)
	assert.Equal(t, NativeLanguages[0], next.NativeLanguage)
}

func TestSettings_SetAndNotify(t *testing.T) {
	s := NewSettings(DefaultSelection())
	var seen []Selection
	s.OnChange(func(sel Selection) { seen = append(seen, sel) })

	require.NoError(t, s.Set(FieldTarget, "Italian"))
	assert.Equal(t, "Italian", s.Get().TargetLanguage)

	require.Error(t, s.Set(FieldTarget, "Latin"))
	assert.Equal(t, "Italian", s.Get().TargetLanguage)

	_, err := s.Cycle(FieldLevel)
	require.NoError(t, err)
	assert.Equal(t, "A2", s.Get().Level)

	require.Len(t, seen, 2)
	assert.Equal(t, "Italian", seen[0].TargetLanguage)
	assert.Equal(t, "A2", seen[1].Level)
}

func TestSettings_ReplaceRejectsInvalid(t *testing.T) {
	s := NewSettings(DefaultSelection())
	err := s.Replace(Selection{TargetLanguage: "Spanish", Level: "Z9", NativeLanguage: "English"})
	require.Error(t, err)
	assert.Equal(t, DefaultSelection(), s.Get())
}

func TestWatcher_ReloadsSelection(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := filepath.Join(t.TempDir(), "storyteller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_language: Spanish\n"), 0644))

	settings := NewSettings(DefaultSelection())
	w, err := NewWatcher(path, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("target_language: German\nlevel: B1\n"), 0644))

	require.Eventually(t, func() bool {
		sel := settings.Get()
		return sel.TargetLanguage == "German" && sel.Level == "B1"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_TruncatedSaveKeepsSelection(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := filepath.Join(t.TempDir(), "storyteller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_language: French\nlevel: C1\nnative_language: German\n"), 0644))

	start := Selection{TargetLanguage: "French", Level: "C1", NativeLanguage: "German"}
	settings := NewSettings(start)
	var mu sync.Mutex
	var seen []Selection
	settings.OnChange(func(sel Selection) {
		mu.Lock()
		seen = append(seen, sel)
		mu.Unlock()
	})

	w, err := NewWatcher(path, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	w.debounceDur = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Let the emptied file settle past the debounce window before the rewrite.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, start, settings.Get())

	require.NoError(t, os.WriteFile(path, []byte("target_language: French\nlevel: B1\nnative_language: German\n"), 0644))

	want := Selection{TargetLanguage: "French", Level: "B1", NativeLanguage: "German"}
	require.Eventually(t, func() bool { return settings.Get() == want }, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Selection{want}, seen)
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := filepath.Join(t.TempDir(), "storyteller.yaml")
	require.NoError(t, os.WriteFile(path, []byte("level: A1\n"), 0644))

	settings := NewSettings(DefaultSelection())
	var mu sync.Mutex
	var seen []Selection
	settings.OnChange(func(sel Selection) {
		mu.Lock()
		seen = append(seen, sel)
		mu.Unlock()
	})

	w, err := NewWatcher(path, settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	w.debounceDur = 300 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	for _, level := range []string{"A2", "B1", "B2", "C1"} {
		require.NoError(t, os.WriteFile(path, []byte("level: "+level+"\n"), 0644))
		time.Sleep(20 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return settings.Get().Level == "C1" }, 5*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "C1", seen[0].Level)
}

func TestSetsSelection(t *testing.T) {
	assert.False(t, setsSelection(nil))
	assert.False(t, setsSelection([]byte("backend_url: http://x:1\n")))
	assert.False(t, setsSelection([]byte("target_language: [")))
	assert.True(t, setsSelection([]byte("level: B2\n")))
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", NewSettings(DefaultSelection()), nil)
	assert.Error(t, err)
}
