package config

import (
	"context"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// watchable maps .env variable names to their set_config_value keys. Only
// these survive a reload; transport, root, and log paths stay fixed for the
// process lifetime.
var watchable = map[string]string{
	"BLOCKED_COMMANDS":      "blocked_commands",
	"DEFAULT_SHELL":         "default_shell",
	"LOG_LEVEL":             "log_level",
	"FILE_READ_LINE_LIMIT":  "file_read_line_limit",
	"FILE_WRITE_LINE_LIMIT": "file_write_line_limit",
	"ALLOWED_DIRECTORIES":   "allowed_directories",
}

// Watch re-applies the mutable subset of envPath whenever the file changes.
// It blocks until ctx is done and is intended to run in its own goroutine.
func Watch(ctx context.Context, envPath string, store *Store, logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(envPath); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			applyEnvFile(envPath, store, logger)
			// Editors replace files on save; re-arm the watch on the new inode.
			if _, err := os.Stat(envPath); err == nil {
				_ = watcher.Add(envPath)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func applyEnvFile(envPath string, store *Store, logger zerolog.Logger) {
	vars, err := godotenv.Read(envPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", envPath).Msg("could not re-read env file")
		return
	}
	for env, key := range watchable {
		raw, ok := vars[env]
		if !ok {
			continue
		}
		var value any = raw
		if strings.Contains(env, "DIRECTORIES") || strings.Contains(env, "COMMANDS") {
			value = strings.Split(raw, ",")
		}
		if err := store.Set(key, value); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("rejected config reload value")
			continue
		}
		logger.Info().Str("key", key).Msg("config value reloaded")
	}
}
