package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"strata/internal/archive"
)

const watchDebounce = 150 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch [flags] FILE...",
	Short: "Rebuild whenever an analyzed module changes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  watchExecution,
}

func init() {
	addBuildFlags(watchCmd)
}

func watchExecution(cmd *cobra.Command, args []string) error {
	opts, err := readBuildOptions(cmd)
	if err != nil {
		return err
	}
	files := make(map[string]bool, len(args))
	dirs := make(map[string]bool)
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// файлы часто пересоздаются редактором, поэтому следим за каталогами
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	digests := make(map[string]string, len(files))
	rebuild := func() {
		// редакторы пишут файл несколько раз подряд, пропускаем пустые изменения
		if !refreshDigests(digests, files) {
			return
		}
		if err := runBuild(cmd, opts, args); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), errorLabel()+" "+err.Error())
		}
	}
	rebuild()
	return watchLoop(cmd.Context(), w, files, rebuild)
}

// watchLoop calls rebuild once writes to files settle, until ctx ends.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, files map[string]bool, rebuild func()) error {
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(watchDebounce)
			}
		case <-timer.C:
			rebuild()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

// refreshDigests records the content digest of every watched file and
// reports whether any of them changed. Unreadable files count as changed.
func refreshDigests(digests map[string]string, files map[string]bool) bool {
	changed := false
	for f := range files {
		data, err := os.ReadFile(f)
		sum := ""
		if err == nil {
			sum = archive.Digest(data)
		}
		if prev, ok := digests[f]; !ok || prev != sum || sum == "" {
			changed = true
		}
		digests[f] = sum
	}
	return changed
}
