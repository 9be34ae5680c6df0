// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"os"
	"time"

	"github.com/maruel/interrupt"
	fsnotify "gopkg.in/fsnotify.v1"
)

// watchFiles returns the path of the first file whose modification time
// changed, or "" on Ctrl-C.
func watchFiles(paths ...string) (string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", err
	}
	defer watcher.Close()
	mods := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		mods[p] = fi.ModTime()
		if err = watcher.Add(p); err != nil {
			return "", err
		}
	}
	for {
		select {
		case <-interrupt.Channel:
			return "", nil
		case err = <-watcher.Errors:
			return "", err
		case e := <-watcher.Events:
			mod0, ok := mods[e.Name]
			if !ok {
				continue
			}
			fi, err := os.Stat(e.Name)
			if err != nil || !fi.ModTime().Equal(mod0) {
				// A removed file counts as a change.
				return e.Name, nil
			}
		}
	}
}
