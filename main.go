package main

import (
	"os"
	"path/filepath"

	"github.com/subosito/gotenv"

	"github.com/miraassistant/mira/cmd"
)

// version will be set by goreleaser during build
var version = "dev"

func main() {
	// The first .env found wins; variables already set in the environment
	// are not overridden.
	paths := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "mira", ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := gotenv.Load(p); err == nil {
				break
			}
		}
	}

	cmd.SetVersion(version)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
