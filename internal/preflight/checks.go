package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"oea/internal/config"
	"oea/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the worker binaries the config will invoke.
// Both "run" and "status" use this to avoid duplicating the requirements
// list.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if cfg.Catalog.LengthsPath == "" {
		requirements = append(requirements, deps.Requirement{
			Name:        "Store dump",
			Command:     cfg.Catalog.DumpBinary,
			Description: "Dumps read lengths and overlap counts",
		})
	}
	if cfg.Detection.Enabled {
		requirements = append(requirements, deps.Requirement{
			Name:        "Detection worker",
			Command:     cfg.Detection.Binary,
			Description: "Finds base errors per batch",
		})
	}
	if cfg.Adjustment.Enabled {
		requirements = append(requirements,
			deps.Requirement{
				Name:        "Adjustment worker",
				Command:     cfg.Adjustment.Binary,
				Description: "Recomputes overlap error rates per batch",
			},
			deps.Requirement{
				Name:        "Commit worker",
				Command:     cfg.Commit.Binary,
				Description: "Loads adjusted error rates into the overlap store",
			},
		)
	}
	return deps.CheckBinaries(requirements)
}
