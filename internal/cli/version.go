// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-devicetrust/internal/server"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X github.com/jeremyhahn/go-devicetrust/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-devicetrust/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-devicetrust/internal/cli.BuildDate=2025-01-15"
)

func init() {
	if Version == "dev" {
		Version = server.BuildVersion()
	}
}

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

func newVersionCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := VersionInfo{
				Version:   Version,
				Commit:    GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
				OS:        runtime.GOOS,
				Arch:      runtime.GOARCH,
			}
			printer := cfg.Printer(cmd)
			if printer.format == OutputFormatJSON {
				return printer.printJSON(info)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "devicetrust version %s\n", info.Version)
			fmt.Fprintf(w, "Git commit: %s\n", info.Commit)
			fmt.Fprintf(w, "Build date: %s\n", info.BuildDate)
			fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", info.OS, info.Arch)
			return nil
		},
	}
}
