package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockforge/blockforge/internal/ide"
	"github.com/blockforge/blockforge/internal/project"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workspace and the language server toolchain",
	Long: `Doctor inspects the workspace root, reports the detected project kind,
and checks that every configured language server command is on PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		proj := project.Detect(root)

		fmt.Printf("Workspace: %s\n", proj.Root)
		fmt.Printf("Project:   %s (%s)\n", proj.Name, proj.Kind)
		fmt.Println()

		missing := 0
		fmt.Println("Language servers:")
		for _, p := range ide.ProbeServers(cfg.Servers) {
			if p.Err != nil {
				missing++
				fmt.Printf("  %-12s %s: NOT FOUND\n", p.Language, p.Command)
				continue
			}
			fmt.Printf("  %-12s %s: %s\n", p.Language, p.Command, p.Path)
		}

		if missing > 0 {
			fmt.Printf("\n%d server(s) missing. Editing still works; diagnostics for those languages will be unavailable.\n", missing)
		} else {
			fmt.Println("\nAll configured servers found.")
		}
		return nil
	},
}
