package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("generate man page: %w", err)
		}

		manPage = manPage.WithSection("Files", "Configuration lives in audiofetch.yml under the user config directory.\n"+
			"Downloads and state live under the user data directory unless storage.dir and audio.dir say otherwise.")
		fmt.Println(manPage.Build(roff.NewDocument()))
		return nil
	},
}
