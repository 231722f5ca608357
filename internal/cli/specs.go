package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/stratamed/journeysim/internal/journey"
)

var specsCmd = &cobra.Command{
	Use:   "specs",
	Short: "List configured journey specs",
	Long:  "Display the configured journeys with their verticals and event definitions",
	RunE:  runSpecs,
}

func init() {
	rootCmd.AddCommand(specsCmd)
}

func runSpecs(cmd *cobra.Command, args []string) error {
	if len(cfg.Journeys) == 0 {
		fmt.Println("No journeys configured")
		return nil
	}

	names := make([]string, 0, len(cfg.Journeys))
	for name := range cfg.Journeys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, err := journey.LoadSpec(cfg.Journeys[name].File)
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		fmt.Printf("%s (%s)\n", name, spec.Vertical)
		for _, def := range spec.Events {
			anchor := def.Anchor
			if anchor == journey.AnchorStart {
				anchor = "run start"
			}
			detail := fmt.Sprintf("after %s", anchor)
			if def.Condition != nil {
				detail += ", conditional"
			}
			if def.Repeat != nil {
				detail += ", repeating"
			}
			fmt.Printf("  %-24s %-28s %s\n", def.ID, def.Type, detail)
		}
	}
	return nil
}
