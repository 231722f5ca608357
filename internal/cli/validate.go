package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configured journeys and triggers",
	Long: `Load every configured journey spec and the trigger set, reporting
structural errors without generating anything. Catches malformed specs,
dangling anchors, unbounded recurrence, and trigger cycles.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	p, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(p.specs))
	for name := range p.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := p.specs[name]
		fmt.Printf("  ✓ %s (%s, %d events)\n", name, spec.Vertical, len(spec.Events))
	}
	fmt.Printf("\n%d journeys, %d triggers: OK\n", len(p.specs), len(cfg.Triggers))
	return nil
}
