package cli

import (
	"fmt"
	"os"

	"github.com/hollowpine/presage/internal/config"
	"github.com/hollowpine/presage/internal/store"
	"github.com/spf13/cobra"
)

var inspectConfigPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print store counts and the strongest learned patterns",
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectConfigPath, "config", "", "path to config file (default ~/.presage/config.yaml)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(inspectConfigPath)
	if err != nil {
		return err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve db path: %w", err)
		}
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no database at %s", dbPath)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	events, _ := db.CountEvents()
	transitions, _ := db.CountTransitions()
	routines, _ := db.CountRoutines()
	reminders, _ := db.CountReminders()
	scheduled, _ := db.CountCandidates(store.StatusScheduled)
	total, _ := db.CountCandidates("")

	fmt.Printf("db: %s\n", dbPath)
	fmt.Printf("  events:      %d\n", events)
	fmt.Printf("  transitions: %d\n", transitions)
	fmt.Printf("  routines:    %d\n", routines)
	fmt.Printf("  reminders:   %d\n", reminders)
	fmt.Printf("  candidates:  %d (%d scheduled)\n", total, scheduled)

	top, err := db.TopTransitions(10)
	if err != nil {
		return err
	}
	if len(top) > 0 {
		fmt.Println("\nstrongest transitions:")
		for _, t := range top {
			fmt.Printf("  %-12s %s -> %s  [%s]  conf=%.3f n=%d delay=%.1fm\n",
				t.Person, t.FromAction, t.ToAction, t.Bucket,
				t.Confidence, t.OccurrenceCount, t.AvgDelayMin)
		}
	}

	return nil
}
