package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weather-ingest",
		Short: "Load hourly Open-Meteo observations into a document store",
		Long: `weather-ingest fetches hourly observations for one point and date range
from Open-Meteo, flattens them into one record per timestamp and upserts
them keyed on (source, lat, lon, timestamp). Re-running a load converges.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newScheduleCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("weather-ingest version %s\n", version)
		},
	}
}
