package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "curator",
		Short: "Group-chat content curator bot",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the archive scheduler, and the HTTP surface",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
