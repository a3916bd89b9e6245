package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Leontarin/CareBell-sub000/internal/ui"
	"github.com/Leontarin/CareBell-sub000/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "carecall",
	Short:   "Family video calls for the CareBell companion, straight from the terminal",
	Long:    `CareCall joins CareBell video-call rooms over WebRTC. Every participant in a room connects directly to every other one in a full mesh, with the CareBell signaling server only brokering the introductions. Rooms are created by joining them and disappear when the last person leaves, unless they were set up as durable family rooms.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
