package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Leontarin/CareBell-sub000/internal/config"
	"github.com/Leontarin/CareBell-sub000/internal/ui"
)

var (
	flagCreateDomain   string
	flagCreateInsecure bool
)

var createCmd = &cobra.Command{
	Use:   "create <room>",
	Short: "Create a durable room that is kept when empty",
	Long: `Create a named family room on the server. Unlike ad hoc rooms, a
durable room is not deleted when the last participant leaves, so the
family can keep using the same room name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("room name cannot be empty")
		}
		return createRoom(name)
	},
}

func createRoom(name string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:   flagCreateDomain,
		Insecure: flagCreateInsecure,
	})
	if err != nil {
		return err
	}

	if err := createDurableRoom(cfg, name); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Durable room %q is ready", name))
	return nil
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&flagCreateDomain, "domain", "", "Custom domain")
	createCmd.Flags().BoolVar(&flagCreateInsecure, "insecure", false, "Use http:// instead of https://")
}
