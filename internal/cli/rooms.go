package cli

import (
	"github.com/spf13/cobra"

	"github.com/Leontarin/CareBell-sub000/internal/config"
	"github.com/Leontarin/CareBell-sub000/internal/ui"
)

var (
	flagRoomsDomain   string
	flagRoomsInsecure bool
)

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the rooms the server knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRooms()
	},
}

func listRooms() error {
	cfg, err := LoadConfig(config.Options{
		Domain:   flagRoomsDomain,
		Insecure: flagRoomsInsecure,
	})
	if err != nil {
		return err
	}

	stopSpinner := ui.RunSpinner("Fetching rooms...")
	rooms, err := fetchRooms(cfg)
	stopSpinner()
	if err != nil {
		return err
	}

	items := make([]ui.RoomListItem, 0, len(rooms))
	for _, r := range rooms {
		items = append(items, ui.RoomListItem{
			Name:        r.Name,
			MemberCount: r.MemberCount,
			Durable:     r.Durable,
			Active:      r.Active,
		})
	}
	ui.RenderRoomList(items)
	return nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVar(&flagRoomsDomain, "domain", "", "Custom domain")
	roomsCmd.Flags().BoolVar(&flagRoomsInsecure, "insecure", false, "Use http:// instead of https://")
}
