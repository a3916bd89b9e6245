package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Leontarin/CareBell-sub000/internal/call"
	"github.com/Leontarin/CareBell-sub000/internal/config"
	"github.com/Leontarin/CareBell-sub000/internal/signaling"
	"github.com/Leontarin/CareBell-sub000/internal/ui"
)

var (
	flagJoinUser     string
	flagJoinName     string
	flagJoinDomain   string
	flagJoinInsecure bool
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
	flagJoinMax      int
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a video-call room",
	Long: `Join a CareBell room and connect to everyone already in it.

Examples:
  carecall join family-jensen
  carecall join family-jensen --name "Grandma Ida"
  carecall join family-jensen --domain call.example.org --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := strings.TrimSpace(args[0])
		if room == "" {
			return fmt.Errorf("room name cannot be empty")
		}
		return joinRoom(room)
	},
}

func joinRoom(room string) error {
	cfg, err := LoadConfig(config.Options{
		Domain:          flagJoinDomain,
		STUNServer:      flagJoinSTUN,
		TURNServer:      flagJoinTURN,
		TURNUser:        flagJoinTURNUser,
		TURNPass:        flagJoinTURNPass,
		ForceRelay:      flagJoinRelay,
		MaxParticipants: flagJoinMax,
		Insecure:        flagJoinInsecure,
	})
	if err != nil {
		return err
	}

	userID := flagJoinUser
	if userID == "" {
		userID = uuid.NewString()
	}

	// Check capacity before dialing in. Someone can still slip in between
	// the check and the join; the mesh coordinator handles that race by
	// truncating its own view.
	if snap, err := fetchRoom(cfg, room); err != nil {
		slog.Debug("pre-join room check failed", "room", room, "err", err)
	} else if snap != nil && snap.MemberCount >= cfg.MaxParticipants {
		return fmt.Errorf("room %q is full (%d/%d participants): %w",
			room, snap.MemberCount, cfg.MaxParticipants, call.ErrRoomFull)
	}

	if flagJoinName != "" {
		if err := publishDisplayName(cfg, userID, flagJoinName); err != nil {
			slog.Debug("user directory update failed", "user", userID, "err", err)
		}
	}

	// Local capture devices are an external collaborator; the terminal
	// client joins receive-only.
	media := call.NewStaticMedia()
	defer media.Close()

	fmt.Println()
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	ctx, err := NewConnectionContext(cfg)
	if err != nil {
		stopSpinner()
		return err
	}
	defer ctx.Close()
	stopSpinner()

	select {
	case greeting := <-ctx.Handler.Welcome:
		slog.Debug("server welcome", "message", greeting)
	case <-ctx.Handler.Done:
		return call.NewError("connect to server", call.ErrSignalingError)
	case <-time.After(10 * time.Second):
		return call.NewError("connect to server", call.ErrNegotiationTimeout)
	}

	sender := func(target string, sig *call.Signal) {
		payload, err := json.Marshal(sig)
		if err != nil {
			slog.Warn("dropping unencodable signal", "target", target, "err", err)
			return
		}
		ctx.Handler.SendSignal(wireKind(sig.Type), room, userID, target, payload)
	}

	factory := func(remoteID string, events chan<- call.PeerEvent) (call.PeerHandle, error) {
		p, err := call.NewPeer(cfg, room, userID, remoteID, media, sender, events)
		if err != nil {
			return nil, err
		}
		if flagJoinName != "" {
			p.SetDisplayName(flagJoinName)
		}
		return p, nil
	}
	coord := call.NewCoordinator(cfg, room, userID, factory, slog.Default())
	go coord.Run()
	defer coord.Close()

	prog := tea.NewProgram(ui.NewCallModel(room, userID, coord))

	// Bridge signaling traffic into the mesh until the connection drops.
	go func() {
		for {
			select {
			case update := <-ctx.Handler.Membership:
				coord.UpdateMembership(call.Membership{
					Participants: update.Participants,
					Left:         update.LeftUser,
				})
			case sig := <-ctx.Handler.Signals:
				coord.DeliverSignal(sig.From, sig.Signal)
			case errMsg := <-ctx.Handler.Errors:
				slog.Warn("server error", "room", room, "message", errMsg)
			case <-ctx.Handler.Done:
				prog.Quit()
				return
			}
		}
	}()

	ctx.Handler.JoinRoom(room, userID)

	if _, err := prog.Run(); err != nil {
		return call.NewError("run call view", err)
	}

	ctx.Handler.LeaveRoom(room, userID)
	fmt.Println()
	ui.PrintSuccess(fmt.Sprintf("Left room %q", room))
	return nil
}

// wireKind maps a peer signal type onto its wire message type.
func wireKind(sigType string) string {
	switch sigType {
	case call.SignalOffer:
		return signaling.MessageTypeOffer
	case call.SignalAnswer:
		return signaling.MessageTypeAnswer
	default:
		return signaling.MessageTypeICECandidate
	}
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagJoinUser, "user", "u", "", "Participant id (random when omitted)")
	joinCmd.Flags().StringVarP(&flagJoinName, "name", "n", "", "Display name announced to other participants")
	joinCmd.Flags().StringVar(&flagJoinDomain, "domain", "", "Custom domain")
	joinCmd.Flags().BoolVar(&flagJoinInsecure, "insecure", false, "Use ws:// and http:// instead of wss:// and https://")
	joinCmd.Flags().StringVarP(&flagJoinSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagJoinTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagJoinRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().IntVar(&flagJoinMax, "max-participants", 0, "Room size limit (default 6)")
}
