package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Leontarin/CareBell-sub000/internal/call"
)

// refreshInterval bounds how often the roster is re-read; coordinator
// updates are coalesced anyway.
const refreshInterval = 500 * time.Millisecond

type refreshMsg struct{}

// CallModel is the Bubble Tea model for the live call view: a roster
// table fed from the mesh coordinator plus mute control.
type CallModel struct {
	room    string
	localID string
	coord   *call.Coordinator

	spin   spinner.Model
	roster []call.ParticipantStatus
	full   bool
	muted  bool
}

func NewCallModel(room, localID string, coord *call.Coordinator) CallModel {
	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = SpinnerStyle

	return CallModel{
		room:    room,
		localID: localID,
		coord:   coord,
		spin:    sp,
	}
}

func (m CallModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, refreshAfter())
}

func refreshAfter() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "m":
			m.muted = !m.muted
			if ctl, err := call.NewControlMessage(call.ControlTypeMute, call.MutePayload{Muted: m.muted}); err == nil {
				m.coord.Broadcast(ctl)
			}
			return m, nil
		}

	case refreshMsg:
		m.roster = m.coord.Roster()
		m.full = m.coord.RoomFull()
		return m, refreshAfter()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m CallModel) View() string {
	header := TitleStyle.Render(fmt.Sprintf("%s  Room %q — you are %s", IconRoom, m.room, m.localID))

	var body string
	switch {
	case m.full:
		body = WarnBoxStyle.Render(fmt.Sprintf("%s This room is full. Try again later.", IconWarning))
	case len(m.roster) == 0:
		body = fmt.Sprintf("%s %s", m.spin.View(), MutedStyle.Render("Waiting for family to join..."))
	default:
		body = RosterTableView(m.roster)
	}

	mic := "mic on"
	if m.muted {
		mic = IconMuted + " muted"
	}
	footer := MutedStyle.Render(fmt.Sprintf("%s  •  m: toggle mute  •  q: leave call", mic))

	return fmt.Sprintf("%s\n%s\n\n%s\n", header, body, footer)
}
