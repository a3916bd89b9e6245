package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"

	"github.com/Leontarin/CareBell-sub000/internal/call"
)

// RosterTableView renders the in-call participant table.
func RosterTableView(roster []call.ParticipantStatus) string {
	if len(roster) == 0 {
		return MutedStyle.Render("Nobody else is here yet")
	}

	headers := []string{"Participant", "State", "Media", "Mic"}

	var rows [][]string
	for _, p := range roster {
		name := p.ID
		if p.DisplayName != "" {
			name = fmt.Sprintf("%s (%s)", p.DisplayName, p.ID)
		}

		media := "-"
		switch {
		case p.HasAudio && p.HasVideo:
			media = "audio+video"
		case p.HasAudio:
			media = "audio"
		case p.HasVideo:
			media = "video"
		}

		mic := "on"
		if p.Muted {
			mic = IconMuted + " muted"
		}

		state := p.State.String()
		if p.State == call.StateNegotiating && p.Attempts > 0 {
			state = fmt.Sprintf("retrying (%d)", p.Attempts)
		}

		rows = append(rows, []string{name, state, media, mic})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomListItem is one row of the `carecall rooms` listing.
type RoomListItem struct {
	Name        string
	MemberCount int
	Durable     bool
	Active      bool
}

// RenderRoomList prints the room listing using go-pretty.
func RenderRoomList(rooms []RoomListItem) {
	if len(rooms) == 0 {
		PrintInfo("No rooms right now")
		return
	}

	t := pretty.NewWriter()
	t.SetStyle(pretty.StyleRounded)
	t.AppendHeader(pretty.Row{"#", "Room", "Participants", "Kind", "Active"})

	for i, r := range rooms {
		kind := "ad hoc"
		if r.Durable {
			kind = "durable"
		}
		active := "no"
		if r.Active {
			active = "yes"
		}
		t.AppendRow(pretty.Row{i + 1, r.Name, r.MemberCount, kind, active})
	}

	fmt.Println(t.Render())
}
