// Package ui is the terminal front-end: a Bubble Tea model showing
// application events as styled lines above a command input.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/meszmate/conference/internal/app"
	"github.com/meszmate/conference/internal/ui/theme"
	"github.com/meszmate/conference/internal/xmpp/muc"
)

// Renderer turns events into printable lines
type Renderer struct {
	styles     *theme.Styles
	timeFormat string
	now        func() time.Time
}

// NewRenderer creates a renderer using the given styles
func NewRenderer(styles *theme.Styles) *Renderer {
	return &Renderer{
		styles:     styles,
		timeFormat: "15:04",
		now:        time.Now,
	}
}

func (r *Renderer) stamp() string {
	return r.styles.Timestamp.Render(r.now().Format(r.timeFormat))
}

func (r *Renderer) line(parts ...string) string {
	return r.stamp() + " " + strings.Join(parts, " ")
}

// Prompt returns the input prompt
func (r *Renderer) Prompt() string {
	return r.styles.Prompt.Render("> ")
}

// Error renders a command or connection error
func (r *Renderer) Error(err error) string {
	return r.line(r.styles.Error.Render("error:"), err.Error())
}

// Info renders a plain status line
func (r *Renderer) Info(format string, args ...interface{}) string {
	return r.line(r.styles.System.Render(fmt.Sprintf(format, args...)))
}

// State renders a room state with its color
func (r *Renderer) State(s muc.State) string {
	switch s {
	case muc.StateJoined:
		return r.styles.StateJoined.Render(s.String())
	case muc.StateJoining, muc.StateLeaving:
		return r.styles.StateJoining.Render(s.String())
	default:
		return r.styles.StateUnjoined.Render(s.String())
	}
}

// Rooms renders one line per room
func (r *Renderer) Rooms(rooms []app.RoomInfo) []string {
	if len(rooms) == 0 {
		return []string{r.Info("no rooms")}
	}
	lines := make([]string, 0, len(rooms))
	for _, room := range rooms {
		lines = append(lines, r.line(r.styles.Room.Render(room.JID), r.styles.Nick.Render(room.Nick), r.State(room.State)))
	}
	return lines
}

// Render renders an event. It returns no lines for events with nothing to
// show.
func (r *Renderer) Render(ev app.EventMsg) []string {
	s := r.styles

	switch ev.Type {
	case app.EventConnected:
		return []string{r.line(s.Success.Render("connected"), fmt.Sprint(ev.Data))}

	case app.EventDisconnected:
		if err, ok := ev.Data.(error); ok && err != nil {
			return []string{r.line(s.Warning.Render("disconnected:"), err.Error())}
		}
		return []string{r.line(s.Warning.Render("disconnected"))}

	case app.EventError:
		if err, ok := ev.Data.(error); ok {
			return []string{r.Error(err)}
		}

	case app.EventMUCJoined:
		re := ev.Data.(app.RoomEvent)
		msg := "joined as"
		if re.Created {
			msg = "created as"
		}
		return []string{r.line(s.Room.Render(re.Room), s.Success.Render(msg), s.Nick.Render(re.Nick))}

	case app.EventMUCJoinFailed:
		re := ev.Data.(app.RoomEvent)
		return []string{r.line(s.Room.Render(re.Room), s.Error.Render("join failed:"), fmt.Sprint(re.Err))}

	case app.EventMUCLeft:
		re := ev.Data.(app.RoomEvent)
		if reason := departureReason(re.Status); reason != "" {
			return []string{r.line(s.Room.Render(re.Room), s.Warning.Render(reason))}
		}
		return []string{r.line(s.Room.Render(re.Room), s.System.Render("left"))}

	case app.EventMUCConfigured:
		ce := ev.Data.(app.ConfigEvent)
		if ce.Err != nil {
			return []string{r.line(s.Room.Render(ce.Room), s.Error.Render("configuration failed:"), ce.Err.Error())}
		}
		if ce.AcceptedDefaults {
			return []string{r.line(s.Room.Render(ce.Room), s.System.Render("default configuration accepted"))}
		}
		return []string{r.line(s.Room.Render(ce.Room), s.System.Render("configuration form received"))}

	case app.EventMUCMessage:
		m := ev.Data.(app.RoomMessage)
		from := s.Nick.Render("<" + m.From + ">")
		if m.Private {
			return []string{r.line(s.Room.Render(m.Room), s.Private.Render("(private)"), from, m.Body)}
		}
		return []string{r.line(s.Room.Render(m.Room), from, s.Body.Render(m.Body))}

	case app.EventRoomList:
		return r.Rooms(ev.Data.([]app.RoomInfo))

	case app.EventHelp:
		var lines []string
		for _, h := range ev.Data.([]string) {
			lines = append(lines, r.line(s.System.Render(h)))
		}
		return lines
	}

	return nil
}

func departureReason(codes []muc.StatusCode) string {
	for _, c := range codes {
		switch c {
		case muc.StatusBanned:
			return "banned from the room"
		case muc.StatusKicked:
			return "kicked from the room"
		case muc.StatusRemovedAffiliation:
			return "removed by an affiliation change"
		case muc.StatusRemovedMembersOnly:
			return "removed: room is now members-only"
		case muc.StatusRemovedShuttingDown:
			return "removed: service shutting down"
		}
	}
	if len(codes) > 0 {
		return "removed from the room"
	}
	return ""
}
