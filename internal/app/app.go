package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/meszmate/conference/internal/config"
	"github.com/meszmate/conference/internal/logging"
	"github.com/meszmate/conference/internal/storage/sqlite"
	"github.com/meszmate/conference/internal/xmpp"
	"github.com/meszmate/conference/internal/xmpp/muc"
	"github.com/meszmate/conference/internal/xmpp/packet"
	"mellium.im/xmpp/jid"
)

// ErrUnknownRoom is returned for commands on a room that was never opened
var ErrUnknownRoom = errors.New("unknown room")

// Connection is the live XMPP session the app drives
type Connection interface {
	muc.Stream
	Connect() error
	Disconnect() error
	IsConnected() bool
}

// RoomInfo is a snapshot of one room for display
type RoomInfo struct {
	JID   string
	Nick  string
	State muc.State
}

// App represents the main application
type App struct {
	cfg     *config.Config
	account config.Account
	conn    Connection
	manager *muc.Manager
	events  chan EventMsg
	ctx     context.Context
	cancel  context.CancelFunc

	mu    sync.Mutex
	bound map[string]bool

	// SQLite storage for bookmarks
	storage *sqlite.DB

	closeOnce sync.Once
}

// OpenStorage opens the database in the data directory. Storage is optional:
// it returns nil, logging why, when it cannot be opened.
func OpenStorage(cfg *config.Config) *sqlite.DB {
	if cfg.General.DataDir == "" {
		return nil
	}
	storage, err := sqlite.New(cfg.General.DataDir)
	if err != nil {
		logging.Warn("failed to initialize storage: %v", err)
		return nil
	}
	return storage
}

// New creates a new App for the given account. The app takes ownership of
// storage, which may be nil.
func New(cfg *config.Config, acc config.Account, storage *sqlite.DB) (*App, error) {
	client, err := xmpp.NewClient(xmpp.ClientConfig{
		JID:       acc.JID,
		Password:  acc.Password,
		Server:    acc.Server,
		Port:      acc.Port,
		Resource:  acc.Resource,
		Priority:  acc.Priority,
		IQTimeout: cfg.MUC.IQTimeout.Duration,
	})
	if err != nil {
		return nil, err
	}

	a := newApp(cfg, acc, client, client.Tracker(), storage)

	client.SetConnectHandler(func() {
		a.sendEvent(EventMsg{Type: EventConnected, Data: acc.JID})
	})
	client.SetDisconnectHandler(a.handleDisconnect)
	client.SetErrorHandler(func(err error) {
		a.sendEvent(EventMsg{Type: EventError, Data: err})
	})

	return a, nil
}

func newApp(cfg *config.Config, acc config.Account, conn Connection, tr muc.Tracker, storage *sqlite.DB) *App {
	ctx, cancel := context.WithCancel(context.Background())

	nick := cfg.MUC.DefaultNick
	if nick == "" {
		if j, err := jid.Parse(acc.JID); err == nil {
			nick = j.Localpart()
		}
	}

	a := &App{
		cfg:     cfg,
		account: acc,
		conn:    conn,
		events:  make(chan EventMsg, 100),
		ctx:     ctx,
		cancel:  cancel,
		bound:   make(map[string]bool),
		storage: storage,
	}
	a.manager = muc.NewManager(ctx, conn, tr, muc.ManagerConfig{
		Nick:                nick,
		AcceptDefaultConfig: cfg.MUC.AcceptDefaultConfig,
		JoinTimeout:         cfg.MUC.JoinTimeout.Duration,
		NewID:               packet.NewID,
	})
	return a
}

// Events returns the channel on which the app reports what happens
func (a *App) Events() <-chan EventMsg {
	return a.events
}

// Manager returns the room registry
func (a *App) Manager() *muc.Manager {
	return a.manager
}

// ListenForEvents waits for the next event and hands it to the UI. The UI
// re-issues it after every event it receives.
func (a *App) ListenForEvents() tea.Cmd {
	return func() tea.Msg {
		select {
		case event := <-a.events:
			return event
		case <-a.ctx.Done():
			return nil
		}
	}
}

// sendEvent sends an event to the UI
func (a *App) sendEvent(event EventMsg) {
	select {
	case <-a.ctx.Done():
	case a.events <- event:
	default:
		logging.Warn("event channel full, dropping %s event", event.Type)
	}
}

// handleDisconnect is called when the session ends. Room memberships do not
// survive the stream, so every room goes back to unjoined.
func (a *App) handleDisconnect(err error) {
	a.manager.Reset()
	a.sendEvent(EventMsg{Type: EventDisconnected, Data: err})
}

// Connect connects the account and joins every autojoin room
func (a *App) Connect() error {
	if err := a.conn.Connect(); err != nil {
		return err
	}
	a.autoJoin()
	return nil
}

type autoJoinRoom struct {
	jid      string
	nick     string
	password string
	accept   *bool
}

func (a *App) autoJoinRooms() []autoJoinRoom {
	seen := make(map[string]bool)
	var rooms []autoJoinRoom

	for _, r := range a.cfg.Rooms {
		if !r.AutoJoin || seen[r.JID] {
			continue
		}
		seen[r.JID] = true
		rooms = append(rooms, autoJoinRoom{jid: r.JID, nick: r.Nick, password: r.Password, accept: r.AcceptDefaultConfig})
	}

	if a.bookmarks() {
		bookmarks, err := a.storage.GetBookmarks(a.accountKey())
		if err != nil {
			logging.Warn("failed to load bookmarks: %v", err)
		}
		for _, b := range bookmarks {
			if !b.AutoJoin || seen[b.RoomJID] {
				continue
			}
			seen[b.RoomJID] = true
			accept := b.AcceptDefaults
			rooms = append(rooms, autoJoinRoom{jid: b.RoomJID, nick: b.Nick, password: b.Password, accept: &accept})
		}
	}

	return rooms
}

func (a *App) autoJoin() {
	for _, r := range a.autoJoinRooms() {
		room, err := a.openRoom(r.jid, r.nick, r.password)
		if err != nil {
			logging.Warn("autojoin %s: %v", r.jid, err)
			continue
		}
		if r.accept != nil {
			room.SetDefaultConfig(*r.accept)
		}
		if err := room.Join(); err != nil {
			logging.Warn("autojoin %s: %v", r.jid, err)
		}
	}
}

// openRoom returns the room for roomJID, wiring the app's handlers the first
// time it is seen.
func (a *App) openRoom(roomJID, nick, password string) (*muc.Room, error) {
	addr, err := muc.ParseRoom(roomJID)
	if err != nil {
		return nil, err
	}

	room, err := a.manager.GetRoom(addr)
	if err != nil {
		return nil, err
	}

	if nick != "" && nick != room.Nick() {
		if err := room.SetNick(nick); err != nil {
			return nil, err
		}
	}
	if password != "" {
		room.SetPassword(password)
	}

	key := room.JID().String()
	a.mu.Lock()
	first := !a.bound[key]
	a.bound[key] = true
	a.mu.Unlock()
	if first {
		a.bindRoom(room)
	}

	return room, nil
}

func (a *App) bindRoom(room *muc.Room) {
	room.OnJoined(func(r *muc.Room, created bool) {
		logging.Info("joined %s as %s", r.JID(), r.Nick())
		a.sendEvent(EventMsg{Type: EventMUCJoined, Data: RoomEvent{Room: r.JID().String(), Nick: r.Nick(), Created: created}})
	})
	room.OnJoinError(func(r *muc.Room, err error) {
		logging.Warn("joining %s failed: %v", r.JID(), err)
		a.sendEvent(EventMsg{Type: EventMUCJoinFailed, Data: RoomEvent{Room: r.JID().String(), Nick: r.Nick(), Err: err}})
	})
	room.OnDeparted(func(r *muc.Room, status muc.StatusSet) {
		logging.Info("removed from %s (status %v)", r.JID(), status.Codes())
		a.sendEvent(EventMsg{Type: EventMUCLeft, Data: RoomEvent{Room: r.JID().String(), Nick: r.Nick(), Status: status.Codes()}})
	})
	room.OnConfig(func(res muc.ConfigResult) {
		a.sendEvent(EventMsg{Type: EventMUCConfigured, Data: ConfigEvent{
			Room:             res.Room.String(),
			AcceptedDefaults: res.AcceptedDefaults,
			FormReceived:     res.Form != nil,
			Err:              res.Err,
		}})
	})
	room.OnMessage(func(r *muc.Room, s *packet.Stanza) {
		if s.Body == "" {
			return
		}
		from, _ := s.FromJID()
		a.sendEvent(EventMsg{Type: EventMUCMessage, Data: RoomMessage{
			ID:      s.ID,
			Room:    r.JID().String(),
			From:    from.Resourcepart(),
			Body:    s.Body,
			Private: s.Type == "chat",
		}})
	})
}

func (a *App) existingRoom(roomJID string) (*muc.Room, error) {
	addr, err := muc.ParseRoom(roomJID)
	if err != nil {
		return nil, err
	}
	if !a.manager.HasRoom(addr) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoom, addr.Bare())
	}
	return a.manager.GetRoom(addr)
}

// JoinRoom joins a room and bookmarks it
func (a *App) JoinRoom(roomJID, nick, password string) error {
	room, err := a.openRoom(roomJID, nick, password)
	if err != nil {
		return err
	}
	if err := room.Join(); err != nil {
		return err
	}

	if a.bookmarks() {
		err := a.storage.SaveBookmark(sqlite.Bookmark{
			Account:        a.accountKey(),
			RoomJID:        room.JID().String(),
			Nick:           room.Nick(),
			Password:       password,
			AcceptDefaults: room.DefaultConfig(),
			AutoJoin:       true,
		})
		if err != nil {
			logging.Warn("failed to save bookmark for %s: %v", room.JID(), err)
		}
	}
	return nil
}

// LeaveRoom leaves a room. The room stays registered so it can be rejoined.
func (a *App) LeaveRoom(roomJID, reason string) error {
	room, err := a.existingRoom(roomJID)
	if err != nil {
		return err
	}
	if err := room.Leave(reason); err != nil {
		return err
	}
	a.sendEvent(EventMsg{Type: EventMUCLeft, Data: RoomEvent{Room: room.JID().String(), Nick: room.Nick()}})
	return nil
}

// RemoveRoom forgets a room and its bookmark without notifying the service
func (a *App) RemoveRoom(roomJID string) error {
	addr, err := muc.ParseRoom(roomJID)
	if err != nil {
		return err
	}
	a.manager.RemoveRoom(addr)

	key := addr.Bare().String()
	a.mu.Lock()
	delete(a.bound, key)
	a.mu.Unlock()

	if a.bookmarks() {
		if err := a.storage.DeleteBookmark(a.accountKey(), key); err != nil {
			logging.Warn("failed to delete bookmark for %s: %v", key, err)
		}
	}
	return nil
}

// SendRoomMessage sends a message to every occupant of a room
func (a *App) SendRoomMessage(roomJID, body string) (string, error) {
	room, err := a.existingRoom(roomJID)
	if err != nil {
		return "", err
	}
	return room.PublicMessage(body)
}

// SendPrivateMessage sends a message to one occupant of a room
func (a *App) SendPrivateMessage(roomJID, nick, body string) (string, error) {
	room, err := a.existingRoom(roomJID)
	if err != nil {
		return "", err
	}
	return room.PrivateMessage(nick, body)
}

// Rooms returns the open rooms sorted by address
func (a *App) Rooms() []RoomInfo {
	rooms := a.manager.Rooms()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, RoomInfo{JID: r.JID().String(), Nick: r.Nick(), State: r.State()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].JID < infos[j].JID })
	return infos
}

func (a *App) bookmarks() bool {
	return a.storage != nil && a.cfg.Storage.Bookmarks
}

func (a *App) accountKey() string {
	if j, err := jid.Parse(a.account.JID); err == nil {
		return j.Bare().String()
	}
	return a.account.JID
}

// Done is closed once the app shuts down
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// Close leaves joined rooms, disconnects and releases storage
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.conn.IsConnected() {
			for _, room := range a.manager.JoinedRooms() {
				if err := room.Leave(""); err != nil {
					logging.Warn("leaving %s: %v", room.JID(), err)
				}
			}
		}
		a.manager.Close()
		if err := a.conn.Disconnect(); err != nil {
			logging.Warn("disconnect failed: %v", err)
		}
		a.cancel()
		if a.storage != nil {
			a.storage.Close()
		}
	})
}
