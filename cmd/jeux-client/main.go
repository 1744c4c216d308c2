// Command jeux-client is an interactive terminal client for a jeux
// server: it logs in, lists other connected users, sends and receives
// invitations, and plays tic-tac-toe against an accepted opponent.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/mkbarrett/jeux/internal/config"
	"github.com/mkbarrett/jeux/internal/protocol"
	"github.com/mkbarrett/jeux/internal/session"
	"github.com/mkbarrett/jeux/internal/sound"
	"github.com/mkbarrett/jeux/internal/tui"
)

func main() {
	cfg, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.IsServer {
		fmt.Fprintln(os.Stderr, "Error: jeux-client requires --join, not --server")
		os.Exit(1)
	}
	if cfg.Username == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		os.Exit(1)
	}

	addr := cfg.ServerAddr
	if !strings.Contains(addr, ":") {
		addr = fmt.Sprintf("%s:%d", addr, config.DefaultPort)
	}

	sess, err := session.Dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	if err := sess.Login(cfg.Username); err != nil {
		fmt.Fprintf(os.Stderr, "Error logging in: %v\n", err)
		os.Exit(1)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		runHeadless(sess)
		return
	}

	_ = sound.Init()
	defer sound.Close()

	screen, err := tui.InitScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	a := newApp(cfg.Username, sess, screen)
	a.run()
}

// gameMode is the current screen the client is showing.
type gameMode int

const (
	modeLobby gameMode = iota
	modeInvitePrompt
	modeInviteEntry
	modeGame
	modeEnded
)

type pendingInvite struct {
	id     uint8
	role   protocol.Role
	source string
}

type activeGame struct {
	id       uint8
	role     protocol.Role
	board    string
	myTurn   bool
	opponent string
}

type app struct {
	username string
	sess     *session.Session
	screen   *tui.Screen
	renderer *tui.Renderer

	mode         gameMode
	status       string
	users        []tui.User
	invite       *pendingInvite
	inviteBuf    string
	invited      map[uint8]string
	game         *activeGame
	lastResult   string
	lastOpponent string
}

func newApp(username string, sess *session.Session, screen *tui.Screen) *app {
	return &app{
		username: username,
		sess:     sess,
		screen:   screen,
		renderer: tui.NewRenderer(screen),
		mode:     modeLobby,
		invited:  make(map[uint8]string),
	}
}

func (a *app) run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	events := make(chan tcell.Event)
	go func() {
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	a.refreshUsers()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	a.render()

	for {
		select {
		case <-sigCh:
			return

		case ev := <-events:
			if a.handleEvent(ev) {
				return
			}
			a.render()

		case <-ticker.C:
			if a.mode == modeLobby {
				a.refreshUsers()
				a.render()
			}

		case inv := <-a.sess.Invited:
			a.invite = &pendingInvite{id: inv.ID, role: inv.Role, source: inv.Source}
			a.mode = modeInvitePrompt
			sound.PlayInvited()
			a.render()

		case id := <-a.sess.Revoked:
			if a.invite != nil && a.invite.id == id {
				a.invite = nil
				a.mode = modeLobby
				a.status = "invitation revoked"
			}
			a.render()

		case acc := <-a.sess.Accepted:
			sound.PlayAccepted()
			opponent := a.invited[acc.ID]
			delete(a.invited, acc.ID)
			a.startGame(acc.ID, acc.Board, opponent)
			a.render()

		case id := <-a.sess.Declined:
			delete(a.invited, id)
			a.status = "invitation declined"
			a.render()

		case mv := <-a.sess.Moved:
			if a.game != nil && a.game.id == mv.ID {
				a.game.board = mv.Board
				a.game.myTurn = true
				sound.PlayMoved()
			}
			a.render()

		case end := <-a.sess.Ended:
			if a.game != nil && a.game.id == end.ID {
				a.finishGame(end.Winner)
			}
			a.render()

		case err := <-a.sess.Err:
			a.status = fmt.Sprintf("connection lost: %v", err)
			a.render()
			time.Sleep(2 * time.Second)
			return
		}
	}
}

func (a *app) refreshUsers() {
	listing, err := a.sess.Users()
	if err != nil {
		a.status = fmt.Sprintf("error fetching users: %v", err)
		return
	}
	a.users = a.users[:0]
	for _, line := range strings.Split(strings.TrimRight(listing, "\n"), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		rating, _ := strconv.Atoi(parts[1])
		if parts[0] == a.username {
			continue
		}
		a.users = append(a.users, tui.User{Name: parts[0], Rating: rating})
	}
}

func (a *app) startGame(id uint8, board, opponent string) {
	role := protocol.SecondRole
	myTurn := board != ""
	if board != "" {
		role = protocol.FirstPlayerRole
	}
	a.game = &activeGame{id: id, role: role, board: board, myTurn: myTurn, opponent: opponent}
	a.invite = nil
	a.mode = modeGame
}

func (a *app) finishGame(winner protocol.Role) {
	switch {
	case winner == protocol.NullRole:
		a.lastResult = "draw"
	case a.game != nil && winner == a.game.role:
		a.lastResult = "you won"
	default:
		a.lastResult = "you lost"
	}
	sound.PlayEnded(a.lastResult == "you won", a.lastResult == "draw")
	if a.game != nil {
		a.lastOpponent = a.game.opponent
	}
	a.mode = modeEnded
	a.game = nil
}

// handleEvent processes one tcell event. It returns true if the client
// should quit.
func (a *app) handleEvent(ev tcell.Event) bool {
	key, ok := ev.(*tcell.EventKey)
	if !ok {
		if _, ok := ev.(*tcell.EventResize); ok {
			a.screen.Clear()
		}
		return false
	}

	switch a.mode {
	case modeLobby:
		return a.handleLobbyKey(key)
	case modeInvitePrompt:
		return a.handleInvitePromptKey(key)
	case modeInviteEntry:
		return a.handleInviteEntryKey(key)
	case modeGame:
		return a.handleGameKey(key)
	case modeEnded:
		if tui.IsQuitKey(key.Key(), key.Rune()) {
			return true
		}
		a.mode = modeLobby
		a.refreshUsers()
		return false
	}
	return false
}

func (a *app) handleLobbyKey(key *tcell.EventKey) bool {
	if tui.IsQuitKey(key.Key(), key.Rune()) {
		return true
	}
	if key.Rune() == 'i' || key.Rune() == 'I' {
		a.inviteBuf = ""
		a.mode = modeInviteEntry
	}
	return false
}

func (a *app) handleInviteEntryKey(key *tcell.EventKey) bool {
	switch key.Key() {
	case tcell.KeyEscape:
		a.mode = modeLobby
	case tcell.KeyEnter:
		if a.inviteBuf == "" {
			a.mode = modeLobby
			return false
		}
		a.sendInvite(a.inviteBuf, protocol.FirstPlayerRole)
		a.mode = modeLobby
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(a.inviteBuf) > 0 {
			a.inviteBuf = a.inviteBuf[:len(a.inviteBuf)-1]
		}
	default:
		if key.Key() == tcell.KeyRune {
			a.inviteBuf += string(key.Rune())
		}
	}
	return false
}

func (a *app) sendInvite(target string, role protocol.Role) {
	id, err := a.sess.Invite(target, role)
	if err != nil {
		a.status = fmt.Sprintf("invite failed: %v", err)
		return
	}
	a.invited[id] = target
	a.status = fmt.Sprintf("invited %s", target)
}

func (a *app) handleInvitePromptKey(key *tcell.EventKey) bool {
	if a.invite == nil {
		a.mode = modeLobby
		return false
	}
	switch key.Rune() {
	case 'a', 'A':
		board, err := a.sess.Accept(a.invite.id)
		if err != nil {
			a.status = fmt.Sprintf("accept failed: %v", err)
			a.mode = modeLobby
			a.invite = nil
			return false
		}
		a.startGame(a.invite.id, board, a.invite.source)
		sound.PlayAccepted()
	case 'd', 'D':
		_ = a.sess.Decline(a.invite.id)
		a.invite = nil
		a.mode = modeLobby
	}
	if tui.IsQuitKey(key.Key(), key.Rune()) {
		return true
	}
	return false
}

func (a *app) handleGameKey(key *tcell.EventKey) bool {
	if a.game == nil {
		a.mode = modeLobby
		return false
	}
	if key.Rune() == 'r' || key.Rune() == 'R' {
		_ = a.sess.Resign(a.game.id)
		return false
	}
	if tui.IsQuitKey(key.Key(), key.Rune()) {
		return true
	}
	if key.Rune() >= '1' && key.Rune() <= '9' && a.game.myTurn {
		if err := a.sess.Move(a.game.id, string(key.Rune())); err != nil {
			a.status = fmt.Sprintf("move rejected: %v", err)
			return false
		}
		a.game.myTurn = false
	}
	return false
}

func (a *app) render() {
	switch a.mode {
	case modeLobby:
		a.renderer.RenderLobby(a.username, a.users, a.status)
	case modeInviteEntry:
		a.renderer.RenderLobby(a.username, a.users, "invite: "+a.inviteBuf+"_")
	case modeInvitePrompt:
		// a.invite.role is the role this client would be assigned; the
		// prompt names the inviter's role, the opposite one.
		if a.invite != nil {
			a.renderer.RenderInvitePrompt(a.invite.source, a.invite.role.Opposite().String())
		}
	case modeGame:
		if a.game != nil {
			opponent := a.game.opponent
			if opponent == "" {
				opponent = "opponent"
			}
			a.renderer.RenderBoard(opponent, a.game.board, a.game.myTurn)
		}
	case modeEnded:
		opponent := a.lastOpponent
		if opponent == "" {
			opponent = "opponent"
		}
		a.renderer.RenderEnded(opponent, a.lastResult)
	}
}

// runHeadless drives the session from line-oriented commands on stdin
// instead of the full-screen renderer, for scripted or piped sessions
// where stdout isn't a terminal. Commands: "users", "invite <name> <x|o>",
// "accept <id>", "decline <id>", "move <id> <1-9>", "resign <id>", "quit".
func runHeadless(sess *session.Session) {
	go func() {
		for {
			select {
			case inv := <-sess.Invited:
				fmt.Printf("invited id=%d by=%s role=%s\n", inv.ID, inv.Source, inv.Role)
			case id := <-sess.Revoked:
				fmt.Printf("revoked id=%d\n", id)
			case acc := <-sess.Accepted:
				fmt.Printf("accepted id=%d board=%q\n", acc.ID, acc.Board)
			case id := <-sess.Declined:
				fmt.Printf("declined id=%d\n", id)
			case mv := <-sess.Moved:
				fmt.Printf("moved id=%d board=%q\n", mv.ID, mv.Board)
			case end := <-sess.Ended:
				fmt.Printf("ended id=%d winner=%s\n", end.ID, end.Winner)
			case err := <-sess.Err:
				fmt.Printf("connection error: %v\n", err)
				os.Exit(1)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]
		var arg1, arg2 string
		if len(fields) > 1 {
			arg1 = fields[1]
		}
		if len(fields) > 2 {
			arg2 = fields[2]
		}

		switch cmd {
		case "users":
			listing, err := sess.Users()
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Print(listing)
		case "invite":
			role := protocol.FirstPlayerRole
			if strings.EqualFold(arg2, "o") {
				role = protocol.SecondRole
			}
			id, err := sess.Invite(arg1, role)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("ok id=%d\n", id)
		case "accept":
			id, _ := strconv.Atoi(arg1)
			board, err := sess.Accept(uint8(id))
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("ok board=%q\n", board)
		case "decline":
			id, _ := strconv.Atoi(arg1)
			if err := sess.Decline(uint8(id)); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "move":
			id, _ := strconv.Atoi(arg1)
			if err := sess.Move(uint8(id), arg2); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "resign":
			id, _ := strconv.Atoi(arg1)
			if err := sess.Resign(uint8(id)); err != nil {
				fmt.Printf("error: %v\n", err)
			}
		case "quit":
			return
		}
	}
}
