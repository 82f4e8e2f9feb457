// Command roomchat is a terminal participant: it creates or joins a room,
// follows it live and sends chat, "!" commands and /leave.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/0Azuree/Ledeqth-sub000/internal/client"
	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/0Azuree/Ledeqth-sub000/internal/domain"
)

type options struct {
	server   string
	appID    string
	username string
	userID   string
	room     string
	create   bool
	verbose  bool
}

func parseFlags() options {
	var o options
	pflag.StringVarP(&o.server, "server", "s", "http://localhost:8080/api", "API base URL")
	pflag.StringVar(&o.appID, "app-id", "rooms", "application id sent with every request")
	pflag.StringVarP(&o.username, "name", "n", "", "display name (3-12 characters)")
	pflag.StringVar(&o.userID, "user-id", "", "reuse an existing user id instead of requesting an identity")
	pflag.StringVarP(&o.room, "room", "r", "", "room code to join")
	pflag.BoolVarP(&o.create, "create", "c", false, "create a new room")
	pflag.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	pflag.Parse()
	return o
}

func main() {
	o := parseFlags()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if o.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if err := domain.CheckClientUsername(o.username); err != nil {
		fmt.Fprintf(os.Stderr, "--name: %v\n", err)
		os.Exit(2)
	}
	if o.create == (o.room != "") {
		fmt.Fprintln(os.Stderr, "pass exactly one of --create or --room")
		os.Exit(2)
	}
	code := domain.RoomCode(strings.ToUpper(strings.TrimSpace(o.room)))
	if !o.create && !code.Valid() {
		fmt.Fprintf(os.Stderr, "--room: %q is not %d letters A-Z\n", o.room, domain.RoomCodeLen)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, o, code); err != nil {
		fmt.Fprintln(os.Stderr, "error:", domain.MessageOf(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, code domain.RoomCode) error {
	api := client.NewAPI(o.server, o.appID)

	user := domain.User{ID: domain.UserID(o.userID), Username: strings.TrimSpace(o.username)}
	if user.ID == "" {
		var err error
		if user, err = api.Identity(ctx, user.Username); err != nil {
			return err
		}
	}

	if o.create {
		var err error
		if code, err = client.CreateRoom(ctx, api, user); err != nil {
			return err
		}
		fmt.Printf("Created room %s. Share the code to invite others.\n", code)
	}
	room, err := api.JoinRoom(ctx, code, user)
	if err != nil {
		return err
	}

	sess, err := client.Open(ctx, api, user, room, &terminal{self: user.ID})
	if err != nil {
		return err
	}
	defer sess.Close()
	printRoom(room)

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return leave(api, sess)
		case <-sess.Done():
			fmt.Printf("You are no longer in room %s (%s).\n", code, sess.Reason())
			return nil
		case line, ok := <-lines:
			if !ok {
				return leave(api, sess)
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/leave":
				return leave(api, sess)
			case line == "/who":
				if r := sess.Room(); r != nil {
					printRoom(r)
				}
			case core.IsCommand(line):
				msg, err := api.AdminCommand(ctx, code, user, line, nil)
				if err != nil {
					fmt.Println("!", domain.MessageOf(err))
					continue
				}
				fmt.Println("*", msg)
			default:
				if err := sess.Say(line); err != nil {
					return err
				}
			}
		}
	}
}

func leave(api *client.API, sess *client.Session) error {
	sess.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := api.LeaveRoom(ctx, sess.Code, sess.User)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func printRoom(r *domain.Room) {
	var names []string
	for _, m := range r.Members {
		name := m.Username
		if m.UserID == r.OwnerID {
			name += " (owner)"
		}
		names = append(names, name)
	}
	state := "open"
	if r.IsLocked {
		state = "locked"
	}
	fmt.Printf("Room %s [%s]: %s\n", r.Code, state, strings.Join(names, ", "))
}

// terminal prints session events as they arrive.
type terminal struct {
	self      domain.UserID
	lastCount int
}

func (t *terminal) RoomChanged(r *domain.Room) {
	if len(r.Members) != t.lastCount {
		t.lastCount = len(r.Members)
		printRoom(r)
	}
}

func (t *terminal) Notified(n domain.Notification) {
	if n.ActorID == t.self && n.Action != domain.ActionJoin {
		return
	}
	fmt.Println("*", n.Message)
}

func (t *terminal) Chat(m domain.ChatMessage) {
	fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format(time.Kitchen), m.Username, m.Text)
}

func (t *terminal) ServerError(msg string) { fmt.Println("!", msg) }

func (t *terminal) Closed(reason string) {
	if reason != client.ReasonClosed {
		fmt.Println("* session ended:", reason)
	}
}
