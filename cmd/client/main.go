// Command client is a small terminal chat client used for manual testing
// against a running server. It self-issues an identity assertion from
// the shared secret, so it only works against deployments it knows the
// secret of.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"

	"realtalk/auth"
	"realtalk/domain"
	"realtalk/server"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "Server host:port")
	secret := flag.String("secret", "", "Shared identity secret")
	userID := flag.String("user", "", "User id (random when empty)")
	name := flag.String("name", "guest", "Display name")
	room := flag.String("room", "", "Room id to join")
	password := flag.String("password", "", "Room password (private rooms)")
	list := flag.Bool("list", false, "List rooms and exit")
	create := flag.String("create", "", "Create a room with this name and exit")
	private := flag.Bool("private", false, "Make the created room private")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "Presence heartbeat interval")
	flag.Parse()

	if *secret == "" {
		log.Fatal("A shared secret is required (-secret)")
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	verifier := auth.NewVerifier([]byte(*secret))
	token, err := verifier.Issue(domain.User{ID: *userID, DisplayName: *name}, time.Hour)
	if err != nil {
		log.Fatal("Failed to issue token: ", err)
	}

	switch {
	case *list:
		listRooms(*addr, token)
	case *create != "":
		createRoom(*addr, token, *create, *private, *password)
	default:
		if *room == "" {
			log.Fatal("A room id is required (-room), or use -list / -create")
		}
		runSession(*addr, token, *room, *password, *name, *heartbeat)
	}
}

func listRooms(addr, token string) {
	var rooms []server.WireRoom
	if err := getJSON(addr, "/rooms", token, &rooms); err != nil {
		log.Fatal("Failed to list rooms: ", err)
	}
	for _, room := range rooms {
		lock := ""
		if room.Visibility == string(domain.VisibilityPrivate) {
			lock = color.Yellow.Render(" [private]")
		}
		fmt.Printf("%s  %s%s (by %s)\n",
			color.Cyan.Render(room.Id), room.Name, lock, room.OwnerName)
	}
}

func createRoom(addr, token, name string, private bool, password string) {
	visibility := domain.VisibilityPublic
	if private {
		visibility = domain.VisibilityPrivate
	}
	payload := auth.RoomPayload{Name: name, Visibility: string(visibility), Password: password}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequest(http.MethodPost, "http://"+addr+"/rooms", strings.NewReader(string(body)))
	if err != nil {
		log.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal("Failed to create room: ", err)
	}
	defer resp.Body.Close()

	var room server.WireRoom
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		log.Fatal("Unexpected response: ", err)
	}
	fmt.Printf("Created room %s\n", color.Cyan.Render(room.Id))
}

func getJSON(addr, path, token string, out any) error {
	req, err := http.NewRequest(http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func runSession(addr, token, room, password, name string, heartbeat time.Duration) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	q := u.Query()
	q.Set("token", token)
	q.Set("room", room)
	if password != "" {
		q.Set("password", password)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("Failed to connect: ", err)
	}
	defer conn.Close()

	header := color.New(color.BgBlack, color.FgGreen).Render(fmt.Sprintf(" %s @ %s ", name, room))
	fmt.Println(header)

	go readLoop(conn)
	go heartbeatLoop(conn, heartbeat)
	writeLoop(conn)
}

func readLoop(conn *websocket.Conn) {
	for {
		var frame server.ServerFrame
		if err := conn.ReadJSON(&frame); err != nil {
			color.Red.Println("Connection closed: ", err)
			os.Exit(1)
		}
		render(frame)
	}
}

func render(frame server.ServerFrame) {
	switch {
	case frame.Snapshot != nil:
		for _, msg := range frame.Snapshot.Messages {
			printMessage(msg)
		}
		online := make([]string, 0, len(frame.Snapshot.Presence))
		for _, p := range frame.Snapshot.Presence {
			online = append(online, p.User.DisplayName)
		}
		color.Gray.Printf("-- online: %s --\n", strings.Join(online, ", "))
	case frame.Error != nil:
		suffix := ""
		if frame.Error.RetryAfterMs > 0 {
			suffix = fmt.Sprintf(" (retry in %dms)", frame.Error.RetryAfterMs)
		}
		color.Red.Printf("error [%s]: %s%s\n", frame.Error.Code, frame.Error.Detail, suffix)
	case frame.Event != nil:
		renderEvent(frame.Event)
	}
}

func renderEvent(evt *server.EventPayload) {
	switch evt.Kind {
	case server.EventMessageAdded:
		printMessage(*evt.Message)
	case server.EventMessageEdited:
		fmt.Printf("%s ", color.Gray.Render("(edited)"))
		printMessage(*evt.Message)
	case server.EventMessageDeleted:
		color.Gray.Printf("-- message %s deleted --\n", evt.MessageId)
	case server.EventReactionChanged:
		verb := "reacted " + evt.Emoji + " to"
		if !evt.Added {
			verb = "took back " + evt.Emoji + " from"
		}
		color.Gray.Printf("-- %s %s %s --\n", evt.UserId, verb, evt.Message.Id)
	case server.EventPresenceChanged:
		color.Gray.Printf("-- %s is online --\n", evt.Presence.User.DisplayName)
	}
}

func printMessage(msg server.WireMessage) {
	reactions := ""
	for emoji, users := range msg.Reactions {
		reactions += fmt.Sprintf(" %s×%d", emoji, len(users))
	}
	fmt.Printf("%s %s%s %s\n",
		color.Cyan.Render(msg.Author.DisplayName),
		msg.Body,
		color.Yellow.Render(reactions),
		color.Gray.Render(msg.Id[:8]+" "+msg.CreatedAt.Local().Format("15:04:05")))
}

func heartbeatLoop(conn *websocket.Conn, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		frame := server.ClientFrame{Heartbeat: &server.HeartbeatPayload{}}
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// writeLoop reads stdin: plain lines become sends, lines starting with a
// slash are commands (/edit, /delete, /react, /unreact, /quit).
func writeLoop(conn *websocket.Conn) {
	scanner := bufio.NewScanner(os.Stdin)
	id := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id++

		frame, err := parseLine(line, id)
		if err != nil {
			color.Red.Println(err)
			continue
		}
		if frame == nil {
			return
		}
		if err := conn.WriteJSON(frame); err != nil {
			color.Red.Println("Failed to send: ", err)
			return
		}
	}
}

func parseLine(line string, id int) (*server.ClientFrame, error) {
	if !strings.HasPrefix(line, "/") {
		return &server.ClientFrame{Id: id, Send: &server.SendPayload{
			Body:       line,
			DedupToken: uuid.NewString(),
		}}, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return nil, nil
	case "/edit":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: /edit <message-id> <new body>")
		}
		return &server.ClientFrame{Id: id, Edit: &server.EditPayload{
			MessageId: fields[1],
			NewBody:   strings.Join(fields[2:], " "),
		}}, nil
	case "/delete":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: /delete <message-id>")
		}
		return &server.ClientFrame{Id: id, Delete: &server.DeletePayload{MessageId: fields[1]}}, nil
	case "/react", "/unreact":
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: %s <message-id> <emoji>", fields[0])
		}
		return &server.ClientFrame{Id: id, React: &server.ReactPayload{
			MessageId: fields[1],
			Emoji:     fields[2],
			Add:       fields[0] == "/react",
		}}, nil
	default:
		return nil, fmt.Errorf("unknown command %s", fields[0])
	}
}
