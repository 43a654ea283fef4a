package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func main() {
	_ = godotenv.Load()

	wsURL := os.Getenv("SESSION_WS_URL")
	token := os.Getenv("SESSION_TOKEN")
	command := os.Getenv("SESSION_COMMAND")
	admin := os.Getenv("SESSION_IS_ADMIN") == "true"

	if wsURL == "" {
		wsURL = "ws://localhost:8080/ws"
	}
	if token == "" {
		log.Fatal("SESSION_TOKEN is required")
	}
	window := 10 * time.Second
	if v := os.Getenv("SESSION_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("invalid SESSION_WINDOW %q: %v", v, err)
		}
		window = d
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		log.Fatalf("invalid SESSION_WS_URL: %v", err)
	}
	q := u.Query()
	q.Set("token", token)
	if admin {
		q.Set("isAdmin", "true")
	}
	u.RawQuery = q.Encode()

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.Dial(cctx, u.String(), nil)
	ccancel()
	if err != nil {
		log.Fatalf("WS connect error: %v", err)
	}
	defer conn.CloseNow()
	log.Printf("WS connected: %s", wsURL)

	if command != "" {
		if !json.Valid([]byte(command)) {
			log.Printf("SESSION_COMMAND is not valid JSON; sending as-is")
		}
		wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := conn.Write(wctx, websocket.MessageText, []byte(command))
		wcancel()
		if err != nil {
			log.Fatalf("WS write error: %v", err)
		}
		log.Printf("sent %s", command)
	}

	// Observe for a bounded window
	rctx, rcancel := context.WithTimeout(context.Background(), window)
	defer rcancel()
	n := 0
	for {
		var msg map[string]any
		if err := wsjson.Read(rctx, conn, &msg); err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
			case websocket.CloseStatus(err) != -1:
				log.Printf("WS closed: status=%d reason=%v", websocket.CloseStatus(err), err)
			default:
				log.Printf("WS read error: %v", err)
			}
			break
		}
		n++
		fmt.Printf("WS msg type=%v %s\n", msg["type"], compact(msg))
	}
	log.Printf("received %d message(s)", n)
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func compact(m map[string]any) string {
	delete(m, "type")
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprint(m)
	}
	return string(b)
}
