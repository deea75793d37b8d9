package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/wirechat-sync/internal/conn"
	"github.com/vovakirdan/wirechat-sync/internal/event"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("CHATSYNC_TOKEN"), "bearer credential")
	chats := flag.String("chats", "", "comma-separated chat ids to subscribe")
	typing := flag.Bool("typing", false, "send a typing frame to every chat after subscribing")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ids, err := parseIDs(*chats)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dialer := &conn.WSDialer{}
	t, err := dialer.Dial(ctx, *addr, *token)
	if err != nil {
		return err
	}
	defer t.Close(conn.CloseNormal, "bye")

	send := func(f proto.Frame) error {
		data, marshalErr := json.Marshal(f)
		if marshalErr != nil {
			return fmt.Errorf("marshal %s: %w", f.Type, marshalErr)
		}
		if writeErr := t.Write(ctx, data); writeErr != nil {
			return fmt.Errorf("send %s: %w", f.Type, writeErr)
		}
		return nil
	}

	if err := send(proto.SubscribeAll(ids)); err != nil {
		return err
	}
	if *typing {
		for _, id := range ids {
			if err := send(proto.Typing(id)); err != nil {
				return err
			}
		}
	}
	if err := send(proto.Ping()); err != nil {
		return err
	}

	for {
		data, err := t.Read(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		ev, err := proto.Decode(data)
		if err != nil {
			fmt.Printf("Skipped frame: %v: %s\n", err, data)
			continue
		}

		switch ev := ev.(type) {
		case event.SubscribedAll:
			fmt.Printf("Subscribed: count=%d\n", ev.Count)
		case event.NewMessage:
			fmt.Printf("Message: chat=%d id=%d author=%d text=%q\n", ev.ChatID, ev.Message.ID, ev.Message.Author.ID, ev.Message.Body)
		case event.Typing:
			fmt.Printf("Typing: chat=%d user=%d\n", ev.ChatID, ev.UserID)
		case event.Presence:
			fmt.Printf("Presence: user=%d status=%s\n", ev.UserID, ev.Status)
		default:
			fmt.Printf("Received: type=%s\n", ev.Type())
		}
	}
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chat id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
