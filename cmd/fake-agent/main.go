// ABOUTME: Minimal fake agent for E2E testing; connects to the ingest socket and streams events
// ABOUTME: Usage: fake-agent [-addr localhost:8080] [-id test-agent] [-key KEY]

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "gateway HTTP address")
	agentID := flag.String("id", "test-agent", "agent ID")
	key := flag.String("key", os.Getenv("ORBIT_AGENT_KEY"), "shared agent key")
	heartbeat := flag.Duration("heartbeat", 30*time.Second, "heartbeat interval")
	flag.Parse()

	if *key == "" {
		log.Fatal("agent key is required (-key or ORBIT_AGENT_KEY)")
	}

	if err := run(*addr, *agentID, *key, *heartbeat); err != nil {
		log.Fatal(err)
	}
}

func run(addr, agentID, key string, heartbeat time.Duration) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     addr,
		Path:     "/ws/agent",
		RawQuery: "agent_id=" + url.QueryEscape(agentID),
	}
	header := http.Header{"X-Agent-Key": []string{key}}

	ws, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	fmt.Fprintf(os.Stderr, "linked as %s\n", agentID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	started := time.Now()

	send := func(ev map[string]any) error {
		ev["id"] = uuid.New().String()
		return ws.WriteJSON(ev)
	}

	if err := send(map[string]any{"type": "agent:started", "status": "running"}); err != nil {
		return fmt.Errorf("sending started event: %w", err)
	}

	// Heartbeat loop alongside the read loop; the read loop owns shutdown.
	go func() {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := send(map[string]any{
					"type":   "agent:heartbeat",
					"status": "ok",
					"uptime": time.Since(started).Seconds(),
				}); err != nil {
					log.Printf("heartbeat error: %v", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	// Message loop: echo forwarded chat messages back as agent text.
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil // graceful shutdown
			}
			return fmt.Errorf("read error: %w", err)
		}

		var msg struct {
			Type    string `json:"type"`
			UserID  string `json:"userId"`
			Content string `json:"content"`
			Data    string `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("malformed frame: %v", err)
			continue
		}

		switch msg.Type {
		case "agent:message":
			log.Printf("received message from %s: %s", msg.UserID, msg.Content)

			if err := send(map[string]any{"type": "agent:thinking", "content": "thinking..."}); err != nil {
				log.Printf("send error: %v", err)
				continue
			}

			callID := uuid.New().String()
			if err := send(map[string]any{
				"type":   "agent:tool_start",
				"tool":   "echo",
				"callId": callID,
				"args":   map[string]any{"input": msg.Content},
			}); err != nil {
				log.Printf("send error: %v", err)
			}

			// Small delay to simulate streaming
			time.Sleep(50 * time.Millisecond)

			if err := send(map[string]any{
				"type":    "agent:tool_end",
				"tool":    "echo",
				"callId":  callID,
				"success": true,
				"result":  map[string]any{"output": msg.Content},
			}); err != nil {
				log.Printf("send error: %v", err)
			}

			reply := fmt.Sprintf("Echo: %s", msg.Content)
			for _, chunk := range splitChunks(reply, 8) {
				if err := send(map[string]any{"type": "agent:text_delta", "content": chunk}); err != nil {
					log.Printf("send error: %v", err)
					break
				}
				time.Sleep(20 * time.Millisecond)
			}

			if err := send(map[string]any{"type": "agent:complete", "content": reply}); err != nil {
				log.Printf("send error: %v", err)
			}
		case "terminal:input":
			log.Printf("terminal input: %q", msg.Data)
			if err := send(map[string]any{"type": "terminal:output", "data": msg.Data}); err != nil {
				log.Printf("send error: %v", err)
			}
		case "browser:input":
			log.Printf("browser input: %s", data)
		default:
			log.Printf("unhandled frame type %q", msg.Type)
		}
	}
}

func splitChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
