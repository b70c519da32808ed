// Manual smoke client for a running parlor server. It fetches a token,
// runs one REST turn, then one WebSocket turn, and resets the session.
//
// Usage: go run ./test against a server started with `parlor serve`.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = envOr("PARLOR_URL", "http://localhost:8080")
	apiKey    = envOr("PARLOR_API_KEY", "demo")
	apiSecret = envOr("PARLOR_API_SECRET", "demo-secret")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type tokenResponse struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Reply    string `json:"reply"`
	Mode     string `json:"mode"`
	Enriched bool   `json:"enriched"`
	Fallback bool   `json:"fallback"`
}

func main() {
	fmt.Println("🚀 Starting chat smoke test...")

	token, err := getToken()
	if err != nil {
		log.Fatalf("Failed to get JWT token: %v", err)
	}
	fmt.Printf("✅ Token obtained for session %s\n", token.SessionID)

	if err := restTurn(token.Token); err != nil {
		log.Fatalf("REST turn failed: %v", err)
	}

	if err := websocketTurn(token.Token); err != nil {
		log.Fatalf("WebSocket turn failed: %v", err)
	}

	fmt.Println("✅ Smoke test completed successfully!")
}

func getToken() (tokenResponse, error) {
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/token", nil)
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("X-API-Secret", apiSecret)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return tokenResponse{}, fmt.Errorf("auth failed with status %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return tokenResponse{}, err
	}
	return token, nil
}

func restTurn(token string) error {
	payload, _ := json.Marshal(map[string]string{
		"text": "Say hello in one short sentence.",
		"mode": "chat",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 60 * time.Second}
	fmt.Println("📤 Sending REST turn...")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat failed with status %d: %s", resp.StatusCode, string(body))
	}

	var reply chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return err
	}
	fmt.Printf("💬 [%s fallback=%v] %s\n", reply.Mode, reply.Fallback, reply.Reply)
	return nil
}

func websocketTurn(token string) error {
	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing websocket: %w", err)
	}
	defer conn.Close()

	fmt.Println("📡 Connected, sending websocket turn...")
	frame := map[string]string{
		"type": "chat",
		"text": "And what are you exactly?",
		"mode": "knowledge",
	}
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	var reply struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Mode     string `json:"mode"`
		Enriched bool   `json:"enriched"`
		Fallback bool   `json:"fallback"`
		Message  string `json:"message"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		return err
	}
	if reply.Type == "error" {
		return fmt.Errorf("server rejected frame: %s", reply.Message)
	}
	fmt.Printf("💬 [%s enriched=%v] %s\n", reply.Mode, reply.Enriched, reply.Text)

	if err := conn.WriteJSON(map[string]string{"type": "reset"}); err != nil {
		return err
	}
	if err := conn.ReadJSON(&reply); err != nil {
		return err
	}
	if reply.Type != "reset_ok" {
		return fmt.Errorf("unexpected reset response: %s", reply.Type)
	}
	fmt.Println("🧹 Session reset acknowledged")
	return nil
}
