package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // ⚠️ Start small (50 pairs = 100 users). Database might choke on 1000 immediately.
	MsgCount  = 20 // Messages per user
)

type authResponse struct {
	Token string `json:"access_token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// We create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	a := signup(fmt.Sprintf("u_%d_a", pairID))
	b := signup(fmt.Sprintf("u_%d_b", pairID))
	if a == nil || b == nil {
		return
	}

	// Friendship so the pair shows up in each other's sidebar.
	postJSON(a.Token, "/api/users/add-friend", map[string]string{"user_id": b.User.ID})

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, b.User.ID)
	go spamChat(&wsWg, b, a.User.ID)
	wsWg.Wait()
}

func signup(name string) *authResponse {
	body := map[string]string{
		"email":     name + "@loadtest.local",
		"full_name": name,
		"password":  "password123",
	}
	resp, err := postJSON("", "/api/auth/signup", body)
	if err != nil {
		log.Printf("❌ Signup Failed [%s]: %v", name, err)
		return nil
	}
	defer resp.Body.Close()

	// Might already exist from a previous run; log in instead.
	if resp.StatusCode != http.StatusCreated {
		resp, err = postJSON("", "/api/auth/login", map[string]string{
			"email":    body["email"],
			"password": body["password"],
		})
		if err != nil {
			log.Printf("❌ Login Failed [%s]: %v", name, err)
			return nil
		}
		defer resp.Body.Close()
	}

	var data authResponse
	json.NewDecoder(resp.Body).Decode(&data)
	if data.Token == "" {
		log.Printf("❌ No token for %s", name)
		return nil
	}
	return &data
}

func spamChat(wg *sync.WaitGroup, from *authResponse, peerID string) {
	defer wg.Done()

	// Connect WS and drain delivered/presence events in the background.
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, from.Token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", from.User.ID, err)
		return
	}
	defer conn.Close()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		body := map[string]string{
			"text":       fmt.Sprintf("LoadTest Msg %d from %s", i, from.User.ID),
			"request_id": fmt.Sprintf("%s-%d", from.User.ID, i),
		}
		if _, err := postJSON(from.Token, "/api/messages/send/user/"+peerID, body); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", from.User.ID, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", from.User.ID, MsgCount)
}

func postJSON(token, endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	req, err := http.NewRequest("POST", BaseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
