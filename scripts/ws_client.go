// Package main runs a demo WebSocket client for detention alerts.
//
// It creates a driver whose appointment began well past free time, then waits
// for the evaluator to raise the critical alert over /v1/alerts/ws.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func postJSON(method, u string, body any, out any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, u, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, u, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var driver struct {
		ID string `json:"id"`
	}
	if err := postJSON(http.MethodPost, base+"/v1/drivers", map[string]string{"name": "Demo Driver"}, &driver); err != nil {
		log.Fatal().Err(err).Msg("create driver")
	}
	log.Info().Str("driver_id", driver.ID).Msg("driver created")

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/alerts/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal().Err(err).Msg("dial")
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal().Err(err).Msg("connection_init")
	}
	pl, _ := json.Marshal(map[string]string{"topic": "alerts", "driverId": driver.ID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Warn().Err(err).Msg("read")
				return
			}
			if m.Type == "ping" {
				_ = c.WriteJSON(wsMessage{Type: "pong"})
				continue
			}
			log.Info().Str("type", m.Type).RawJSON("payload", nonEmpty(m.Payload)).Msg("ws message")
		}
	}()

	// appointment 2h10m ago on a regular stop: already in detention
	appt := time.Now().Add(-130 * time.Minute).UTC().Format(time.RFC3339)
	if err := postJSON(http.MethodPut, base+"/v1/drivers/"+driver.ID+"/appointment", map[string]string{"appointmentTime": appt, "stopType": "regular", "facility": "Demo DC"}, nil); err != nil {
		log.Fatal().Err(err).Msg("set appointment")
	}
	log.Info().Str("appointment", appt).Msg("appointment set, waiting for alerts")

	select {
	case <-time.After(45 * time.Second):
	case <-done:
	}
}

func nonEmpty(b json.RawMessage) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
