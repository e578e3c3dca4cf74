package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/catalogs"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		mapID    = flag.String("map", "1", "map id")
		seed     = flag.Int64("seed", 0, "board seed (0 lets the server pick)")
		interval = flag.Duration("interval", 500*time.Millisecond, "minimum delay between actions")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	log := logger.WithField("bot", *name)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.WithError(err).Fatal("dial")
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		MapID:           *mapID,
		PlayerName:      *name,
		Seed:            *seed,
	}
	if err := conn.WriteJSON(hello); err != nil {
		log.WithError(err).Fatal("send HELLO")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{}
	var last time.Time
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Info("connection closed")
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			log.WithFields(logrus.Fields{"session": w.SessionID, "map": w.MapID, "grid": fmt.Sprintf("%dx%d", w.Params.GridCols, w.Params.GridRows)}).Info("WELCOME")

		case protocol.TypeCatalog:
			var c struct {
				Name string              `json:"name"`
				Data []catalogs.PriceDef `json:"data"`
			}
			if err := json.Unmarshal(msg, &c); err == nil && c.Name == "prices" {
				b.prices = c.Data
			}

		case protocol.TypeAck:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err == nil && !a.Accepted {
				log.WithFields(logrus.Fields{"act": a.AckFor, "code": a.Code}).Debug("rejected")
			}

		case protocol.TypeComplete:
			var c protocol.CompleteMsg
			if err := json.Unmarshal(msg, &c); err != nil {
				continue
			}
			log.WithFields(logrus.Fields{"total_time": c.TotalTime, "best_time": c.BestTime}).Info("COMPLETE")
			return

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			if time.Since(last) < *interval {
				continue
			}
			act, ok := b.next(&st)
			if !ok {
				continue
			}
			last = time.Now()
			_ = conn.WriteJSON(act)
		}
	}
}
