package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxelstamp.ai/internal/protocol"
)

var rotations = []string{"none", "cw_90", "cw_180", "ccw_90"}

// bot connects as a client, lists the stored blueprints and places random ones
// around a center column at a fixed rate, reporting latency at the end.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		count  = flag.Int("count", 20, "placements to send")
		every  = flag.Duration("every", 250*time.Millisecond, "delay between placements")
		radius = flag.Int("radius", 48, "anchor radius around -center")
		center = flag.String("center", "0,80,0", "center x,y,z")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stdout, log.Options{Prefix: "bot", ReportTimestamp: true, TimeFormat: time.StampMicro})
	var cx, cy, cz int
	if _, err := fmt.Sscanf(*center, "%d,%d,%d", &cx, &cy, &cz); err != nil {
		logger.Fatal("bad -center", "err", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", "err", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatal("send HELLO", "err", err)
	}

	replies := make(chan []byte, 64)
	go func() {
		defer close(replies)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			replies <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	r := rand.New(rand.NewSource(*seed))
	var (
		names   []string
		sent    = map[string]time.Time{}
		lat     []time.Duration
		written int
		errs    int
		next    = 0
		tick    = time.NewTicker(*every)
	)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			report(logger, lat, written, errs)
			return

		case msg, ok := <-replies:
			if !ok {
				report(logger, lat, written, errs)
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if at, ok := sent[base.ReqID]; ok {
				lat = append(lat, time.Since(at))
				delete(sent, base.ReqID)
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Info("WELCOME", "session", w.SessionID, "seed", w.WorldParams.Seed, "terrain", w.WorldParams.Terrain)
				_ = conn.WriteJSON(protocol.ListMsg{Type: protocol.TypeList, ProtocolVersion: protocol.Version, ReqID: "list"})

			case protocol.TypeListResult:
				var l protocol.ListResultMsg
				if err := json.Unmarshal(msg, &l); err != nil {
					continue
				}
				for _, b := range l.Blueprints {
					names = append(names, b.Name)
				}
				if len(names) == 0 {
					logger.Fatal("server has no blueprints")
				}
				logger.Info("blueprints", "count", len(names))

			case protocol.TypePlaceResult:
				var p protocol.PlaceResultMsg
				if err := json.Unmarshal(msg, &p); err != nil {
					continue
				}
				written += p.BlocksWritten
				logger.Debug("placed", "req", p.ReqID, "written", p.BlocksWritten, "variant", p.Variant)
				if next >= *count && len(sent) == 0 {
					report(logger, lat, written, errs)
					return
				}

			case protocol.TypeError:
				var e protocol.ErrorMsg
				if err := json.Unmarshal(msg, &e); err != nil {
					continue
				}
				errs++
				logger.Warn("error", "req", e.ReqID, "code", e.Code, "msg", e.Message)
				if next >= *count && len(sent) == 0 {
					report(logger, lat, written, errs)
					return
				}
			}

		case <-tick.C:
			if len(names) == 0 || next >= *count {
				continue
			}
			req := protocol.PlaceMsg{
				Type:            protocol.TypePlace,
				ProtocolVersion: protocol.Version,
				ReqID:           fmt.Sprintf("P%d", next),
				Blueprint:       names[r.Intn(len(names))],
				Anchor:          [3]int{cx + r.Intn(2**radius+1) - *radius, cy, cz + r.Intn(2**radius+1) - *radius},
				Rotation:        rotations[r.Intn(len(rotations))],
			}
			if err := conn.WriteJSON(req); err != nil {
				logger.Error("send PLACE", "err", err)
				return
			}
			sent[req.ReqID] = time.Now()
			next++
		}
	}
}

func report(logger *log.Logger, lat []time.Duration, written, errs int) {
	if len(lat) == 0 {
		logger.Info("no replies")
		return
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	logger.Info("done",
		"replies", len(lat),
		"errors", errs,
		"blocks_written", written,
		"p50", lat[len(lat)/2],
		"p99", lat[len(lat)*99/100],
		"max", lat[len(lat)-1])
}
