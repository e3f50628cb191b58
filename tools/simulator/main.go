// Simulated purifier device: subscribes to its command subject, applies
// power and fan commands to in-memory state, publishes acks and periodic
// randomized telemetry. Exercises the same transport package as the
// controller.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"purifier-cloud/internal/transport"
)

type deviceState struct {
	mu         sync.Mutex
	powerState string
	fanSpeed   int
}

func main() {
	deviceID := flag.String("device", "sim-1", "device id")
	natsURL := flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL")
	interval := flag.Duration("interval", 10*time.Second, "telemetry interval")
	flag.Parse()

	logger := log.New(os.Stdout, "[simulator] ", log.LstdFlags)

	broker, err := transport.ConnectNATS(*natsURL, "purifier-simulator-"+*deviceID)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer broker.Close()

	state := &deviceState{powerState: "OFF"}

	sub, err := broker.Subscribe(transport.CommandSubject(*deviceID), func(ctx context.Context, _ string, data []byte) {
		handleCommand(ctx, broker, logger, *deviceID, state, data)
	})
	if err != nil {
		logger.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	logger.Printf("device %s listening on %s", *deviceID, transport.CommandSubject(*deviceID))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	publishTelemetry(context.Background(), broker, logger, *deviceID, state)
	for {
		select {
		case <-ticker.C:
			publishTelemetry(context.Background(), broker, logger, *deviceID, state)
		case <-stop:
			logger.Printf("device %s shutting down", *deviceID)
			return
		}
	}
}

func handleCommand(ctx context.Context, broker transport.Broker, logger *log.Logger, deviceID string, state *deviceState, data []byte) {
	var msg transport.CommandMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Printf("bad command payload: %v", err)
		return
	}

	ack := transport.AckMessage{CommandID: msg.CommandID, Status: transport.AckSuccess}
	state.mu.Lock()
	switch msg.Kind {
	case "power_on":
		state.powerState = "ON"
	case "power_off":
		state.powerState = "OFF"
		state.fanSpeed = 0
	case "set_fan_speed":
		if msg.FanSpeed == nil || *msg.FanSpeed < 0 || *msg.FanSpeed > 100 {
			ack.Status = transport.AckFailed
			ack.Message = "fan speed out of range"
			break
		}
		state.powerState = "ON"
		state.fanSpeed = *msg.FanSpeed
	default:
		ack.Status = transport.AckFailed
		ack.Message = "unknown command kind"
	}
	state.mu.Unlock()

	payload, err := json.Marshal(ack)
	if err != nil {
		logger.Printf("marshal ack: %v", err)
		return
	}
	if err := broker.Publish(ctx, transport.AckSubject(deviceID), payload); err != nil {
		logger.Printf("publish ack %s: %v", msg.CommandID, err)
		return
	}
	logger.Printf("command %s (%s) -> %s", msg.CommandID, msg.Kind, ack.Status)
}

func publishTelemetry(ctx context.Context, broker transport.Broker, logger *log.Logger, deviceID string, state *deviceState) {
	state.mu.Lock()
	power := state.powerState
	fan := state.fanSpeed
	state.mu.Unlock()

	msg := transport.TelemetryMessage{
		Temperature: jitter(21, 4),
		Humidity:    jitter(45, 10),
		PM1:         jitter(4, 3),
		PM25:        jitter(9, 6),
		PM10:        jitter(14, 8),
		VOC:         jitter(120, 60),
		SoundLevel:  jitter(32, 8),
		WifiRSSI:    jitter(-55, 10),
		FanSpeed:    &fan,
		PowerState:  power,
		WifiSSID:    "sim-net",
		Firmware:    "sim-1.0.0",
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Printf("marshal telemetry: %v", err)
		return
	}
	if err := broker.Publish(ctx, transport.TelemetrySubject(deviceID), payload); err != nil {
		logger.Printf("publish telemetry: %v", err)
	}
}

func jitter(base, spread float64) *float64 {
	v := base + (rand.Float64()-0.5)*spread
	return &v
}
