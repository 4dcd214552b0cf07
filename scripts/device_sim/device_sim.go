package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"

	mqtttransport "fleet-monitor/livemap/internal/transport/mqtt"
)

type locationMessage struct {
	DriverID string  `json:"driver_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Ts       float64 `json:"ts"`
}

type alertMessage struct {
	DriverID string         `json:"driver_id"`
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
	Ts       float64        `json:"ts"`
	Alert    bool           `json:"alert"`
	Type     string         `json:"type"`
	Score    float64        `json:"drowsiness_score"`
	Details  map[string]any `json:"details"`
}

type driver struct {
	id       string
	lat, lon float64
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using system environment variables")
	}

	drivers := flag.Int("drivers", 5, "number of simulated drivers")
	interval := flag.Duration("interval", 2*time.Second, "time between location fixes")
	alertRate := flag.Float64("alert-rate", 0.05, "probability that a fix is followed by a drowsiness alert")
	flag.Parse()

	if *drivers <= 0 || *interval <= 0 {
		fmt.Fprintln(os.Stderr, "error: -drivers and -interval must be positive")
		os.Exit(1)
	}

	broker := "tcp://localhost:1883"
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		broker = v
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("livemap-device-sim")

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("mqtt connect: %v", token.Error())
	}
	defer client.Disconnect(250)

	// all drivers start around Delhi Gate
	pool := make([]*driver, *drivers)
	for i := range pool {
		pool[i] = &driver{
			id:  fmt.Sprintf("driver_%03d", i+1),
			lat: 28.7041 + (rand.Float64()-0.5)*0.02,
			lon: 77.1025 + (rand.Float64()-0.5)*0.02,
		}
	}

	log.Printf("connected to %s, %d drivers, fix every %s", broker, len(pool), *interval)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for range ticker.C {
		d := pool[rand.Intn(len(pool))]
		d.lat += (rand.Float64() - 0.5) * 0.002
		d.lon += (rand.Float64() - 0.5) * 0.002
		now := float64(time.Now().UnixMilli()) / 1000

		publish(client, mqtttransport.DriverTopic(d.id, "location"), locationMessage{
			DriverID: d.id, Lat: d.lat, Lon: d.lon, Ts: now,
		})

		if rand.Float64() < *alertRate {
			score := 0.5 + rand.Float64()*0.5
			publish(client, mqtttransport.DriverTopic(d.id, "alert"), alertMessage{
				DriverID: d.id,
				Lat:      d.lat,
				Lon:      d.lon,
				Ts:       now,
				Alert:    true,
				Type:     "drowsiness",
				Score:    score,
				Details:  map[string]any{"sim": true, "ear": 0.18},
			})
		}
	}
}

func publish(client mqtt.Client, topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal %s: %v", topic, err)
		return
	}
	token := client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		log.Printf("publish %s: %v", topic, err)
		return
	}
	log.Printf("published to %s: %s", topic, payload)
}
