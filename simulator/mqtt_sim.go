package main

import (
	"encoding/json"
	"log"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	infmqtt "github.com/kilianp07/prognos/infra/mqtt"
)

type publisher struct {
	cli    paho.Client
	prefix string
}

func newPublisher(cfg Config) (*publisher, error) {
	cli, err := infmqtt.Connect(infmqtt.Config{Broker: cfg.Broker, ClientID: "prognos-sim"})
	if err != nil {
		return nil, err
	}
	return &publisher{cli: cli, prefix: strings.TrimSuffix(cfg.TopicPrefix, "/")}, nil
}

func (p *publisher) sample(signal string, value, tsMS float64) {
	payload, err := json.Marshal(map[string]float64{"value": value, "ts": tsMS})
	if err != nil {
		log.Printf("marshal %s: %v", signal, err)
		return
	}
	token := p.cli.Publish(p.prefix+"/"+signal, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		log.Printf("publish %s: %v", signal, token.Error())
	}
}

func (p *publisher) close() {
	if p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
