package main

import (
	"FlowSentry/internal/bus"
	"FlowSentry/internal/config"
	"FlowSentry/internal/model"
	"FlowSentry/pkg/pcap"
	"bufio"
	"encoding/json"
	"log"
	"os"
	"strings"
)

// fs-probe replays flow records into the bus. It understands two input
// formats: a JSON-lines file of flow records (one per line, the ingestion
// boundary format) or a pcap file decoded packet by packet.
func main() {
	log.Println("Starting fs-probe...")

	configPath := "configs/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	publisher, err := bus.NewPublisher(cfg.Bus)
	if err != nil {
		log.Fatalf("Failed to create bus publisher: %v", err)
	}
	defer publisher.Close()

	input := cfg.Probe.Input
	if input == "" {
		log.Fatalf("No probe input configured.")
	}

	var count int
	if strings.HasSuffix(input, ".pcap") {
		count = publishPcap(publisher, input)
	} else {
		count = publishJSONLines(publisher, input)
	}
	log.Printf("Published %d flows from %s.", count, input)
}

// publish routes one flow to the bus. Flows carrying an upstream notice
// annotation go out on new_notice; everything else on new_flow.
func publish(publisher *bus.Publisher, flow model.Flow) error {
	topic := model.TopicNewFlow
	if flow.Note != "" {
		topic = model.TopicNewNotice
	}
	return publisher.Publish(&model.Envelope{Topic: topic, Flow: flow})
}

func publishJSONLines(publisher *bus.Publisher, path string) int {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open input file: %v", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var flow model.Flow
		if err := json.Unmarshal([]byte(line), &flow); err != nil {
			log.Printf("Skipping malformed flow line: %v", err)
			continue
		}
		if err := publish(publisher, flow); err != nil {
			log.Fatalf("Failed to publish flow: %v", err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed reading input file: %v", err)
	}
	return count
}

func publishPcap(publisher *bus.Publisher, path string) int {
	reader, err := pcap.NewReader(path)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()

	flows := make(chan model.Flow, 1000)
	go func() {
		reader.ReadFlows(flows)
		close(flows)
	}()

	count := 0
	for flow := range flows {
		if err := publish(publisher, flow); err != nil {
			log.Fatalf("Failed to publish flow: %v", err)
		}
		count++
	}
	return count
}
