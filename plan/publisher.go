package plan

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FloorPlanSummary is the compact description of a plan published over MQTT.
type FloorPlanSummary struct {
	Room       string                `json:"room"`
	Dimensions []string              `json:"dimensions"`
	Counts     map[PrimitiveKind]int `json:"counts"`
	Bounds     Rect                  `json:"bounds"`
	Timestamp  int64                 `json:"timestamp"`
}

// SummarizeFloorPlan builds the MQTT summary of a plan.
func SummarizeFloorPlan(name string, fp *FloorPlan) *FloorPlanSummary {
	s := &FloorPlanSummary{
		Room:       name,
		Dimensions: []string{},
		Counts:     map[PrimitiveKind]int{},
		Timestamp:  time.Now().Unix(),
	}
	if fp == nil {
		return s
	}
	for _, d := range fp.Dimensions() {
		s.Dimensions = append(s.Dimensions, d.Label)
	}
	s.Counts = fp.CountByKind()
	if len(fp.Primitives) > 0 {
		s.Bounds = Rect{
			Min: Point{X: fp.Bounds.Min[0], Y: fp.Bounds.Min[1]},
			Max: Point{X: fp.Bounds.Max[0], Y: fp.Bounds.Max[1]},
		}
	}
	return s
}

// Publisher manages publishing floor plan summaries to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	plans         map[string]*FloorPlanSummary
	mu            sync.RWMutex
}

// NewPublisher creates a new floor plan publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = "roomplan"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true, // Retain so late subscribers see the latest plan
		plans:         make(map[string]*FloorPlanSummary),
	}
}

// SetPrefix overrides the topic prefix.
func (p *Publisher) SetPrefix(prefix string) {
	if prefix != "" {
		p.publishPrefix = prefix
	}
}

// PublishFloorPlan publishes a room's plan summary to <prefix>/<room>/floorplan
// and the combined index of all rooms to <prefix>/rooms.
func (p *Publisher) PublishFloorPlan(name string, fp *FloorPlan) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary := SummarizeFloorPlan(name, fp)

	p.mu.Lock()
	p.plans[name] = summary
	p.mu.Unlock()

	topic := fmt.Sprintf("%s/%s/floorplan", p.publishPrefix, name)
	if err := p.publishJSON(topic, summary); err != nil {
		log.Printf("Error publishing floor plan for %s: %v", name, err)
		return err
	}
	log.Printf("Published floor plan for %s: %d primitives, %d dimensions",
		name, len(fp.Primitives), len(summary.Dimensions))

	if err := p.publishCombined(); err != nil {
		log.Printf("Error publishing room index: %v", err)
		return err
	}
	return nil
}

// PublishMeasurements publishes a room's measurement groups to
// <prefix>/<room>/measurements.
func (p *Publisher) PublishMeasurements(name string, groups []MeasurementGroup, unit Unit) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if groups == nil {
		groups = []MeasurementGroup{}
	}
	topic := fmt.Sprintf("%s/%s/measurements", p.publishPrefix, name)
	return p.publishJSON(topic, map[string]interface{}{
		"room":         name,
		"unit":         unit,
		"measurements": groups,
		"timestamp":    time.Now().Unix(),
	})
}

// publishCombined publishes every known plan summary to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	summaries := make([]*FloorPlanSummary, 0, len(p.plans))
	for _, s := range p.plans {
		summaries = append(summaries, s)
	}
	p.mu.RUnlock()

	if len(summaries) == 0 {
		return nil
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Room < summaries[j].Room })

	message := map[string]interface{}{
		"rooms":     summaries,
		"timestamp": time.Now().Unix(),
	}
	return p.publishJSON(fmt.Sprintf("%s/rooms", p.publishPrefix), message)
}

func (p *Publisher) publishJSON(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetSummary returns the last published summary for a room
func (p *Publisher) GetSummary(name string) (*FloorPlanSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.plans[name]
	return s, ok
}

// ClearRoom removes a room from the combined index
func (p *Publisher) ClearRoom(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.plans, name)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
