// Package memory provides an in-process fabric backed by Watermill's
// gochannel pub/sub, one instance per domain. Discovery is an in-memory
// endpoint graph with watcher fan-out. This fabric is useful for testing and
// local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/openrelay/domainbridge/fabric"
	"github.com/openrelay/domainbridge/internal/bridge/ids"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// FabricName is the name used to register this fabric.
const FabricName = "memory"

// Factory allows overriding the per-domain pub/sub creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

func init() {
	fabric.RegisterWithCapabilities(FabricName, Build, fabric.MemoryCapabilities)
}

// Build creates a new in-process fabric.
func Build(ctx context.Context, cfg fabric.Config, logger watermill.LoggerAdapter) (fabric.Fabric, error) {
	node := "domainbridge"
	if cfg != nil && cfg.GetNodeName() != "" {
		node = cfg.GetNodeName()
	}
	return NewFabric(node, logger), nil
}

// Capabilities returns the capabilities of this fabric.
func Capabilities() fabric.Capabilities {
	return fabric.MemoryCapabilities
}

// Fabric is an in-process fabric. Domains opened from the same Fabric are
// isolated from each other; a process-wide Fabric shared between producers
// and the bridge models a multi-domain deployment in one process.
type Fabric struct {
	node   string
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	domains map[int]*memDomain
	closed  bool
}

// NewFabric creates an in-process fabric advertising the given node name.
func NewFabric(node string, logger watermill.LoggerAdapter) *Fabric {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Fabric{
		node:    node,
		logger:  logger,
		domains: make(map[int]*memDomain),
	}
}

// OpenDomain attaches to the domain with the given id, creating it on first
// use. The same id always yields the same domain.
func (f *Fabric) OpenDomain(ctx context.Context, id int) (fabric.Domain, error) {
	if id < 0 {
		return nil, fmt.Errorf("memory: domain id must be non-negative, got %d", id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("memory: fabric is closed")
	}

	if d, ok := f.domains[id]; ok {
		return d, nil
	}

	d := &memDomain{
		id:       id,
		node:     f.node,
		pubsub:   Factory(gochannel.Config{}, f.logger),
		logger:   f.logger.With(watermill.LogFields{"domain": id}),
		pubs:     make(map[string]map[string]fabric.EndpointInfo),
		watchers: make(map[string]map[int]chan fabric.GraphEvent),
	}
	f.domains[id] = d
	return d, nil
}

// Close tears down every domain opened from this fabric.
func (f *Fabric) Close() error {
	f.mu.Lock()
	domains := make([]*memDomain, 0, len(f.domains))
	for _, d := range f.domains {
		domains = append(domains, d)
	}
	f.domains = make(map[int]*memDomain)
	f.closed = true
	f.mu.Unlock()

	var firstErr error
	for _, d := range domains {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type memDomain struct {
	id     int
	node   string
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu        sync.Mutex
	pubs      map[string]map[string]fabric.EndpointInfo // topic → endpoint id → info
	watchers  map[string]map[int]chan fabric.GraphEvent // topic → watcher id → channel
	watcherID int
	closed    bool
}

func (d *memDomain) ID() int { return d.id }

func (d *memDomain) CreatePublisher(ctx context.Context, topic, typeName string, profile qos.Profile) (fabric.Publisher, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	ep := fabric.EndpointInfo{
		ID:       ids.CreateULID(),
		Node:     d.node,
		Topic:    topic,
		TypeName: typeName,
		Profile:  profile,
	}

	d.mu.Lock()
	if d.pubs[topic] == nil {
		d.pubs[topic] = make(map[string]fabric.EndpointInfo)
	}
	d.pubs[topic][ep.ID] = ep
	d.mu.Unlock()

	d.notify(fabric.GraphEvent{Kind: fabric.PublisherJoined, Endpoint: ep})
	d.logger.Debug("publisher created", watermill.LogFields{"topic": topic, "endpoint": ep.ID})

	return &memPublisher{domain: d, ep: ep}, nil
}

func (d *memDomain) CreateSubscription(ctx context.Context, topic, typeName string, profile qos.Profile, handler fabric.MessageFunc) (fabric.Subscription, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("memory: subscription handler is required")
	}

	subCtx, cancel := context.WithCancel(context.Background())
	messages, err := d.pubsub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("memory: subscribe %q: %w", topic, err)
	}

	ep := fabric.EndpointInfo{
		ID:       ids.CreateULID(),
		Node:     d.node,
		Topic:    topic,
		TypeName: typeName,
		Profile:  profile,
	}

	sub := &memSubscription{ep: ep, cancel: cancel}
	go func() {
		for msg := range messages {
			if err := handler(msg); err != nil {
				d.logger.Error("subscription handler failed", err, watermill.LogFields{"topic": topic})
			}
			// At most one delivery attempt per arrival; failures are dropped,
			// not redelivered.
			msg.Ack()
		}
	}()

	return sub, nil
}

func (d *memDomain) Publishers(topic string) ([]fabric.EndpointInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	infos := make([]fabric.EndpointInfo, 0, len(d.pubs[topic]))
	for _, ep := range d.pubs[topic] {
		infos = append(infos, ep)
	}
	return infos, nil
}

func (d *memDomain) WatchTopic(topic string) (<-chan fabric.GraphEvent, func(), error) {
	if err := d.checkOpen(); err != nil {
		return nil, nil, err
	}

	ch := make(chan fabric.GraphEvent, 16)

	d.mu.Lock()
	if d.watchers[topic] == nil {
		d.watchers[topic] = make(map[int]chan fabric.GraphEvent)
	}
	id := d.watcherID
	d.watcherID++
	d.watchers[topic][id] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		if watchers, ok := d.watchers[topic]; ok {
			if _, ok := watchers[id]; ok {
				delete(watchers, id)
				close(ch)
			}
		}
		d.mu.Unlock()
	}
	return ch, cancel, nil
}

func (d *memDomain) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	watchers := d.watchers
	d.watchers = make(map[string]map[int]chan fabric.GraphEvent)
	d.mu.Unlock()

	for _, topicWatchers := range watchers {
		for _, ch := range topicWatchers {
			close(ch)
		}
	}
	return d.pubsub.Close()
}

func (d *memDomain) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("memory: domain %d is closed", d.id)
	}
	return nil
}

func (d *memDomain) notify(ev fabric.GraphEvent) {
	d.mu.Lock()
	targets := make([]chan fabric.GraphEvent, 0, len(d.watchers[ev.Endpoint.Topic]))
	for _, ch := range d.watchers[ev.Endpoint.Topic] {
		targets = append(targets, ch)
	}
	d.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			d.logger.Info("dropping graph event, watcher queue full", watermill.LogFields{
				"topic": ev.Endpoint.Topic,
				"kind":  ev.Kind.String(),
			})
		}
	}
}

func (d *memDomain) removePublisher(ep fabric.EndpointInfo) {
	d.mu.Lock()
	removed := false
	if topicPubs, ok := d.pubs[ep.Topic]; ok {
		if _, ok := topicPubs[ep.ID]; ok {
			delete(topicPubs, ep.ID)
			removed = true
		}
	}
	d.mu.Unlock()

	if removed {
		d.notify(fabric.GraphEvent{Kind: fabric.PublisherLeft, Endpoint: ep})
	}
}

type memPublisher struct {
	domain *memDomain
	ep     fabric.EndpointInfo

	closeOnce sync.Once
}

func (p *memPublisher) Publish(payload []byte, metadata message.Metadata) error {
	msg := message.NewMessage(ids.CreateULID(), payload)
	if metadata != nil {
		msg.Metadata = metadata
	}
	return p.domain.pubsub.Publish(p.ep.Topic, msg)
}

func (p *memPublisher) Profile() qos.Profile          { return p.ep.Profile }
func (p *memPublisher) Endpoint() fabric.EndpointInfo { return p.ep }

func (p *memPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.domain.removePublisher(p.ep)
	})
	return nil
}

type memSubscription struct {
	ep     fabric.EndpointInfo
	cancel context.CancelFunc

	closeOnce sync.Once
}

func (s *memSubscription) Endpoint() fabric.EndpointInfo { return s.ep }

func (s *memSubscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
