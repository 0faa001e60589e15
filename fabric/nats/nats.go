// Package nats provides a NATS-backed fabric. Each domain is an isolated
// subject namespace under a shared prefix; the data plane goes through
// watermill-nats, and discovery runs on plain NATS core subjects: endpoint
// join/leave announcements plus request/reply graph queries.
package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/openrelay/domainbridge/fabric"
	"github.com/openrelay/domainbridge/internal/bridge/ids"
	"github.com/openrelay/domainbridge/internal/bridge/jsoncodec"
	"github.com/openrelay/domainbridge/internal/bridge/qos"
)

// FabricName is the name used to register this fabric.
const FabricName = "nats"

// DefaultSubjectPrefix scopes every subject the fabric touches.
const DefaultSubjectPrefix = "dbridge"

// QueryWindow bounds how long a graph query waits for replies from other
// participants.
var QueryWindow = 250 * time.Millisecond

// ConnectFactory allows overriding the NATS connection creation for testing.
var ConnectFactory = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

// PublisherFactory allows overriding the data-plane publisher creation.
var PublisherFactory = func(cfg wmnats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return wmnats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the data-plane subscriber creation.
var SubscriberFactory = func(cfg wmnats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return wmnats.NewSubscriber(cfg, logger)
}

func init() {
	fabric.RegisterWithCapabilities(FabricName, Build, fabric.NATSCapabilities)
}

// Build creates a new NATS fabric from config.
func Build(ctx context.Context, cfg fabric.Config, logger watermill.LoggerAdapter) (fabric.Fabric, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.GetNATSSubjectPrefix()
	node := cfg.GetNodeName()
	if node == "" {
		node = "domainbridge"
	}
	return NewFabric(url, prefix, node, logger)
}

// Capabilities returns the capabilities of this fabric.
func Capabilities() fabric.Capabilities {
	return fabric.NATSCapabilities
}

// announcement is the discovery-plane wire format for join/leave events and
// query replies.
type announcement struct {
	Kind     string              `json:"kind"` // "join" or "leave"
	Endpoint fabric.EndpointInfo `json:"endpoint"`
}

type graphQuery struct {
	Topic string `json:"topic"`
}

type graphReply struct {
	Endpoints []fabric.EndpointInfo `json:"endpoints"`
}

// Fabric is a NATS-backed fabric sharing one connection across domains.
type Fabric struct {
	prefix string
	node   string
	logger watermill.LoggerAdapter

	conn       *nats.Conn
	publisher  message.Publisher
	subscriber message.Subscriber

	mu      sync.Mutex
	domains map[int]*natsDomain
	closed  bool
}

// NewFabric connects to the NATS server and prepares the data plane.
func NewFabric(url, prefix, node string, logger watermill.LoggerAdapter) (*Fabric, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	conn, err := ConnectFactory(url)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %q: %w", url, err)
	}

	marshaler := &wmnats.NATSMarshaler{}
	publisher, err := PublisherFactory(wmnats.PublisherConfig{
		URL:       url,
		Marshaler: marshaler,
	}, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats: create publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(wmnats.SubscriberConfig{
		URL:         url,
		Unmarshaler: marshaler,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		conn.Close()
		return nil, fmt.Errorf("nats: create subscriber: %w", err)
	}

	return &Fabric{
		prefix:     prefix,
		node:       node,
		logger:     logger,
		conn:       conn,
		publisher:  publisher,
		subscriber: subscriber,
		domains:    make(map[int]*natsDomain),
	}, nil
}

// OpenDomain attaches to the subject namespace of the given domain id.
func (f *Fabric) OpenDomain(ctx context.Context, id int) (fabric.Domain, error) {
	if id < 0 {
		return nil, fmt.Errorf("nats: domain id must be non-negative, got %d", id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, fmt.Errorf("nats: fabric is closed")
	}
	if d, ok := f.domains[id]; ok {
		return d, nil
	}

	d := &natsDomain{
		fabric:   f,
		id:       id,
		logger:   f.logger.With(watermill.LogFields{"domain": id}),
		local:    make(map[string]map[string]fabric.EndpointInfo),
		remote:   make(map[string]fabric.EndpointInfo),
		watchers: make(map[string]map[int]chan fabric.GraphEvent),
	}
	if err := d.startDiscovery(); err != nil {
		return nil, err
	}
	f.domains[id] = d
	return d, nil
}

// Close tears down every domain, the data plane, and the connection.
func (f *Fabric) Close() error {
	f.mu.Lock()
	domains := make([]*natsDomain, 0, len(f.domains))
	for _, d := range f.domains {
		domains = append(domains, d)
	}
	f.domains = make(map[int]*natsDomain)
	f.closed = true
	f.mu.Unlock()

	var firstErr error
	for _, d := range domains {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := f.publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := f.subscriber.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	f.conn.Close()
	return firstErr
}

// DataSubject maps (domain, topic) to the data-plane subject.
func DataSubject(prefix string, domain int, topic string) string {
	return fmt.Sprintf("%s.d%d.t.%s", prefix, domain, sanitizeToken(topic))
}

// EventSubject maps a domain to its discovery announcement subject.
func EventSubject(prefix string, domain int) string {
	return fmt.Sprintf("%s.d%d.graph.event", prefix, domain)
}

// QuerySubject maps a domain to its discovery query subject.
func QuerySubject(prefix string, domain int) string {
	return fmt.Sprintf("%s.d%d.graph.query", prefix, domain)
}

// sanitizeToken makes a topic name safe for use as a NATS subject token.
func sanitizeToken(topic string) string {
	replacer := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "/", "_")
	return replacer.Replace(strings.Trim(topic, "/"))
}

type natsDomain struct {
	fabric *Fabric
	id     int
	logger watermill.LoggerAdapter

	eventSub *nats.Subscription
	querySub *nats.Subscription

	mu        sync.Mutex
	local     map[string]map[string]fabric.EndpointInfo // topic → endpoint id → info
	remote    map[string]fabric.EndpointInfo            // endpoint id → info
	watchers  map[string]map[int]chan fabric.GraphEvent
	watcherID int
	closed    bool
}

func (d *natsDomain) ID() int { return d.id }

// startDiscovery wires the announcement listener and the query responder.
func (d *natsDomain) startDiscovery() error {
	eventSub, err := d.fabric.conn.Subscribe(EventSubject(d.fabric.prefix, d.id), d.handleAnnouncement)
	if err != nil {
		return fmt.Errorf("nats: subscribe graph events: %w", err)
	}

	querySub, err := d.fabric.conn.Subscribe(QuerySubject(d.fabric.prefix, d.id), d.handleQuery)
	if err != nil {
		_ = eventSub.Unsubscribe()
		return fmt.Errorf("nats: subscribe graph queries: %w", err)
	}

	d.eventSub = eventSub
	d.querySub = querySub
	return nil
}

func (d *natsDomain) handleAnnouncement(msg *nats.Msg) {
	var ann announcement
	if err := jsoncodec.Unmarshal(msg.Data, &ann); err != nil {
		d.logger.Error("malformed graph announcement", err, nil)
		return
	}

	var kind fabric.GraphEventKind
	switch ann.Kind {
	case "join":
		kind = fabric.PublisherJoined
	case "leave":
		kind = fabric.PublisherLeft
	default:
		d.logger.Info("ignoring graph announcement with unknown kind", watermill.LogFields{"kind": ann.Kind})
		return
	}

	d.mu.Lock()
	if kind == fabric.PublisherJoined {
		d.remote[ann.Endpoint.ID] = ann.Endpoint
	} else {
		delete(d.remote, ann.Endpoint.ID)
	}
	d.mu.Unlock()

	d.notify(fabric.GraphEvent{Kind: kind, Endpoint: ann.Endpoint})
}

func (d *natsDomain) handleQuery(msg *nats.Msg) {
	var q graphQuery
	if err := jsoncodec.Unmarshal(msg.Data, &q); err != nil {
		d.logger.Error("malformed graph query", err, nil)
		return
	}

	d.mu.Lock()
	reply := graphReply{Endpoints: make([]fabric.EndpointInfo, 0, len(d.local[q.Topic]))}
	for _, ep := range d.local[q.Topic] {
		reply.Endpoints = append(reply.Endpoints, ep)
	}
	d.mu.Unlock()

	if len(reply.Endpoints) == 0 || msg.Reply == "" {
		return
	}
	payload, err := jsoncodec.Marshal(reply)
	if err != nil {
		d.logger.Error("marshal graph reply", err, nil)
		return
	}
	if err := d.fabric.conn.Publish(msg.Reply, payload); err != nil {
		d.logger.Error("publish graph reply", err, nil)
	}
}

func (d *natsDomain) announce(kind string, ep fabric.EndpointInfo) {
	payload, err := jsoncodec.Marshal(announcement{Kind: kind, Endpoint: ep})
	if err != nil {
		d.logger.Error("marshal graph announcement", err, nil)
		return
	}
	if err := d.fabric.conn.Publish(EventSubject(d.fabric.prefix, d.id), payload); err != nil {
		d.logger.Error("publish graph announcement", err, nil)
	}
}

func (d *natsDomain) CreatePublisher(ctx context.Context, topic, typeName string, profile qos.Profile) (fabric.Publisher, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	ep := fabric.EndpointInfo{
		ID:       ids.CreateULID(),
		Node:     d.fabric.node,
		Topic:    topic,
		TypeName: typeName,
		Profile:  profile,
	}

	d.mu.Lock()
	if d.local[topic] == nil {
		d.local[topic] = make(map[string]fabric.EndpointInfo)
	}
	d.local[topic][ep.ID] = ep
	d.mu.Unlock()

	d.announce("join", ep)

	return &natsPublisher{domain: d, ep: ep, subject: DataSubject(d.fabric.prefix, d.id, topic)}, nil
}

func (d *natsDomain) CreateSubscription(ctx context.Context, topic, typeName string, profile qos.Profile, handler fabric.MessageFunc) (fabric.Subscription, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, fmt.Errorf("nats: subscription handler is required")
	}

	subCtx, cancel := context.WithCancel(context.Background())
	messages, err := d.fabric.subscriber.Subscribe(subCtx, DataSubject(d.fabric.prefix, d.id, topic))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("nats: subscribe %q: %w", topic, err)
	}

	ep := fabric.EndpointInfo{
		ID:       ids.CreateULID(),
		Node:     d.fabric.node,
		Topic:    topic,
		TypeName: typeName,
		Profile:  profile,
	}

	go func() {
		for msg := range messages {
			if err := handler(msg); err != nil {
				d.logger.Error("subscription handler failed", err, watermill.LogFields{"topic": topic})
			}
			msg.Ack()
		}
	}()

	return &natsSubscription{ep: ep, cancel: cancel}, nil
}

// Publishers merges locally owned endpoints, the announcement cache, and a
// bounded request/reply sweep of other participants.
func (d *natsDomain) Publishers(topic string) ([]fabric.EndpointInfo, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}

	byID := make(map[string]fabric.EndpointInfo)

	d.mu.Lock()
	for _, ep := range d.local[topic] {
		byID[ep.ID] = ep
	}
	for _, ep := range d.remote {
		if ep.Topic == topic {
			byID[ep.ID] = ep
		}
	}
	d.mu.Unlock()

	queried, err := d.queryGraph(topic)
	if err != nil {
		d.logger.Error("graph query failed", err, watermill.LogFields{"topic": topic})
	} else {
		d.mu.Lock()
		for _, ep := range queried {
			byID[ep.ID] = ep
			d.remote[ep.ID] = ep
		}
		d.mu.Unlock()
	}

	infos := make([]fabric.EndpointInfo, 0, len(byID))
	for _, ep := range byID {
		infos = append(infos, ep)
	}
	return infos, nil
}

// queryGraph asks every participant in the domain for its publishers of the
// topic, collecting replies until QueryWindow elapses.
func (d *natsDomain) queryGraph(topic string) ([]fabric.EndpointInfo, error) {
	payload, err := jsoncodec.Marshal(graphQuery{Topic: topic})
	if err != nil {
		return nil, err
	}

	inbox := nats.NewInbox()
	replies, err := d.fabric.conn.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	defer func() { _ = replies.Unsubscribe() }()

	if err := d.fabric.conn.PublishRequest(QuerySubject(d.fabric.prefix, d.id), inbox, payload); err != nil {
		return nil, err
	}

	var endpoints []fabric.EndpointInfo
	deadline := time.Now().Add(QueryWindow)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := replies.NextMsg(remaining)
		if err != nil {
			break // timeout ends the sweep
		}
		var reply graphReply
		if err := jsoncodec.Unmarshal(msg.Data, &reply); err != nil {
			d.logger.Error("malformed graph reply", err, nil)
			continue
		}
		endpoints = append(endpoints, reply.Endpoints...)
	}
	return endpoints, nil
}

func (d *natsDomain) WatchTopic(topic string) (<-chan fabric.GraphEvent, func(), error) {
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

func (d *natsDomain) notify(ev fabric.GraphEvent) {
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

func (d *natsDomain) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	var leaving []fabric.EndpointInfo
	for _, topicPubs := range d.local {
		for _, ep := range topicPubs {
			leaving = append(leaving, ep)
		}
	}
	d.local = make(map[string]map[string]fabric.EndpointInfo)
	watchers := d.watchers
	d.watchers = make(map[string]map[int]chan fabric.GraphEvent)
	d.mu.Unlock()

	for _, ep := range leaving {
		d.announce("leave", ep)
	}
	for _, topicWatchers := range watchers {
		for _, ch := range topicWatchers {
			close(ch)
		}
	}

	var firstErr error
	if d.eventSub != nil {
		if err := d.eventSub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.querySub != nil {
		if err := d.querySub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *natsDomain) checkOpen() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("nats: domain %d is closed", d.id)
	}
	return nil
}

func (d *natsDomain) removePublisher(ep fabric.EndpointInfo) {
	d.mu.Lock()
	removed := false
	if topicPubs, ok := d.local[ep.Topic]; ok {
		if _, ok := topicPubs[ep.ID]; ok {
			delete(topicPubs, ep.ID)
			removed = true
		}
	}
	d.mu.Unlock()

	if removed {
		d.announce("leave", ep)
	}
}

type natsPublisher struct {
	domain  *natsDomain
	ep      fabric.EndpointInfo
	subject string

	closeOnce sync.Once
}

func (p *natsPublisher) Publish(payload []byte, metadata message.Metadata) error {
	msg := message.NewMessage(ids.CreateULID(), payload)
	if metadata != nil {
		msg.Metadata = metadata
	}
	return p.domain.fabric.publisher.Publish(p.subject, msg)
}

func (p *natsPublisher) Profile() qos.Profile          { return p.ep.Profile }
func (p *natsPublisher) Endpoint() fabric.EndpointInfo { return p.ep }

func (p *natsPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.domain.removePublisher(p.ep)
	})
	return nil
}

type natsSubscription struct {
	ep     fabric.EndpointInfo
	cancel context.CancelFunc

	closeOnce sync.Once
}

func (s *natsSubscription) Endpoint() fabric.EndpointInfo { return s.ep }

func (s *natsSubscription) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
