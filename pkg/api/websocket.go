package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/registry"
)

// TestStreamManager manages WebSocket connections for live test runs
type TestStreamManager struct {
	// upgrader for upgrading HTTP connections to WebSocket
	upgrader websocket.Upgrader

	// subscriptions maps owner-scoped instance keys to sets of clients
	subscriptions map[string]map[*wsClient]bool

	// clients tracks every open connection
	clients map[*websocket.Conn]*wsClient

	// mutex for thread-safe access
	mu sync.RWMutex

	instances   registry.InstanceRegistry
	testHarness harness.Harness
}

// wsClient is one WebSocket connection and its subscriptions
type wsClient struct {
	conn        *websocket.Conn
	accountID   string
	connectedAt time.Time

	// writeMu serializes writes; gorilla connections allow one writer
	writeMu sync.Mutex

	subscriptions map[string]bool
}

// TestStreamMessage represents incoming WebSocket messages
type TestStreamMessage struct {
	Type       string `json:"type"` // "run_test", "subscribe", "unsubscribe", "ping"
	RequestID  string `json:"request_id,omitempty"`
	Family     string `json:"family,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Objective  string `json:"objective,omitempty"`
}

// TestStreamUpdate represents a frame pushed to clients during a test run
type TestStreamUpdate struct {
	Type       string              `json:"type"` // "started", "result", "error", "pong"
	RequestID  string              `json:"request_id,omitempty"`
	InstanceID string              `json:"instance_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Result     *harness.TestResult `json:"result,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// NewTestStreamManager creates a new test stream manager
func NewTestStreamManager(instances registry.InstanceRegistry, testHarness harness.Harness) *TestStreamManager {
	return &TestStreamManager{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from any origin for now
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subscriptions: make(map[string]map[*wsClient]bool),
		clients:       make(map[*websocket.Conn]*wsClient),
		instances:     instances,
		testHarness:   testHarness,
	}
}

func subscriptionKey(accountID, instanceID string) string {
	return accountID + ":" + instanceID
}

// HandleWebSocket handles WebSocket connection upgrade and management
func (m *TestStreamManager) HandleWebSocket(w http.ResponseWriter, r *http.Request, accountID string) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		conn:          conn,
		accountID:     accountID,
		connectedAt:   time.Now(),
		subscriptions: make(map[string]bool),
	}

	m.mu.Lock()
	m.clients[conn] = client
	m.mu.Unlock()

	defer func() {
		m.removeClient(client)
		log.Printf("WebSocket connection closed for account %s", accountID)
	}()

	log.Printf("WebSocket connection established for account %s", accountID)

	go m.pingRoutine(client)

	for {
		var msg TestStreamMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		m.handleMessage(client, &msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (m *TestStreamManager) handleMessage(client *wsClient, msg *TestStreamMessage) {
	switch msg.Type {
	case "run_test":
		go m.runTest(client, *msg)
	case "subscribe":
		if msg.InstanceID != "" {
			m.subscribe(client, msg.InstanceID)
		}
	case "unsubscribe":
		if msg.InstanceID != "" {
			m.unsubscribe(client, msg.InstanceID)
		}
	case "ping":
		m.send(client, TestStreamUpdate{
			Type:      "pong",
			Timestamp: time.Now(),
		})
	default:
		log.Printf("Unknown WebSocket message type: %s", msg.Type)
	}
}

// runTest resolves the instance, runs it through the harness and pushes
// started/result/error frames to the requester and to any subscribers
func (m *TestStreamManager) runTest(client *wsClient, msg TestStreamMessage) {
	family := plugins.Family(msg.Family)
	if !family.Valid() {
		m.send(client, TestStreamUpdate{
			Type:       "error",
			RequestID:  msg.RequestID,
			InstanceID: msg.InstanceID,
			Timestamp:  time.Now(),
			Message:    "unknown plugin family",
		})
		return
	}

	instance, err := m.instances.Get(client.accountID, family, msg.InstanceID)
	if err != nil {
		m.send(client, TestStreamUpdate{
			Type:       "error",
			RequestID:  msg.RequestID,
			InstanceID: msg.InstanceID,
			Timestamp:  time.Now(),
			Message:    err.Error(),
		})
		return
	}

	m.emit(client, msg.InstanceID, TestStreamUpdate{
		Type:       "started",
		RequestID:  msg.RequestID,
		InstanceID: msg.InstanceID,
		Timestamp:  time.Now(),
	})

	input := harness.TestInput{
		Payload:   msg.Payload,
		Prompt:    msg.Prompt,
		Objective: msg.Objective,
	}

	result, err := m.testHarness.RunTest(context.Background(), instance, input)
	if err != nil {
		m.emit(client, msg.InstanceID, TestStreamUpdate{
			Type:       "error",
			RequestID:  msg.RequestID,
			InstanceID: msg.InstanceID,
			Timestamp:  time.Now(),
			Message:    err.Error(),
		})
		return
	}

	m.emit(client, msg.InstanceID, TestStreamUpdate{
		Type:       "result",
		RequestID:  msg.RequestID,
		InstanceID: msg.InstanceID,
		Timestamp:  time.Now(),
		Result:     &result,
	})
}

// subscribe registers a client for updates about an instance's test runs
func (m *TestStreamManager) subscribe(client *wsClient, instanceID string) {
	key := subscriptionKey(client.accountID, instanceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscriptions[key] == nil {
		m.subscriptions[key] = make(map[*wsClient]bool)
	}
	m.subscriptions[key][client] = true
	client.subscriptions[key] = true

	log.Printf("Account %s subscribed to instance %s", client.accountID, instanceID)
}

// unsubscribe removes a client's subscription to an instance
func (m *TestStreamManager) unsubscribe(client *wsClient, instanceID string) {
	key := subscriptionKey(client.accountID, instanceID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if subs, exists := m.subscriptions[key]; exists {
		delete(subs, client)
		if len(subs) == 0 {
			delete(m.subscriptions, key)
		}
	}
	delete(client.subscriptions, key)
}

// emit sends an update to the requesting client and broadcasts it to the
// instance's other subscribers within the same account
func (m *TestStreamManager) emit(client *wsClient, instanceID string, update TestStreamUpdate) {
	m.send(client, update)

	key := subscriptionKey(client.accountID, instanceID)

	m.mu.RLock()
	subscribers := make([]*wsClient, 0, len(m.subscriptions[key]))
	for subscriber := range m.subscriptions[key] {
		if subscriber != client {
			subscribers = append(subscribers, subscriber)
		}
	}
	m.mu.RUnlock()

	for _, subscriber := range subscribers {
		m.send(subscriber, update)
	}
}

// send writes one frame to a connection
func (m *TestStreamManager) send(client *wsClient, update TestStreamUpdate) {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := client.conn.WriteJSON(update); err != nil {
		log.Printf("Failed to send WebSocket message: %v", err)
		m.removeClient(client)
	}
}

// removeClient drops a connection and all of its subscriptions
func (m *TestStreamManager) removeClient(client *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range client.subscriptions {
		if subs, exists := m.subscriptions[key]; exists {
			delete(subs, client)
			if len(subs) == 0 {
				delete(m.subscriptions, key)
			}
		}
	}

	delete(m.clients, client.conn)
	client.conn.Close()
}

// pingRoutine sends periodic ping messages to keep the connection alive
func (m *TestStreamManager) pingRoutine(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		client.writeMu.Lock()
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := client.conn.WriteMessage(websocket.PingMessage, nil)
		client.writeMu.Unlock()

		if err != nil {
			m.removeClient(client)
			return
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (m *TestStreamManager) GetConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// GetSubscribers returns the number of subscribers for an instance
func (m *TestStreamManager) GetSubscribers(accountID, instanceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if subs, exists := m.subscriptions[subscriptionKey(accountID, instanceID)]; exists {
		return len(subs)
	}
	return 0
}
