package configsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/radlab-io/authgate/pathauthz"
	"go.uber.org/zap"
)

const (
	MAX_REGISTRATION_ATTEMPTS       = 5
	FAILED_HEARTBEAT_RETRY_INTERVAL = 5 * time.Second
	SUBSCRIBE_RETRY_INTERVAL        = 10 * time.Second
)

// Client keeps the gateway's authorization policy in sync with the control
// plane: it registers on startup, holds a websocket subscription for pushed
// policy updates, and heartbeats with the current policy hash so the control
// plane can detect drift.
type Client struct {
	ApiPort           int
	ControlPlaneUrl   *url.URL
	ServiceName       string
	PolicyManager     pathauthz.PolicyManager
	HeartbeatInterval time.Duration
	HttpClient        *http.Client
	Logger            *zap.Logger
}

type registrationRequest struct {
	IPAddress   string `json:"ipAddress"`
	Port        int    `json:"port"`
	ServiceName string `json:"serviceName"`
}

type heartBeatRequest struct {
	IPAddress   string `json:"ipAddress"`
	Port        int    `json:"port"`
	ServiceName string `json:"serviceName"`
	PolicyHash  string `json:"policyHash"`
}

type policyUpdateMessage struct {
	Type   string            `json:"type"`
	Policy *pathauthz.Policy `json:"policy"`
}

func (c *Client) Start() error {
	if err := c.registerWithBackoff(); err != nil {
		return fmt.Errorf("failed to register with the control plane: %w", err)
	}

	c.Logger.Info("Successfully registered to the control plane")

	go c.subscribeLoop()

	c.Logger.Info("Starting heartbeats to the control plane...")

	go c.startHeartbeat()

	return nil
}

func (c *Client) registerWithBackoff() error {
	var attempt int

	for {
		if err := c.register(); err != nil {
			c.Logger.Error("Registration failed", zap.Error(err))

			attempt++

			if attempt >= MAX_REGISTRATION_ATTEMPTS {
				return fmt.Errorf("max registration attempts reached: %w", err)
			}

			backoff := time.Duration(rand.Intn(1<<attempt)) * time.Second

			c.Logger.Info("Retrying registration", zap.Duration("backoff", backoff), zap.Int("attempt", attempt))

			time.Sleep(backoff)

			continue
		}

		break
	}

	return nil
}

func (c *Client) register() error {
	localIP, err := getLocalIP()
	if err != nil {
		return fmt.Errorf("failed to get local IP address: %w", err)
	}

	registrationReq := registrationRequest{
		IPAddress:   localIP,
		Port:        c.ApiPort,
		ServiceName: c.ServiceName,
	}

	jsonData, err := json.Marshal(registrationReq)
	if err != nil {
		return fmt.Errorf("failed to marshal registration data: %w", err)
	}

	registerEndpoint := c.ControlPlaneUrl.ResolveReference(&url.URL{Path: "gateway-register"})

	req, err := http.NewRequest(http.MethodPost, registerEndpoint.String(), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create registration request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send registration request: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registration failed with status %d", resp.StatusCode)
	}

	return nil
}

// subscribeLoop holds the websocket subscription for pushed policy updates,
// re-dialing whenever the connection drops.
func (c *Client) subscribeLoop() {
	subscribeEndpoint := c.ControlPlaneUrl.ResolveReference(&url.URL{Path: "gateway-updates"})

	wsURL := *subscribeEndpoint
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}

	query := wsURL.Query()
	query.Set("serviceName", c.ServiceName)
	wsURL.RawQuery = query.Encode()

	for {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
		if err != nil {
			c.Logger.Error("Failed to subscribe for policy updates", zap.Error(err))
			time.Sleep(SUBSCRIBE_RETRY_INTERVAL)

			continue
		}

		c.Logger.Info("Subscribed for policy updates")

		c.readUpdates(conn)

		conn.Close()
		time.Sleep(SUBSCRIBE_RETRY_INTERVAL)
	}
}

func (c *Client) readUpdates(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.Logger.Error("Policy update subscription closed", zap.Error(err))

			return
		}

		var update policyUpdateMessage

		if err := json.Unmarshal(message, &update); err != nil {
			c.Logger.Error("Failed to unmarshal policy update", zap.Error(err))

			continue
		}

		if update.Type != "policy" || update.Policy == nil {
			c.Logger.Warn("Ignoring unknown update message", zap.String("type", update.Type))

			continue
		}

		if err := c.PolicyManager.ReplacePolicy(update.Policy); err != nil {
			c.Logger.Error("Failed to apply pushed policy", zap.Error(err))

			continue
		}

		hash, err := c.PolicyManager.PolicyHash()
		if err != nil {
			c.Logger.Error("Failed to hash applied policy", zap.Error(err))

			continue
		}

		c.Logger.Info("Applied pushed authorization policy", zap.String("policyHash", hash))
	}
}

func (c *Client) startHeartbeat() {
	heartbeatEndpoint := c.ControlPlaneUrl.ResolveReference(&url.URL{Path: "gateway-heartbeat"})

	for {
		policyHash, err := c.PolicyManager.PolicyHash()
		if err != nil {
			c.Logger.Error("Failed to compute policy hash", zap.Error(err))
			time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

			continue
		}

		localIP, err := getLocalIP()
		if err != nil {
			c.Logger.Error("Failed to get local IP address", zap.Error(err))
			time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

			continue
		}

		heartBeatReq := heartBeatRequest{
			IPAddress:   localIP,
			Port:        c.ApiPort,
			ServiceName: c.ServiceName,
			PolicyHash:  policyHash,
		}

		heartBeatRequestJson, err := json.Marshal(heartBeatReq)
		if err != nil {
			c.Logger.Error("Failed to marshal heartbeat request", zap.Error(err))
			time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

			continue
		}

		req, err := http.NewRequest(http.MethodPost, heartbeatEndpoint.String(), bytes.NewBuffer(heartBeatRequestJson))
		if err != nil {
			c.Logger.Error("Failed to create heartbeat request", zap.Error(err))
			time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

			continue
		}

		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			c.Logger.Error("Failed to send heartbeat", zap.Error(err))
			time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

			continue
		} else {
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				c.Logger.Error("Received non-ok heartbeat response", zap.Int("status", resp.StatusCode))
				time.Sleep(FAILED_HEARTBEAT_RETRY_INTERVAL)

				continue
			}
		}

		time.Sleep(c.HeartbeatInterval)
	}
}

func getLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}

	return "", fmt.Errorf("couldn't obtain a non-loopback IP address")
}
