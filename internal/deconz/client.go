package deconz

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrLinkButtonNotPressed is returned by Pair while the gateway's link
// button has not been pressed. Callers poll Pair until it stops
// returning this error or their context expires.
var ErrLinkButtonNotPressed = errors.New("link button not pressed")

// DefaultDevicetype is the devicetype sent during pairing. The gateway
// shows it in its list of authorized API keys.
const DefaultDevicetype = "deconzctl"

// Client talks to a deCONZ gateway's REST API on the local network.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient creates a client for a gateway at baseURL
// (e.g. "http://192.168.1.20:80"). An empty apiKey is only usable for
// Pair and UnauthenticatedConfig.
func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      DefaultRetryConfig(),
	}
}

// APIKey returns the key the client authenticates with. It is set by
// NewClient or by a successful Pair.
func (c *Client) APIKey() string {
	return c.apiKey
}

// BaseURL returns the gateway address the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Pair requests a new API key via the push-link flow: POST /api with a
// devicetype. While the gateway's link button has not been pressed the
// gateway answers with error type 101, surfaced as
// ErrLinkButtonNotPressed. On success the new key is stored on the
// client and returned.
func (c *Client) Pair(ctx context.Context, devicetype string) (string, error) {
	if devicetype == "" {
		devicetype = DefaultDevicetype
	}

	body, err := json.Marshal(map[string]string{"devicetype": devicetype})
	if err != nil {
		return "", fmt.Errorf("marshaling pair request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating pair request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending pair request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading pair response: %w", err)
	}

	var items []apiResponseItem
	if err := json.Unmarshal(respBody, &items); err != nil {
		return "", fmt.Errorf("parsing pair response: %w", err)
	}
	for _, item := range items {
		if item.Error != nil {
			if item.Error.Type == errLinkButton {
				return "", ErrLinkButtonNotPressed
			}
			return "", item.Error
		}
		if item.Success != nil {
			var success struct {
				Username string `json:"username"`
			}
			if err := json.Unmarshal(item.Success, &success); err != nil {
				return "", fmt.Errorf("parsing pair success: %w", err)
			}
			log.Printf("[deconz] Paired with gateway %s", c.baseURL)
			c.apiKey = success.Username
			return success.Username, nil
		}
	}
	return "", fmt.Errorf("pair response carried neither success nor error: %s", string(respBody))
}

// Lights fetches all lights known to the gateway. The gateway returns
// a JSON object keyed by decimal light id; ids that do not parse as
// integers are an error, matching the strictness of the id space.
func (c *Client) Lights(ctx context.Context) (map[int]Light, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.keyPath("lights"), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching lights: %w", err)
	}

	var raw map[string]Light
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing lights: %w", err)
	}

	lights := make(map[int]Light, len(raw))
	for id, l := range raw {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("light id %q is not numeric: %w", id, err)
		}
		lights[n] = l
	}
	return lights, nil
}

// Light fetches a single light, including its current state.
func (c *Client) Light(ctx context.Context, id int) (Light, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.keyPath("lights/"+strconv.Itoa(id)), nil)
	if err != nil {
		return Light{}, fmt.Errorf("fetching light %d: %w", id, err)
	}

	var light Light
	if err := json.Unmarshal(resp, &light); err != nil {
		return Light{}, fmt.Errorf("parsing light %d: %w", id, err)
	}
	return light, nil
}

// SetLightState writes a state change to a light. Only the fields set
// on change are transmitted.
func (c *Client) SetLightState(ctx context.Context, id int, change StateChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling state change: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPut, c.keyPath("lights/"+strconv.Itoa(id)+"/state"), body); err != nil {
		return fmt.Errorf("setting state of light %d: %w", id, err)
	}
	return nil
}

// SearchLights asks the gateway to open the Zigbee network for new
// lights for about a minute. Results show up via NewLights.
func (c *Client) SearchLights(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodPost, c.keyPath("lights"), nil); err != nil {
		return fmt.Errorf("starting light search: %w", err)
	}
	log.Printf("[deconz] Gateway %s is searching for new lights", c.baseURL)
	return nil
}

// NewLights reports lights found by the last SearchLights, keyed by id,
// valued by name. The gateway's "lastscan" bookkeeping field is
// dropped.
func (c *Client) NewLights(ctx context.Context) (map[int]string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.keyPath("lights/new"), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching new lights: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing new lights: %w", err)
	}

	found := make(map[int]string)
	for id, msg := range raw {
		if id == "lastscan" {
			continue
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("light id %q is not numeric: %w", id, err)
		}
		var entry struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg, &entry); err != nil {
			return nil, fmt.Errorf("parsing new light %q: %w", id, err)
		}
		found[n] = entry.Name
	}
	return found, nil
}

// Groups fetches all groups known to the gateway.
func (c *Client) Groups(ctx context.Context) (map[int]Group, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.keyPath("groups"), nil)
	if err != nil {
		return nil, fmt.Errorf("fetching groups: %w", err)
	}

	var raw map[string]Group
	if err := json.Unmarshal(resp, &raw); err != nil {
		return nil, fmt.Errorf("parsing groups: %w", err)
	}

	groups := make(map[int]Group, len(raw))
	for id, g := range raw {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("group id %q is not numeric: %w", id, err)
		}
		groups[n] = g
	}
	return groups, nil
}

// SetGroupAction writes a state change to every light in a group.
// Group 0 is the gateway's built-in all-lights group.
func (c *Client) SetGroupAction(ctx context.Context, id int, change StateChange) error {
	body, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling group action: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPut, c.keyPath("groups/"+strconv.Itoa(id)+"/action"), body); err != nil {
		return fmt.Errorf("setting action of group %d: %w", id, err)
	}
	return nil
}

// Config fetches the authenticated gateway configuration, including
// the websocket port for the event stream.
func (c *Client) Config(ctx context.Context) (GatewayConfig, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.keyPath("config"), nil)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("fetching config: %w", err)
	}

	var cfg GatewayConfig
	if err := json.Unmarshal(resp, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// UnauthenticatedConfig fetches the public subset of the gateway
// configuration from /api/config. It needs no API key and is used by
// discovery probes to tell a deCONZ gateway apart from other HTTP
// servers.
func (c *Client) UnauthenticatedConfig(ctx context.Context) (GatewayConfig, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/config", nil)
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("fetching public config: %w", err)
	}

	var cfg GatewayConfig
	if err := json.Unmarshal(resp, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("parsing public config: %w", err)
	}
	return cfg, nil
}

// SortedIDs returns the ids of a lights map in ascending order. Light
// listings should be stable between calls.
func SortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (c *Client) keyPath(suffix string) string {
	return "/api/" + c.apiKey + "/" + suffix
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("gateway returned %d (retryable): %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode >= 400 {
			// 4xx answers are the gateway rejecting the request; a
			// retry would just repeat the rejection.
			if apiErr := decodeAPIError(respBody); apiErr != nil {
				return Permanent(apiErr)
			}
			return Permanent(fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody)))
		}
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return respBody, nil
}

// decodeAPIError extracts the first error of a gateway error envelope,
// or nil if the body is not one.
func decodeAPIError(body []byte) *APIError {
	var items []apiResponseItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil
	}
	for _, item := range items {
		if item.Error != nil {
			return item.Error
		}
	}
	return nil
}
