package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"

	"deconzctl/internal/deconz"
)

// Gateway is a deCONZ gateway found on the local network.
type Gateway struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	BridgeID string `json:"bridgeId"`
	Name     string `json:"name"`
}

// BaseURL renders the gateway's REST endpoint.
func (g Gateway) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

type Scanner struct {
	// cloudURL is overridable for tests; defaults to the Phoscon
	// discovery service.
	cloudURL string
}

func NewScanner() *Scanner {
	return &Scanner{cloudURL: "https://phoscon.de/discover"}
}

// Scan merges three strategies: the Phoscon cloud lookup, an mDNS
// query, and an SSDP M-SEARCH. Every candidate address is verified by
// probing /api/config before it is reported. Candidates that respond
// without a bridge id are dropped.
func (s *Scanner) Scan(ctx context.Context) []Gateway {
	var mu sync.Mutex
	seen := make(map[string]bool)
	var candidates []candidate

	addCandidate := func(host string, port int) {
		key := fmt.Sprintf("%s:%d", host, port)
		mu.Lock()
		defer mu.Unlock()
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, candidate{host: host, port: port})
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.discoverViaCloud(ctx, addCandidate)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		discoverViaMDNS(ctx, addCandidate)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		discoverViaSSDP(ctx, addCandidate)
	}()

	wg.Wait()

	mu.Lock()
	pending := append([]candidate(nil), candidates...)
	mu.Unlock()

	log.Printf("[discovery] Verifying %d candidate gateway(s)", len(pending))

	var gateways []Gateway
	for _, cand := range pending {
		if gw, ok := probeGateway(ctx, cand.host, cand.port); ok {
			log.Printf("[discovery] Verified gateway %s (%s) at %s:%d", gw.Name, gw.BridgeID, gw.Host, gw.Port)
			gateways = append(gateways, gw)
		}
	}
	return gateways
}

type candidate struct {
	host string
	port int
}

func (s *Scanner) discoverViaCloud(ctx context.Context, addCandidate func(host string, port int)) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cloudURL, nil)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[discovery] Phoscon lookup error: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[discovery] Phoscon lookup returned %d", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return
	}

	var results []struct {
		ID                string `json:"id"`
		InternalIPAddress string `json:"internalipaddress"`
		InternalPort      int    `json:"internalport"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		log.Printf("[discovery] Phoscon lookup parse error: %v", err)
		return
	}

	for _, r := range results {
		if r.InternalIPAddress == "" {
			continue
		}
		port := r.InternalPort
		if port == 0 {
			port = 80
		}
		log.Printf("[discovery] Phoscon lookup found gateway at %s:%d (id: %s)", r.InternalIPAddress, port, r.ID)
		addCandidate(r.InternalIPAddress, port)
	}
}

func discoverViaMDNS(ctx context.Context, addCandidate func(host string, port int)) {
	entries := make(chan *mdns.ServiceEntry, 10)

	go func() {
		params := &mdns.QueryParam{
			Service:             "_http._tcp",
			Domain:              "local",
			Timeout:             3 * time.Second,
			Entries:             entries,
			DisableIPv6:         true,
			WantUnicastResponse: true,
		}
		if err := mdns.Query(params); err != nil {
			log.Printf("[discovery] mDNS query error: %v", err)
		}
		close(entries)
	}()

	for entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := strings.ToLower(entry.Name)
		info := strings.ToLower(entry.Info)
		if !strings.Contains(name, "phoscon") && !strings.Contains(name, "deconz") &&
			!strings.Contains(info, "phoscon") && !strings.Contains(info, "deconz") {
			continue
		}
		addr := entry.AddrV4.String()
		if addr == "" || addr == "<nil>" {
			continue
		}
		port := entry.Port
		if port == 0 {
			port = 80
		}
		log.Printf("[discovery] mDNS found gateway candidate at %s:%d (%s)", addr, port, entry.Name)
		addCandidate(addr, port)
	}
}

func discoverViaSSDP(ctx context.Context, addCandidate func(host string, port int)) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		log.Printf("[discovery] SSDP: failed to open UDP socket: %v", err)
		return
	}
	defer conn.Close()

	ssdpAddr, err := net.ResolveUDPAddr("udp4", "239.255.255.250:1900")
	if err != nil {
		return
	}

	msg := "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"ST: upnp:rootdevice\r\n" +
		"MX: 3\r\n" +
		"\r\n"
	if _, err := conn.WriteTo([]byte(msg), ssdpAddr); err != nil {
		log.Printf("[discovery] SSDP: failed to send M-SEARCH: %v", err)
		return
	}

	deadline := time.Now().Add(5 * time.Second)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline.Add(-500 * time.Millisecond)
	}

	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			continue
		}

		response := strings.ToUpper(string(buf[:n]))
		// deCONZ advertises itself through its UPnP description; the
		// server header carries the gateway id.
		if !strings.Contains(response, "DECONZ") && !strings.Contains(response, "GWID") &&
			!strings.Contains(response, "PHOSCON") {
			continue
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok {
			continue
		}
		ip := udpAddr.IP.String()
		log.Printf("[discovery] SSDP found gateway candidate at %s", ip)
		addCandidate(ip, 80)
	}
}

// probeGateway asks /api/config for the public configuration; any HTTP
// server that answers with a bridge id is a deCONZ gateway.
func probeGateway(ctx context.Context, host string, port int) (Gateway, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client := deconz.NewClient(fmt.Sprintf("http://%s:%d", host, port), "")
	cfg, err := client.UnauthenticatedConfig(probeCtx)
	if err != nil {
		log.Printf("[discovery] Probe of %s:%d failed: %v", host, port, err)
		return Gateway{}, false
	}
	if cfg.BridgeID == "" {
		return Gateway{}, false
	}
	return Gateway{
		Host:     host,
		Port:     port,
		BridgeID: cfg.BridgeID,
		Name:     cfg.Name,
	}, true
}
