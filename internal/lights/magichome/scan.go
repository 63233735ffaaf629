package magichome

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DiscoveryAddress = "255.255.255.255:48899"
	discoveryMessage = "HF-A11ASSISTHREAD"
)

// Found is a controller that answered the discovery broadcast.
type Found struct {
	IP    string
	MAC   string
	Model string
}

// Scan broadcasts the discovery message to broadcastAddr and collects replies
// until timeout or ctx is done.
func Scan(ctx context.Context, broadcastAddr string, timeout time.Duration) ([]Found, error) {
	raddr, err := net.ResolveUDPAddr("udp4", broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery address %v: %w", broadcastAddr, err)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, fmt.Errorf("failed to open discovery socket: %w", err)
	}
	defer conn.Close()

	logger.With(zap.String("address", broadcastAddr), zap.Stringer("timeout", timeout)).Info("Scanning for Magic Home controllers...")

	if _, err := conn.WriteToUDP([]byte(discoveryMessage), raddr); err != nil {
		return nil, fmt.Errorf("failed to send discovery message: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	seen := make(map[string]bool)
	found := make([]Found, 0)
	buf := make([]byte, 1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return found, fmt.Errorf("failed to read discovery reply: %w", err)
		}

		f, ok := parseReply(string(buf[:n]))
		if !ok || seen[f.IP] {
			continue
		}
		seen[f.IP] = true
		logger.With(zap.String("ip", f.IP), zap.String("mac", f.MAC), zap.String("model", f.Model)).Info("Found Magic Home controller")
		found = append(found, f)
	}

	return found, ctx.Err()
}

// parseReply parses "ip,mac,model" replies. The echo of our own broadcast is
// rejected.
func parseReply(reply string) (Found, bool) {
	parts := strings.Split(strings.TrimSpace(reply), ",")
	if len(parts) < 2 {
		return Found{}, false
	}
	if net.ParseIP(parts[0]) == nil {
		return Found{}, false
	}

	f := Found{IP: parts[0], MAC: parts[1]}
	if len(parts) > 2 {
		f.Model = parts[2]
	}
	return f, true
}
