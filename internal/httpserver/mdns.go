package httpserver

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"

	"sessionhub/internal/logging"
)

// mdnsService is the DNS-SD service type clients browse for.
const mdnsService = "_sessionhub._tcp"

// Advertise publishes the server on the local network through the system
// dns-sd (macOS) or avahi-publish-service (Linux) helper, so it does not
// compete with the system responder for UDP 5353. The returned function
// withdraws the registration. Without either helper it is a no-op.
func Advertise(addr, version string, authRequired bool) func() {
	log := logging.NewLogger("mdns")
	port := parsePort(addr)
	if port == 0 {
		log.WithField("addr", addr).Warn("cannot advertise address without a port")
		return func() {}
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "sessionhub"
	}
	txt := []string{
		fmt.Sprintf("version=%s", version),
		fmt.Sprintf("auth=%t", authRequired),
		"paths=/ws,/shell,/session-sync",
	}

	var cmd *exec.Cmd
	if path, err := exec.LookPath("dns-sd"); err == nil {
		args := append([]string{"-R", hostname, mdnsService, "local", strconv.Itoa(port)}, txt...)
		cmd = exec.Command(path, args...)
	} else if path, err := exec.LookPath("avahi-publish-service"); err == nil {
		args := append([]string{hostname, mdnsService, strconv.Itoa(port)}, txt...)
		cmd = exec.Command(path, args...)
	} else {
		log.Debug("no dns-sd or avahi-publish-service found; skipping mDNS registration")
		return func() {}
	}

	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("failed to start mDNS helper")
		return func() {}
	}
	log.WithField("port", port).WithField("pid", cmd.Process.Pid).
		Infof("registered %s.%s.local", hostname, mdnsService)

	return func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}
}

// parsePort extracts the numeric port from an address like ":8080" or "0.0.0.0:8080".
func parsePort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(p)
	return port
}
