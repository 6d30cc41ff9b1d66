package config

import (
	"net"
	"os"
	"sync"
)

// DockerHostGateway is the name Docker resolves to the host machine.
const DockerHostGateway = "host.docker.internal"

var inContainer = sync.OnceValue(func() bool {
	_, err := os.Stat("/.dockerenv")
	return err == nil
})

// IsRunningInDocker reports whether the engine runs in a Docker container.
func IsRunningInDocker() bool {
	return inContainer()
}

// ResolveHostForDocker points a loopback data source host at the Docker host
// gateway when the engine runs in a container, where loopback would reach the
// container itself. Every other host is returned as is.
func ResolveHostForDocker(host string) string {
	if !isLoopback(host) || !inContainer() {
		return host
	}
	return DockerHostGateway
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
