package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// MachineID retrieves an ID identifying the machine, protected so the
// raw machine id is not published. It falls back to the hostname.
func MachineID() string {
	id, err := machineid.ProtectedID("kart")
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "kart"
}
