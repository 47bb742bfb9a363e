// Package env provides facts about the host the link runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID keys the protected machine id.
const AppID = "ftclick"

// MachineID returns an id of this machine which is stable across
// restarts and does not reveal the raw machine id. It falls back to the
// host name where no machine id is available.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id
	}
	glog.Warningf("machine id unavailable: %v", err)
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown"
}

// ClientID builds a short client id with a prefix.
func ClientID(prefix string) string {
	id := MachineID()
	if len(id) > 12 {
		id = id[:12]
	}
	return prefix + id
}
