package app

import "sync"

// Version is the current version of the eventcore module.
const Version = "v0.1.0"

var (
	appVersionMu sync.RWMutex
	appVersion   string
)

// AppVersion is the version of the application embedding eventcore.
func AppVersion() string {
	appVersionMu.RLock()
	defer appVersionMu.RUnlock()
	return appVersion
}

// SetAppVersion sets the version of the application embedding eventcore.
func SetAppVersion(v string) {
	appVersionMu.Lock()
	appVersion = v
	appVersionMu.Unlock()
}
