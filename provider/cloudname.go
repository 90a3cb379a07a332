package provider

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cloud file names are derived from {local basename, wall-clock time,
// process id, per-host fingerprint} so that uploads from concurrent
// processes on different hosts never collide, and so a reclamation sweep
// can filter candidates by age and provenance without any shared state.
//
// Format: ash_<ts8hex>_<pid8hex>_<host8hex>_<basename>

var cloudNameRe = regexp.MustCompile(`^ash_([0-9a-fA-F]{8})_([0-9a-fA-F]{8})_([0-9a-fA-F]{8})_.+$`)

// TrustLevel bounds which orphaned remote files a sweep may delete.
type TrustLevel int

const (
	// TrustNone disables reclamation entirely.
	TrustNone TrustLevel = iota
	// TrustSameProcess deletes only files this process uploaded.
	TrustSameProcess
	// TrustSameHost deletes files uploaded from this host.
	TrustSameHost
	// TrustAnyHost deletes any sufficiently old ash file.
	TrustAnyHost
)

// MakeCloudName derives a unique remote name for a local file.
func MakeCloudName(localPath string) string {
	return fmt.Sprintf("ash_%08x_%08x_%s_%s",
		uint32(time.Now().Unix()),
		uint32(os.Getpid()),
		hostToken(8),
		filepath.Base(localPath))
}

// IsCloudName reports whether name matches the ash cloud-file format.
func IsCloudName(name string) bool {
	return cloudNameRe.MatchString(name)
}

// FindOldCloudFiles filters names down to ash files older than maxAge that
// the given trust level allows deleting.
func FindOldCloudFiles(names []string, maxAge time.Duration, trust TrustLevel) []string {
	if trust == TrustNone {
		return nil
	}
	now := time.Now().Unix()
	myPID := fmt.Sprintf("%08x", uint32(os.Getpid()))
	myHost := hostToken(8)

	var out []string
	for _, name := range names {
		m := cloudNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		ts, err := strconv.ParseUint(m[1], 16, 32)
		if err != nil {
			continue
		}
		if now-int64(ts) <= int64(maxAge.Seconds()) {
			continue
		}

		pidHex := strings.ToLower(m[2])
		hostTok := strings.ToLower(m[3])
		allow := false
		switch trust {
		case TrustAnyHost:
			allow = true
		case TrustSameHost:
			allow = hostTok == myHost
		case TrustSameProcess:
			allow = hostTok == myHost && pidHex == myPID
		}
		if allow {
			out = append(out, name)
		}
	}
	return out
}

// hostToken returns a stable fingerprint for this host: the leading hex of
// SHA-1 over the machine id, falling back to the hostname.
func hostToken(length int) string {
	var candidate string
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			if mid := strings.TrimSpace(string(data)); mid != "" {
				candidate = mid
				break
			}
		}
	}
	if candidate == "" {
		if host, err := os.Hostname(); err == nil {
			candidate = host
		} else {
			candidate = "unknown"
		}
	}
	sum := sha1.Sum([]byte(candidate))
	return hex.EncodeToString(sum[:])[:length]
}
