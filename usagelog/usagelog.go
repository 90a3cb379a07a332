// Package usagelog writes the usage records consumed by site accounting:
// an append-only per-query log and a per-identity totals table that is
// rewritten in full on every update.
package usagelog

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/blackmesalabs/ash/errors"
)

// ObfuscateKey reduces an API key to a short stable identifier safe for
// log files.
func ObfuscateKey(apiKey string) string {
	if apiKey == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])[:10]
}

// AppendQuery appends one per-query record:
// timestamp, identity, model, obfuscated key, upload and download counts,
// tab separated.
func AppendQuery(path, identity, model, apiKey string, upload, download int64) error {
	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%d\n",
		time.Now().Format("2006-01-02 15:04:05"),
		identity, model, ObfuscateKey(apiKey), upload, download)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "could not write to query usage log %s", path)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

type identityTotals struct {
	identity  string
	uploads   int64
	downloads int64
	model     string
	key       string
	pct       float64
}

// UpdateTotals folds one session's usage into the totals table at path.
// The whole file is rewritten, one line per identity with whitespace
// separated key=value fields, sorted by descending share.
func UpdateTotals(path, identity, model, apiKey string, upload, download int64) error {
	totals, err := readTotals(path)
	if err != nil {
		return err
	}

	entry, ok := totals[identity]
	if !ok {
		entry = &identityTotals{identity: identity}
		totals[identity] = entry
	}
	entry.uploads += upload
	entry.downloads += download
	entry.model = model
	entry.key = ObfuscateKey(apiKey)

	var all int64
	for _, t := range totals {
		all += t.uploads + t.downloads
	}
	list := make([]*identityTotals, 0, len(totals))
	for _, t := range totals {
		if all > 0 {
			t.pct = float64(t.uploads+t.downloads) / float64(all) * 100
		}
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].pct != list[j].pct {
			return list[i].pct > list[j].pct
		}
		return list[i].identity < list[j].identity
	})

	var sb strings.Builder
	for _, t := range list {
		fmt.Fprintf(&sb, "%s pct=%.1f%% uploads=%s downloads=%s model=%s key=%s\n",
			t.identity, t.pct, groupThousands(t.uploads), groupThousands(t.downloads),
			t.model, t.key)
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return errors.Wrapf(err, "could not write to user totals log %s", path)
	}
	return nil
}

func readTotals(path string) (map[string]*identityTotals, error) {
	totals := map[string]*identityTotals{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return totals, nil
		}
		return nil, errors.Wrapf(err, "could not read user totals log %s", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		entry := &identityTotals{identity: fields[0]}
		for _, kv := range fields[1:] {
			key, val, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch key {
			case "uploads":
				entry.uploads = parseGrouped(val)
			case "downloads":
				entry.downloads = parseGrouped(val)
			case "model":
				entry.model = val
			case "key":
				entry.key = val
			}
		}
		totals[entry.identity] = entry
	}
	return totals, sc.Err()
}

func parseGrouped(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n
}

// groupThousands formats n with US comma grouping.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
