package authsnap

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

const (
	// GitHub Actions rejects secrets larger than this.
	DefaultBudget = 64 * 1024
	// storage values at least this long are candidates for removal when a
	// snapshot does not fit.
	DefaultDropThreshold = 10000
)

// Encode serializes the snapshot as compact JSON and base64 encodes it.
func Encode(s Snapshot) (string, error) {
	if s.LocalStorage == nil {
		s.LocalStorage = map[string]string{}
	}
	if s.SessionStorage == nil {
		s.SessionStorage = map[string]string{}
	}
	raw, err := sonic.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode accepts either a full snapshot bundle or a bare list of cookies,
// base64 encoded with or without padding. Surrounding whitespace is ignored.
func Decode(encoded string) (Snapshot, error) {
	encoded = strings.Join(strings.Fields(encoded), "")
	if encoded == "" {
		return Snapshot{}, fmt.Errorf("empty snapshot")
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot is not valid base64: %w", err)
		}
	}
	return Unmarshal(raw)
}

// Unmarshal parses the JSON form of a snapshot (or bare cookie list).
func Unmarshal(raw []byte) (Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var cookies []Cookie
		if err := sonic.Unmarshal(raw, &cookies); err != nil {
			return Snapshot{}, fmt.Errorf("unmarshal cookie list: %w", err)
		}
		return Snapshot{Cookies: cookies}, nil
	}

	var s Snapshot
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, nil
}

// EncodeCookies produces the bare cookie list form.
func EncodeCookies(cookies []Cookie) (string, error) {
	if cookies == nil {
		cookies = []Cookie{}
	}
	raw, err := sonic.Marshal(cookies)
	if err != nil {
		return "", fmt.Errorf("marshal cookies: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Indented renders the snapshot as human readable JSON.
func Indented(s Snapshot) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(s, "", "  ")
}

type DroppedEntry struct {
	Storage string
	Key     string
	Size    int
}

type FitResult struct {
	Snapshot   Snapshot
	Encoded    string
	Dropped    []DroppedEntry
	OverBudget bool
}

// Fit encodes the snapshot and, when the result exceeds budget bytes, drops
// storage entries whose value is at least threshold bytes long (largest
// first) until it fits. Cookies and smaller entries are never dropped. If
// the snapshot is still too large once no candidates remain, the last
// encoding is returned with OverBudget set.
func Fit(s Snapshot, budget, threshold int) (FitResult, error) {
	out := Snapshot{
		Cookies:        s.Cookies,
		LocalStorage:   copyMap(s.LocalStorage),
		SessionStorage: copyMap(s.SessionStorage),
	}

	encoded, err := Encode(out)
	if err != nil {
		return FitResult{}, err
	}
	if len(encoded) <= budget {
		return FitResult{Snapshot: out, Encoded: encoded}, nil
	}

	var candidates []DroppedEntry
	for k, v := range out.LocalStorage {
		if len(v) >= threshold {
			candidates = append(candidates, DroppedEntry{Storage: "localStorage", Key: k, Size: len(v)})
		}
	}
	for k, v := range out.SessionStorage {
		if len(v) >= threshold {
			candidates = append(candidates, DroppedEntry{Storage: "sessionStorage", Key: k, Size: len(v)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Size != candidates[j].Size {
			return candidates[i].Size > candidates[j].Size
		}
		return candidates[i].Key < candidates[j].Key
	})

	result := FitResult{}
	for _, c := range candidates {
		if c.Storage == "localStorage" {
			delete(out.LocalStorage, c.Key)
		} else {
			delete(out.SessionStorage, c.Key)
		}
		result.Dropped = append(result.Dropped, c)

		encoded, err = Encode(out)
		if err != nil {
			return FitResult{}, err
		}
		if len(encoded) <= budget {
			break
		}
	}

	result.Snapshot = out
	result.Encoded = encoded
	result.OverBudget = len(encoded) > budget
	if result.OverBudget {
		slog.Warn(
			"snapshot still exceeds budget after dropping large storage entries",
			"size", len(encoded),
			"budget", budget,
			"dropped", len(result.Dropped),
		)
	}
	return result, nil
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
