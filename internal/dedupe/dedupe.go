// Package dedupe flags patient records that collide on contact details so
// the merge workflow can offer them as candidates.
package dedupe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/livhair/schedule-engine/internal/schedule"
	"github.com/livhair/schedule-engine/internal/search"
)

// minPhoneDigits filters placeholder values out of the phone index.
const minPhoneDigits = 5

// Kind names the dimension a group collided on.
type Kind string

const (
	KindEmail Kind = "email"
	KindPhone Kind = "phone"
	KindName  Kind = "name"
)

// Group is one set of patient ids sharing a single normalized key.
type Group struct {
	Kind Kind    `json:"kind"`
	Key  string  `json:"key"`
	IDs  []int64 `json:"ids"`
}

// CollectDuplicateIDs builds three independent indexes over patients, keyed
// by normalized email, digits-only phone and "first|last" name, and flags
// every id belonging to a key that holds more than one id. Grouping is
// per-key: colliding on one dimension is enough, and records linked only
// through a third record by a different key type are not merged into one
// cluster.
func CollectDuplicateIDs(patients []schedule.Patient) map[int64]bool {
	flagged := make(map[int64]bool)
	for _, g := range Groups(patients) {
		for _, id := range g.IDs {
			flagged[id] = true
		}
	}
	return flagged
}

// Groups returns every colliding key with its member ids, ordered by kind
// then key so the output is stable across rebuilds.
func Groups(patients []schedule.Patient) []Group {
	byEmail := make(map[string][]int64)
	byPhone := make(map[string][]int64)
	byName := make(map[string][]int64)

	for _, p := range patients {
		if p.Deleted {
			continue
		}
		if key := NormalizeEmail(p.Email); key != "" {
			byEmail[key] = appendUnique(byEmail[key], p.ID)
		}
		if key := NormalizePhone(p.Phone); key != "" {
			byPhone[key] = appendUnique(byPhone[key], p.ID)
		}
		if key := NameKey(p.FirstName, p.LastName); key != "" {
			byName[key] = appendUnique(byName[key], p.ID)
		}
	}

	var out []Group
	out = appendGroups(out, KindEmail, byEmail)
	out = appendGroups(out, KindPhone, byPhone)
	out = appendGroups(out, KindName, byName)
	return out
}

// NormalizeEmail lowercases and trims an email address for keying.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only digits. Values with fewer than five digits are
// treated as absent.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < minPhoneDigits {
		return ""
	}
	return b.String()
}

// NameKey folds both names into the "first|last" index key. Empty when the
// record has no name at all.
func NameKey(first, last string) string {
	f := search.NormalizeText(first)
	l := search.NormalizeText(last)
	if f == "" && l == "" {
		return ""
	}
	return fmt.Sprintf("%s|%s", f, l)
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}

func appendGroups(out []Group, kind Kind, index map[string][]int64) []Group {
	keys := make([]string, 0, len(index))
	for key, ids := range index {
		if len(ids) > 1 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		ids := index[key]
		sorted := make([]int64, len(ids))
		copy(sorted, ids)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		out = append(out, Group{Kind: kind, Key: key, IDs: sorted})
	}
	return out
}
