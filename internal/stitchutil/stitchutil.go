// Package stitchutil collects the small leaf helpers shared by the
// webhook engine: display-name rendering, human-readable durations,
// and offline-tally aggregation.
package stitchutil

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kzh/stitch/internal/model"
)

// DisplayName disambiguates a channel's display name against its login:
// when they're equal case-insensitively, the display name alone is used;
// otherwise both are shown.
func DisplayName(displayName, login string) string {
	if strings.ToLower(displayName) == login {
		return displayName
	}
	return fmt.Sprintf("%s (%s)", displayName, login)
}

// HumanDuration renders the elapsed time between start and end as
// "hXhMMm". Negative durations (end before start) render as
// "<in the future>".
func HumanDuration(start, end time.Time) string {
	elapsed := end.Sub(start)
	if elapsed < 0 {
		return "<in the future>"
	}
	minutes := int64(elapsed.Minutes())
	hours, mins := minutes/60, minutes%60
	return fmt.Sprintf("%dh%02dm", hours, mins)
}

// Tally walks the pairwise windows of an ordered event list, crediting
// each window's duration to its leading event's title and category.
// The final event in events never contributes its own duration, only
// its predecessor's. With fewer than two entries there are no windows,
// so the title is empty and the category map has no entries.
func Tally(events []model.UpdateEvent) (title string, categories map[string]int64) {
	titles := make(map[string]int64)
	categories = make(map[string]int64)

	for i := 0; i < len(events)-1; i++ {
		prev, curr := events[i], events[i+1]
		elapsed := int64(curr.Timestamp.Sub(prev.Timestamp).Seconds())
		titles[prev.Title] += elapsed
		categories[prev.Category] += elapsed
	}

	title = argmax(titles)
	return title, categories
}

// argmax returns the key with the highest value, breaking exact ties
// by the lexicographically smallest key so the winner is deterministic.
func argmax(counts map[string]int64) string {
	var winner string
	var best int64 = -1
	for k, v := range counts {
		if v > best || (v == best && k < winner) {
			winner, best = k, v
		}
	}
	return winner
}

// TopCategories returns up to n category names ordered by descending
// duration, breaking ties by name for determinism within a single run.
func TopCategories(categories map[string]int64, n int) []string {
	type entry struct {
		name     string
		duration int64
	}
	entries := make([]entry, 0, len(categories))
	for name, duration := range categories {
		entries = append(entries, entry{name, duration})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].duration != entries[j].duration {
			return entries[i].duration > entries[j].duration
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// CategoryLabel renders the top-3 categories joined the way the live
// and ended chat cards format their field value.
func CategoryLabel(categories map[string]int64) string {
	top := TopCategories(categories, 3)
	return fmt.Sprintf("» %s", strings.Join(top, " ⬩ "))
}
