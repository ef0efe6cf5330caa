package stitchutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kzh/stitch/internal/model"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", DisplayName("alice", "alice"))
	assert.Equal(t, "Alice", DisplayName("Alice", "alice"))
	assert.Equal(t, "Alice (alicealt)", DisplayName("Alice", "alicealt"))
}

func TestHumanDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "1h00m", HumanDuration(start, start.Add(time.Hour)))
	assert.Equal(t, "1h30m", HumanDuration(start, start.Add(90*time.Minute)))
	assert.Equal(t, "0h00m", HumanDuration(start, start))
	assert.Equal(t, "<in the future>", HumanDuration(start, start.Add(-time.Minute)))
}

func baseTime() time.Time {
	return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
}

func TestTally_SingleTitleAndCategory(t *testing.T) {
	base := baseTime()
	events := []model.UpdateEvent{
		{Title: "Stream Title", Category: "Gaming", Timestamp: base},
		{Title: "Stream Title", Category: "Gaming", Timestamp: base.Add(time.Hour)},
	}
	title, categories := Tally(events)
	assert.Equal(t, "Stream Title", title)
	assert.Equal(t, int64(3600), categories["Gaming"])
}

func TestTally_MultipleTitlesSingleCategory(t *testing.T) {
	base := baseTime()
	events := []model.UpdateEvent{
		{Title: "Initial Title", Category: "Gaming", Timestamp: base},
		{Title: "Initial Title", Category: "Gaming", Timestamp: base.Add(time.Hour)},
		{Title: "Changed Title", Category: "Gaming", Timestamp: base.Add(4 * time.Hour)},
		{Title: "Final Title", Category: "Gaming", Timestamp: base.Add(4*time.Hour + 30*time.Minute)},
	}
	title, categories := Tally(events)
	assert.Equal(t, "Initial Title", title) // 4 hours vs 30 minutes
	assert.Equal(t, int64(16200), categories["Gaming"])
}

func TestTally_MultipleCategories(t *testing.T) {
	base := baseTime()
	events := []model.UpdateEvent{
		{Title: "Playing Minecraft", Category: "Minecraft", Timestamp: base},
		{Title: "Still Playing", Category: "Minecraft", Timestamp: base.Add(time.Hour + 30*time.Minute)},
		{Title: "Just Chatting", Category: "Just Chatting", Timestamp: base.Add(4 * time.Hour)},
		{Title: "Playing Fortnite", Category: "Fortnite", Timestamp: base.Add(4*time.Hour + 15*time.Minute)},
	}
	title, categories := Tally(events)
	assert.Equal(t, "Still Playing", title) // 2.5 hours
	assert.Equal(t, int64(14400), categories["Minecraft"])
	assert.Equal(t, int64(900), categories["Just Chatting"])
	_, ok := categories["Fortnite"]
	assert.False(t, ok) // last event contributes no duration
}

func TestTally_TiesPickEitherWinner(t *testing.T) {
	base := baseTime()
	events := []model.UpdateEvent{
		{Title: "Title A", Category: "Category A", Timestamp: base},
		{Title: "Title B", Category: "Category B", Timestamp: base.Add(time.Hour)},
		{Title: "Title C", Category: "Category C", Timestamp: base.Add(2 * time.Hour)},
	}
	title, categories := Tally(events)
	assert.Contains(t, []string{"Title A", "Title B"}, title)
	assert.Equal(t, int64(3600), categories["Category A"])
	assert.Equal(t, int64(3600), categories["Category B"])
	_, ok := categories["Category C"]
	assert.False(t, ok)
}

func TestTally_InsufficientEventsYieldsNoWindows(t *testing.T) {
	events := []model.UpdateEvent{
		{Title: "Only Title", Category: "Only Category", Timestamp: baseTime()},
	}
	title, categories := Tally(events)
	assert.Empty(t, title)
	assert.Empty(t, categories)
}

func TestCategoryLabel(t *testing.T) {
	label := CategoryLabel(map[string]int64{"Gaming": 100, "Art": 200, "Music": 50, "Chess": 10})
	require.Equal(t, "» Art ⬩ Gaming ⬩ Music", label)
}
