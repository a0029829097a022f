package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/driver"
)

func TestProgressModelTracksModules(t *testing.T) {
	events := make(chan driver.Event)
	m := NewProgressModel("build", 2, events).(*progressModel)

	m.applyEvent(driver.Event{Stage: driver.StageAnalyze, Status: driver.StatusWorking})
	require.Empty(t, m.items, "unnamed events must not add rows")
	m.applyEvent(driver.Event{Module: "geo", Stage: driver.StageTranslate, Status: driver.StatusWorking})
	m.applyEvent(driver.Event{Module: "geo", Stage: driver.StageArchive, Status: driver.StatusDone})
	m.applyEvent(driver.Event{Module: "app", Stage: driver.StageLower, Status: driver.StatusWorking})
	m.applyEvent(driver.Event{Module: "app", Stage: driver.StageLower, Phase: "default-arguments", Status: driver.StatusDone})

	require.Len(t, m.items, 2)
	assert.Equal(t, "done", m.items[0].status)
	assert.Equal(t, "lowering", m.items[1].status)
	p := m.percent()
	assert.Greater(t, p, 0.5)
	assert.Less(t, p, 1.0)

	view := m.View()
	assert.Contains(t, view, "geo")
	assert.Contains(t, view, "app")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a-very-...", truncate("a-very-long-module-name", 10))
}
