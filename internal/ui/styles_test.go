package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStyles_HeaderIsBold(t *testing.T) {
	styles := DefaultStyles()
	assert.True(t, styles.Header.GetBold())
}

func TestNoColorStyles_RenderPlainText(t *testing.T) {
	// Given: no-color styles
	styles := NoColorStyles()

	// When: rendering text
	out := styles.Success.Render("ok") + styles.Error.Render("bad")

	// Then: no escape sequences are emitted
	assert.Equal(t, "okbad", out)
}

func TestGetStyles_SelectsByPreference(t *testing.T) {
	assert.True(t, GetStyles(false).Header.GetBold())
	assert.False(t, GetStyles(true).Header.GetBold())
}
