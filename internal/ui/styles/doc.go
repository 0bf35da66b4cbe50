// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the localtalk TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. Theme detects the color profile with termenv.

# Colors (colors.go)

  - Purple - AI messages and the thinking indicator
  - Cyan - User highlights and the input prompt
  - Emerald - AI available, model ready
  - Amber - Downloads and live voice input
  - Rose - Errors and unavailable states

Status helpers (RenderSuccess, RenderError, RenderWarning, RenderInfo) pair
every color with an ASCII shape for colorblind users.

# Animations (animations.go)

LineSpinner and DotsSpinner are bubbles spinner definitions.
RenderProgressBar draws the model download bar.

# Usage

	theme := styles.NewTheme()
	bubble := theme.AIBubble.Width(60).Render(text)
*/
package styles
