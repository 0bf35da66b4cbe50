// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText wraps text to maxWidth display columns. Lines break at the last
// space when there is one, else between characters, which is the usual case
// for Japanese.
func wrapText(text string, maxWidth int) string {
	if maxWidth <= 0 {
		return text
	}

	var result strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			result.WriteString("\n")
		}

		runes := []rune(line)
		for runewidth.StringWidth(string(runes)) > maxWidth {
			cut, width, lastSpace := 0, 0, -1
			for cut < len(runes) {
				w := runewidth.RuneWidth(runes[cut])
				if width+w > maxWidth {
					break
				}
				if runes[cut] == ' ' {
					lastSpace = cut
				}
				width += w
				cut++
			}
			if cut == 0 {
				// A single rune wider than the limit
				cut = 1
			}
			if lastSpace > 0 {
				cut = lastSpace
			}

			result.WriteString(string(runes[:cut]))
			result.WriteString("\n")
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		result.WriteString(string(runes))
	}

	return result.String()
}
