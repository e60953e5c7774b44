// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feedui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the viewer's key bindings.
type KeyMap struct {
	Up        key.Binding
	Down      key.Binding
	Comments  key.Binding // Toggle the selected report's details and comments.
	Duplicate key.Binding // "Report same issue" on the selected report.
	Refresh   key.Binding
	Quit      key.Binding

	// Pincode capture form. Other keys edit the field.
	Save      key.Binding
	Clear     key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap uses vim-style navigation alongside the arrow keys.
var DefaultKeyMap = KeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	Comments: key.NewBinding(
		key.WithKeys("enter", "c"),
		key.WithHelp("enter", "details"),
	),
	Duplicate: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "same issue"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Save: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "save pincode"),
	),
	Clear: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "clear"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("ctrl+c", "quit"),
	),
}

func (keys KeyMap) help() []key.Binding {
	return []key.Binding{keys.Up, keys.Down, keys.Comments, keys.Duplicate, keys.Refresh, keys.Quit}
}

func (keys KeyMap) captureHelp() []key.Binding {
	return []key.Binding{keys.Save, keys.Clear, keys.ForceQuit}
}
