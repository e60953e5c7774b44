// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feedui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/lib/clock"
	"github.com/crowdsync/crowdsync/locality"
	"github.com/crowdsync/crowdsync/report"
)

// Actions is the part of the feed controller the viewer drives.
// *feed.Controller satisfies it.
type Actions interface {
	State() feed.State
	Refresh(ctx context.Context) error
	SetPincode(ctx context.Context, pincode string) error
	MarkDuplicate(ctx context.Context, postID string) error
	LoadComments(ctx context.Context, postID string) ([]report.Comment, error)
}

// Config holds the dependencies of a Model.
type Config struct {
	Actions Actions
	// Events must be the same value the controller was configured
	// with. Optional; without it the model re-reads State after each
	// action it starts.
	Events *Events
	// Localities looks up the pincode typed into the capture form.
	// Optional; without it the form only checks the format. Pass
	// Events.OnLocalities as the tracker's onChange so lookups redraw.
	Localities *locality.Tracker
	// Context bounds controller calls. Defaults to Background.
	Context context.Context
	Clock   clock.Clock
	Theme   *Theme
	Keys    *KeyMap
}

// actionDoneMsg reports the end of a controller call started by a key.
type actionDoneMsg struct {
	err error
}

// Model is the bubbletea model of the feed viewer.
type Model struct {
	actions    Actions
	events     *Events
	localities *locality.Tracker
	ctx        context.Context
	clock      clock.Clock
	theme      Theme
	keys       KeyMap

	state    feed.State
	cursor   int
	expanded map[string]bool
	status   *feed.Notification
	busy     bool
	// pincode is the capture form's field. It has focus whenever the
	// controller shows ViewPincodeCapture.
	pincode textinput.Model

	width  int
	height int
}

// NewModel returns a model showing the controller's current state.
func NewModel(cfg Config) Model {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	theme := DefaultTheme
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}
	keys := DefaultKeyMap
	if cfg.Keys != nil {
		keys = *cfg.Keys
	}
	pincode := textinput.New()
	pincode.Prompt = "Pincode: "
	pincode.Placeholder = "6 digits"
	pincode.CharLimit = 6
	pincode.Width = 8
	pincode.Focus()

	return Model{
		actions:    cfg.Actions,
		events:     cfg.Events,
		localities: cfg.Localities,
		ctx:        ctx,
		clock:      timeSource,
		theme:      theme,
		keys:       keys,
		state:      cfg.Actions.State(),
		expanded:   make(map[string]bool),
		pincode:    pincode,
	}
}

// Init starts listening for controller events and loads the feed.
func (model Model) Init() tea.Cmd {
	commands := []tea.Cmd{
		model.run(func(ctx context.Context) error { return model.actions.Refresh(ctx) }),
		textinput.Blink,
	}
	if model.events != nil {
		commands = append(commands, model.events.listen())
	}
	return tea.Batch(commands...)
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		return model, nil

	case tea.KeyMsg:
		return model.handleKey(message)

	case eventsMsg:
		for _, event := range message {
			model.handleEvent(event)
		}
		return model, model.events.listen()

	case stateMsg, notificationMsg, localitiesMsg:
		model.handleEvent(message)
		return model, nil

	case actionDoneMsg:
		model.busy = false
		if model.events == nil {
			model.setState(model.actions.State())
			if message.err != nil {
				model.status = &feed.Notification{Level: feed.LevelError, Message: message.err.Error()}
			}
		}
		return model, nil
	}
	// Cursor blinks and other field internals.
	if model.state.View == feed.ViewPincodeCapture {
		var command tea.Cmd
		model.pincode, command = model.pincode.Update(message)
		return model, command
	}
	return model, nil
}

func (model *Model) handleEvent(event tea.Msg) {
	switch event := event.(type) {
	case stateMsg:
		model.setState(feed.State(event))
	case notificationMsg:
		notification := feed.Notification(event)
		model.status = &notification
	case localitiesMsg:
		// Nothing to store: the form renders the tracker's snapshot.
	}
}

func (model *Model) setState(state feed.State) {
	selected := model.selectedID()
	model.state = state
	model.cursor = 0
	for i, item := range state.Items {
		if item.ID == selected {
			model.cursor = i
			break
		}
	}
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if model.state.View == feed.ViewPincodeCapture {
		return model.handlePincodeKeys(message)
	}
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(model.state.Items)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.Refresh):
		if model.busy {
			return model, nil
		}
		model.busy = true
		return model, model.run(func(ctx context.Context) error { return model.actions.Refresh(ctx) })

	case key.Matches(message, model.keys.Duplicate):
		postID := model.selectedID()
		if postID == "" || model.busy {
			return model, nil
		}
		model.busy = true
		return model, model.run(func(ctx context.Context) error { return model.actions.MarkDuplicate(ctx, postID) })

	case key.Matches(message, model.keys.Comments):
		postID := model.selectedID()
		if postID == "" {
			return model, nil
		}
		if model.expanded[postID] {
			delete(model.expanded, postID)
			return model, nil
		}
		model.expanded[postID] = true
		if _, loaded := model.state.Comments[postID]; loaded {
			return model, nil
		}
		return model, model.run(func(ctx context.Context) error {
			_, err := model.actions.LoadComments(ctx, postID)
			return err
		})
	}
	return model, nil
}

// handlePincodeKeys routes keystrokes to the capture form. Letters,
// q included, go to the field; ctrl+c still quits.
func (model Model) handlePincodeKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.ForceQuit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Save):
		return model.savePincode()

	case key.Matches(message, model.keys.Clear):
		model.pincode.Reset()
		model.lookup("")
		return model, nil
	}

	before := model.pincode.Value()
	var command tea.Cmd
	model.pincode, command = model.pincode.Update(message)
	if value := model.pincode.Value(); value != before {
		model.lookup(value)
	}
	return model, command
}

// lookup hands the field's value to the tracker, which resolves only
// complete pincodes and drops answers for superseded input.
func (model *Model) lookup(value string) {
	if model.localities != nil {
		model.localities.Input(model.ctx, value)
	}
}

func (model Model) savePincode() (tea.Model, tea.Cmd) {
	if model.busy {
		return model, nil
	}
	value := strings.TrimSpace(model.pincode.Value())
	if !locality.ValidPincode(value) {
		model.status = &feed.Notification{Level: feed.LevelError, Message: locality.UserMessage(locality.ErrInvalidPincode)}
		return model, nil
	}
	// A pincode the geocoder does not know cannot be saved. A failed
	// lookup does not block saving.
	if model.localities != nil {
		if lookup := model.localities.Snapshot(); lookup.Input == value && errors.Is(lookup.Err, locality.ErrPincodeNotFound) {
			model.status = &feed.Notification{Level: feed.LevelError, Message: locality.UserMessage(lookup.Err)}
			return model, nil
		}
	}
	model.busy = true
	model.status = nil
	return model, model.run(func(ctx context.Context) error { return model.actions.SetPincode(ctx, value) })
}

// run performs a controller call off the UI goroutine. With Events the
// controller reports the outcome itself.
func (model Model) run(action func(context.Context) error) tea.Cmd {
	ctx := model.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: action(ctx)}
	}
}

func (model Model) selectedID() string {
	if model.cursor < 0 || model.cursor >= len(model.state.Items) {
		return ""
	}
	return model.state.Items[model.cursor].ID
}

// View implements tea.Model.
func (model Model) View() string {
	if model.width == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, model.renderHeader())

	switch model.state.View {
	case feed.ViewLoading:
		lines = append(lines, "", model.faint("Loading..."))
	case feed.ViewSignedOut:
		lines = append(lines, "", "You are not signed in.", model.faint("Run 'crowdsync login <email>' and open the link."))
	case feed.ViewPincodeCapture:
		lines = append(lines, "", "Set your pincode to see reports near you.", "", model.pincode.View())
		lines = append(lines, model.renderLookup()...)
	case feed.ViewFeed:
		if len(model.state.Items) == 0 {
			lines = append(lines, "", fmt.Sprintf("No reports for %s yet.", model.state.Profile.Pincode))
			break
		}
		for i, item := range model.state.Items {
			lines = append(lines, model.renderItem(i, item)...)
		}
	}

	lines = append(lines, "")
	if model.status != nil {
		lines = append(lines, model.theme.Notification(*model.status))
	}
	lines = append(lines, model.renderHelp())

	for i, line := range lines {
		lines[i] = ansi.Truncate(line, model.width, "…")
	}
	if model.height > 0 && len(lines) > model.height {
		// Keep the header, the selection, and the footer on screen.
		lines = model.clip(lines)
	}
	return strings.Join(lines, "\n")
}

func (model Model) renderHeader() string {
	title := "CrowdSync"
	if model.state.Profile.Pincode != "" {
		title += " · " + model.state.Profile.Pincode
	}
	if model.state.Identity.ID != "" {
		title += " · " + model.state.Identity.DisplayName()
	}
	if model.busy {
		title += " · working"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render(title)
}

func (model Model) renderItem(index int, item report.FeedItem) []string {
	selected := index == model.cursor
	marker := "  "
	if selected {
		marker = "> "
	}

	title := fmt.Sprintf("%s / %s", item.Type, item.Subtype)
	if selected {
		title = lipgloss.NewStyle().
			Foreground(model.theme.SelectedForeground).
			Background(model.theme.SelectedBackground).
			Render(title)
	}
	row := fmt.Sprintf("%s%s  %s  %s", marker, model.theme.SeverityBadge(item.Severity), title,
		model.faint(Age(model.clock.Now(), item.CreatedAt)))
	if item.Duplicates > 0 {
		row += model.faint(fmt.Sprintf("  · %d also reported", item.Duplicates))
	}

	lines := []string{row, "    " + LocalityNames(item.Report)}
	if !model.expanded[item.ID] {
		return lines
	}

	if item.Description != "" {
		lines = append(lines, "    "+item.Description)
	}
	if len(item.Localities) > 0 {
		link := lipgloss.NewStyle().Foreground(model.theme.LinkForeground).Render(item.Localities[0].MapURL())
		lines = append(lines, "    "+link)
	}
	comments, loaded := model.state.Comments[item.ID]
	switch {
	case !loaded:
		lines = append(lines, "    "+model.faint("Loading comments..."))
	case len(comments) == 0:
		lines = append(lines, "    "+model.faint("No comments yet."))
	default:
		for _, comment := range comments {
			lines = append(lines, fmt.Sprintf("    %s %s", model.faint(Age(model.clock.Now(), comment.CreatedAt)+":"), comment.Content))
		}
	}
	return lines
}

// renderLookup shows the tracker's answer for the field's current
// value.
func (model Model) renderLookup() []string {
	if model.localities == nil {
		return nil
	}
	lookup := model.localities.Snapshot()
	if lookup.Input == "" || lookup.Input != strings.TrimSpace(model.pincode.Value()) {
		return nil
	}
	switch {
	case lookup.Loading:
		return []string{model.faint("Looking up localities...")}
	case lookup.Err != nil:
		return []string{lipgloss.NewStyle().Foreground(model.theme.ErrorText).Render(locality.UserMessage(lookup.Err))}
	case len(lookup.Candidates) > 0:
		names := make([]string, 0, len(lookup.Candidates))
		for _, candidate := range lookup.Candidates {
			names = append(names, candidate.Name)
		}
		return []string{model.faint("Localities: ") + strings.Join(names, ", ")}
	}
	return nil
}

func (model Model) renderHelp() string {
	bindings := model.keys.help()
	if model.state.View == feed.ViewPincodeCapture {
		bindings = model.keys.captureHelp()
	}
	var parts []string
	for _, binding := range bindings {
		help := binding.Help()
		parts = append(parts, help.Key+" "+help.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).Render(strings.Join(parts, "  "))
}

// clip drops lines from the middle of the list so the selected row
// stays visible.
func (model Model) clip(lines []string) []string {
	footer := 2
	if model.status != nil {
		footer = 3
	}
	body := lines[1 : len(lines)-footer]
	room := model.height - 1 - footer
	if room < 1 {
		return lines[len(lines)-model.height:]
	}
	selectedLine := 0
	for i, line := range body {
		if strings.HasPrefix(ansi.Strip(line), "> ") {
			selectedLine = i
			break
		}
	}
	start := 0
	if selectedLine >= room {
		start = selectedLine - room + 1
	}
	end := min(start+room, len(body))

	clipped := []string{lines[0]}
	clipped = append(clipped, body[start:end]...)
	return append(clipped, lines[len(lines)-footer:]...)
}

func (model Model) faint(s string) string {
	return lipgloss.NewStyle().Foreground(model.theme.FaintText).Render(s)
}

// LocalityNames joins the report's locality names.
func LocalityNames(r report.Report) string {
	names := make([]string, 0, len(r.Localities))
	for _, locality := range r.Localities {
		names = append(names, locality.Name)
	}
	return strings.Join(names, ", ")
}

// Age renders t relative to now: "just now", "5m ago", "3h ago",
// "2d ago", or a date past a week.
func Age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed/time.Hour))
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(elapsed/(24*time.Hour)))
	}
	return t.Format("2 Jan 2006")
}

// Run starts the viewer and blocks until the user quits.
func Run(cfg Config) error {
	program := tea.NewProgram(NewModel(cfg), tea.WithAltScreen(), tea.WithContext(contextOrBackground(cfg.Context)))
	_, err := program.Run()
	if cfg.Events != nil {
		cfg.Events.Close()
	}
	if errors.Is(err, tea.ErrProgramKilled) && cfg.Context != nil && cfg.Context.Err() != nil {
		return nil
	}
	return err
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
