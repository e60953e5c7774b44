// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package feedui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/crowdsync/crowdsync/feed"
	"github.com/crowdsync/crowdsync/report"
)

// Theme is the viewer's color palette in ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Severity colors, keyed by report.Severity.Color().
	SeverityGreen  lipgloss.Color
	SeverityOrange lipgloss.Color
	SeverityRed    lipgloss.Color
	SeverityGray   lipgloss.Color

	InfoText    lipgloss.Color
	SuccessText lipgloss.Color
	ErrorText   lipgloss.Color

	HeaderForeground lipgloss.Color
	HelpText         lipgloss.Color
	LinkForeground   lipgloss.Color
}

// DefaultTheme targets 256-color terminals with a dark background.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("236"),
	SelectedForeground: lipgloss.Color("255"),

	SeverityGreen:  lipgloss.Color("114"),
	SeverityOrange: lipgloss.Color("208"),
	SeverityRed:    lipgloss.Color("196"),
	SeverityGray:   lipgloss.Color("245"),

	InfoText:    lipgloss.Color("75"),
	SuccessText: lipgloss.Color("114"),
	ErrorText:   lipgloss.Color("196"),

	HeaderForeground: lipgloss.Color("255"),
	HelpText:         lipgloss.Color("241"),
	LinkForeground:   lipgloss.Color("75"),
}

// SeverityColor maps a severity to its marker color.
func (theme Theme) SeverityColor(severity report.Severity) lipgloss.Color {
	switch severity.Color() {
	case "green":
		return theme.SeverityGreen
	case "orange":
		return theme.SeverityOrange
	case "red":
		return theme.SeverityRed
	}
	return theme.SeverityGray
}

// LevelColor maps a notification level to its text color.
func (theme Theme) LevelColor(level feed.Level) lipgloss.Color {
	switch level {
	case feed.LevelSuccess:
		return theme.SuccessText
	case feed.LevelError:
		return theme.ErrorText
	}
	return theme.InfoText
}

// SeverityBadge renders "● HIGH" in the severity's color.
func (theme Theme) SeverityBadge(severity report.Severity) string {
	label := "UNKNOWN"
	if severity != "" {
		label = string(severity)
	}
	return lipgloss.NewStyle().
		Foreground(theme.SeverityColor(severity)).
		Bold(severity == report.High).
		Render("● " + strings.ToUpper(label))
}

// Notification renders a notification as one colored line.
func (theme Theme) Notification(notification feed.Notification) string {
	style := lipgloss.NewStyle().Foreground(theme.LevelColor(notification.Level))
	if notification.Title == "" {
		return style.Render(notification.Message)
	}
	return style.Bold(true).Render(notification.Title+":") + " " + style.Render(notification.Message)
}
