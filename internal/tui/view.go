// internal/tui/view.go
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AlverezYari/reviewgreen/internal/capture"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("28")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Background(lipgloss.Color("28")).
			Foreground(lipgloss.Color("0"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	logBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("237"))
)

// View renders the UI
func (m Model) View() string {
	timeStr := m.currentTime.Format("Mon Jan 2 15:04:05 2006")

	headerContent := lipgloss.JoinHorizontal(
		lipgloss.Center,
		"🌱 Review Green",
		lipgloss.NewStyle().
			Width(max(m.width-18, 0)).
			Align(lipgloss.Right).
			Render(timeStr),
	)
	header := headerStyle.Width(m.width).Render(headerContent)

	if !m.signedIn() {
		return fmt.Sprintf("%s\n%s\n%s", header, mainContentStyle.Render(m.renderSignIn()),
			statusBarStyle.Width(m.width).Render("Tab: Next field | Enter: Sign in | Ctrl+G: Continue as Green Explorer | Esc: Quit"))
	}

	tabs := m.renderTabs()
	mainContent := mainContentStyle.Render(m.renderActiveTabContent())
	logs := logBoxStyle.Width(m.width).Render(m.logViewport.View())

	statusBar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("Status: %s | Tab or Num 1-4: Switch Views | Press q to quit", m.status),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s", header, tabs, mainContent, logs, statusBar)
}

func (m Model) renderSignIn() string {
	var b strings.Builder
	b.WriteString("Sign in to share your creations with the community\n\n")
	b.WriteString(m.emailInput.View() + "\n")
	b.WriteString(m.passwordInput.View() + "\n")
	if m.signInErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.signInErr) + "\n")
	}
	b.WriteString("\n" + hintStyle.Render("New here? Signing in with a new email creates your account on this device."))
	return b.String()
}

// Helper function to render tabs
func (m Model) renderTabs() string {
	var renderedTabs []string
	for _, t := range m.tabs {
		style := tabStyle
		if t.id == m.activeTab {
			style = activeTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(t.title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

// Helper function to render active tab content
func (m Model) renderActiveTabContent() string {
	switch m.activeTab {
	case captureTab:
		return m.renderCapture()
	case sharesTab:
		return m.renderShares()
	case accountTab:
		return m.renderAccount()
	case serverTab:
		return m.renderServer()
	}
	return ""
}

func (m Model) renderCapture() string {
	var b strings.Builder
	c := m.controller
	if c == nil {
		return "Capture is not available."
	}

	switch {
	case c.Busy():
		b.WriteString("Working...\n")
		b.WriteString(hintStyle.Render("esc: Cancel") + "\n")
	case c.Live():
		phase := c.LivePhase()
		b.WriteString(fmt.Sprintf("Camera: %s (%s)\n", phase, facingLabel(c.LiveFacing())))
		if phase == camera.PhaseCaptured {
			if a := c.LiveArtifact(); a != nil {
				b.WriteString(fmt.Sprintf("• Still: %dx%d, %d bytes\n", a.Width, a.Height, len(a.Data)))
				b.WriteString(fmt.Sprintf("• Preview: %s\n", a.Locator))
			}
			b.WriteString(hintStyle.Render("enter: Use photo | r: Retake | esc: Close") + "\n")
		} else {
			hints := []string{"f: Flip camera", "esc: Close"}
			switch {
			case c.LiveLost():
				b.WriteString(errorStyle.Render("Camera feed lost.") + "\n")
			case c.LiveReady():
				hints = append([]string{"space: Capture"}, hints...)
			default:
				b.WriteString("Waiting for the first frame...\n")
			}
			b.WriteString(hintStyle.Render(strings.Join(hints, " | ")) + "\n")
		}
	case c.Pending() != nil:
		a := c.Pending()
		b.WriteString(fmt.Sprintf("Photo ready (%s)\n", a.Source))
		if a.Path != "" {
			b.WriteString(fmt.Sprintf("• File: %s\n", a.Path))
		}
		if a.Locator != "" {
			b.WriteString(fmt.Sprintf("• Preview: %s\n", a.Locator))
		}
		b.WriteString(hintStyle.Render("s: Share | x: Discard") + "\n")
	default:
		b.WriteString("Show off your upcycled creation!\n")
		b.WriteString(hintStyle.Render("t: Take photo | g: Select from gallery") + "\n")
	}

	if len(m.notifications) > 0 {
		b.WriteString("\nNotifications:\n")
		for _, n := range m.notifications {
			line := fmt.Sprintf("%s %s", n.Time.Format("15:04:05"), n.Message)
			switch n.Level {
			case capture.LevelError:
				line = errorStyle.Render(line)
			case capture.LevelSuccess:
				line = successStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func (m Model) renderShares() string {
	var b strings.Builder
	b.WriteString("Community Shares:\n")
	if len(m.feed) == 0 {
		b.WriteString("• Nothing shared yet\n")
	}
	for _, s := range m.feed {
		b.WriteString(fmt.Sprintf("• %s  %s  %dx%d  %s\n",
			s.CreatedAt.Format("Jan 2 15:04"), s.AuthorName, s.Width, s.Height, s.Source))
	}
	b.WriteString("\n" + hintStyle.Render("r: Refresh"))
	return b.String()
}

func (m Model) renderAccount() string {
	var b strings.Builder
	user, _ := m.users.User()
	b.WriteString(fmt.Sprintf("Account:\n• Name: %s\n• Email: %s\n", user.Name, user.Email))

	if m.cfg != nil {
		b.WriteString(fmt.Sprintf("\nCamera:\n• Default facing: %s\n• Resolution: %s @ %d fps\n",
			m.cfg.CameraConfig.DefaultFacing, m.cfg.CameraConfig.StreamConfig.Resolution, m.cfg.CameraConfig.StreamConfig.FPS))
	}
	for _, d := range m.devices {
		b.WriteString(fmt.Sprintf("• %s (id %s)\n", d.Name, d.ID))
	}
	b.WriteString("\n" + hintStyle.Render("o: Sign out | c: Scan cameras"))
	return b.String()
}

func (m Model) renderServer() string {
	if m.server == nil {
		return "Preview server disabled."
	}
	status := "Stopped"
	if m.server.IsRunning() {
		status = fmt.Sprintf("Running on port %s", m.server.Port())
	}
	return fmt.Sprintf("Preview Server Status:\n"+
		"• Status: %s\n"+
		"• Port: %s\n"+
		"• Preview clients: %d\n"+
		"• Press 's' to start/stop server\n", status, m.server.Port(), m.server.Clients())
}

func facingLabel(f camera.FacingMode) string {
	switch f {
	case camera.FacingFront:
		return "front"
	case camera.FacingBack:
		return "back"
	}
	return "unknown"
}
