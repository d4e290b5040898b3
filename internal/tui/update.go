// internal/tui/update.go
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/reviewgreen/internal/capture"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width

	case tickMsg:
		m.currentTime = time.Time(msg)
		return m, timeTickCmd()

	case logMsg:
		m.addLog(string(msg))
		return m, m.listenLogs()

	case noteMsg:
		m.addNotification(capture.Notification(msg))
		return m, m.listenNotifications()

	case actionDoneMsg:
		if m.activeTab == sharesTab {
			return m, m.loadShares()
		}
		return m, nil

	case sharesMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error loading shares: %v", msg.err)
			return m, nil
		}
		m.feed = msg.shares

	case devicesMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Error scanning for cameras: %v", msg.err)
			return m, nil
		}
		m.devices = msg.devices
		m.status = fmt.Sprintf("Found %d camera(s)", len(msg.devices))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		if !m.signedIn() {
			return m.updateSignIn(msg)
		}
		return m.updateMain(msg)
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m Model) quit() tea.Cmd {
	if m.controller != nil {
		m.controller.Close()
	}
	return tea.Quit
}

func (m Model) updateSignIn(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, m.quit()
	case "ctrl+g":
		user, err := m.users.SignInAsGuest()
		if err != nil {
			m.signInErr = err.Error()
			return m, nil
		}
		m.signInErr = ""
		m.emailInput.Blur()
		m.passwordInput.Blur()
		m.status = fmt.Sprintf("Welcome, %s!", user.Name)
		return m, nil
	case "tab", "shift+tab", "up", "down":
		if m.emailInput.Focused() {
			m.emailInput.Blur()
			m.passwordInput.Focus()
		} else {
			m.passwordInput.Blur()
			m.emailInput.Focus()
		}
		return m, textinput.Blink
	case "enter":
		if m.emailInput.Focused() {
			m.emailInput.Blur()
			m.passwordInput.Focus()
			return m, textinput.Blink
		}
		user, err := m.users.SignIn(m.emailInput.Value(), m.passwordInput.Value())
		if err != nil {
			m.signInErr = err.Error()
			return m, nil
		}
		m.signInErr = ""
		m.passwordInput.SetValue("")
		m.passwordInput.Blur()
		m.status = fmt.Sprintf("Welcome, %s!", user.Name)
		return m, nil
	}

	var cmd tea.Cmd
	if m.emailInput.Focused() {
		m.emailInput, cmd = m.emailInput.Update(msg)
	} else {
		m.passwordInput, cmd = m.passwordInput.Update(msg)
	}
	return m, cmd
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, m.quit()
	case "1":
		return m.switchTab(captureTab)
	case "2":
		return m.switchTab(sharesTab)
	case "3":
		return m.switchTab(accountTab)
	case "4":
		return m.switchTab(serverTab)
	case "tab":
		return m.switchTab((m.activeTab + 1) % tabType(len(m.tabs)))
	}

	switch m.activeTab {
	case captureTab:
		return m.updateCapture(msg)
	case sharesTab:
		if msg.String() == "r" {
			return m, m.loadShares()
		}
	case accountTab:
		switch msg.String() {
		case "o":
			if m.controller != nil {
				m.controller.Close()
			}
			if err := m.users.SignOut(); err != nil {
				m.status = fmt.Sprintf("Error signing out: %v", err)
				return m, nil
			}
			m.emailInput.SetValue("")
			m.emailInput.Focus()
			m.status = "Signed out"
			return m, textinput.Blink
		case "c":
			m.status = "Scanning for cameras..."
			return m, m.scanDevices()
		}
	case serverTab:
		if msg.String() == "s" && m.server != nil {
			if m.server.IsRunning() {
				if err := m.server.Stop(); err != nil {
					m.status = fmt.Sprintf("Error stopping server: %v", err)
				} else {
					m.status = "Server stopped"
				}
			} else {
				if err := m.server.Start(); err != nil {
					m.status = fmt.Sprintf("Error starting server: %v", err)
				} else {
					m.status = fmt.Sprintf("Server started on port %s", m.server.Port())
				}
			}
		}
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m Model) switchTab(t tabType) (tea.Model, tea.Cmd) {
	m.activeTab = t
	if t == sharesTab {
		return m, m.loadShares()
	}
	return m, nil
}

func (m Model) updateCapture(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.controller
	if c == nil {
		return m, nil
	}

	// closing is always offered, even mid-action
	if msg.String() == "esc" {
		c.CloseLive()
		c.Discard()
		m.status = "Camera closed"
		return m, nil
	}
	if c.Busy() {
		return m, nil
	}

	live := c.Live()
	pending := c.Pending() != nil

	switch msg.String() {
	case "t":
		if !live && !pending {
			m.status = "Opening camera..."
			return m, m.run(c.TakePhoto)
		}
	case "g":
		if !live && !pending {
			m.status = "Opening gallery..."
			return m, m.run(c.SelectFromGallery)
		}
	case " ":
		if live && c.LiveReady() {
			return m, m.run(c.CaptureLive)
		}
	case "f":
		if live && c.LivePhase() == camera.PhaseLive {
			m.status = "Switching camera..."
			return m, m.run(c.SwitchFacing)
		}
	case "r":
		if live && c.LivePhase() == camera.PhaseCaptured {
			return m, m.run(c.RetakeLive)
		}
	case "enter":
		if live && c.LivePhase() == camera.PhaseCaptured {
			c.UsePhoto()
			m.status = "Photo ready to share"
		}
	case "s":
		if pending {
			m.status = "Sharing..."
			return m, m.run(c.Share)
		}
	case "x":
		if pending {
			c.Discard()
			m.status = "Photo discarded"
		}
	}
	return m, nil
}
