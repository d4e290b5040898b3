// internal/tui/model.go
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/AlverezYari/reviewgreen/internal/account"
	"github.com/AlverezYari/reviewgreen/internal/capture"
	"github.com/AlverezYari/reviewgreen/internal/config"
	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/internal/server"
	"github.com/AlverezYari/reviewgreen/internal/storage"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

type tabType int

const (
	captureTab tabType = iota
	sharesTab
	accountTab
	serverTab
)

type tab struct {
	title string
	id    tabType
}

const (
	maxLogs          = 1000
	maxNotifications = 10
	shareFeedSize    = 10
)

// ShareLister reads the community feed.
type ShareLister interface {
	ListShares(limit int) ([]*storage.Share, error)
}

// DeviceScanner lists attached cameras.
type DeviceScanner interface {
	ScanDevices() ([]camera.Device, error)
}

type Deps struct {
	Config     *config.AppConfig
	Users      *account.Context
	Controller *capture.Controller
	Notifier   *capture.ChanNotifier
	Server     *server.Server
	Shares     ShareLister
	Devices    DeviceScanner
}

// Msg types
type tickMsg time.Time

type logMsg string

type noteMsg capture.Notification

// actionDoneMsg marks the end of a controller action run off the UI loop.
type actionDoneMsg struct{}

type sharesMsg struct {
	shares []*storage.Share
	err    error
}

type devicesMsg struct {
	devices []camera.Device
	err     error
}

// Model holds our application state
type Model struct {
	cfg        *config.AppConfig
	users      *account.Context
	controller *capture.Controller
	notifier   *capture.ChanNotifier
	server     *server.Server
	shares     ShareLister
	scanner    DeviceScanner

	width       int
	height      int
	status      string
	startTime   time.Time
	currentTime time.Time
	activeTab   tabType
	tabs        []tab

	emailInput    textinput.Model
	passwordInput textinput.Model
	signInErr     string

	notifications []capture.Notification
	feed          []*storage.Share
	devices       []camera.Device

	logCh       chan string
	logViewport viewport.Model
	logs        []string
}

// New returns a Model with initial state
func New(d Deps) Model {
	now := time.Now()

	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email:    "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	m := Model{
		cfg:         d.Config,
		users:       d.Users,
		controller:  d.Controller,
		notifier:    d.Notifier,
		server:      d.Server,
		shares:      d.Shares,
		scanner:     d.Devices,
		status:      "Ready",
		startTime:   now,
		currentTime: now,
		activeTab:   captureTab,
		tabs: []tab{
			{title: "Capture", id: captureTab},
			{title: "Shares", id: sharesTab},
			{title: "Account", id: accountTab},
			{title: "Server", id: serverTab},
		},
		emailInput:    email,
		passwordInput: password,
		logCh:         make(chan string, 256),
		logViewport: func() viewport.Model {
			vp := viewport.New(0, 8)
			vp.MouseWheelEnabled = true
			return vp
		}(),
	}

	logCh := m.logCh
	logging.SetHook(func(level, message string) {
		select {
		case logCh <- fmt.Sprintf("[%s] %s", level, message):
		default:
		}
	})

	return m
}

// Init runs any initial IO
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{timeTickCmd(), m.listenLogs(), textinput.Blink}
	if m.notifier != nil {
		cmds = append(cmds, m.listenNotifications())
	}
	return tea.Batch(cmds...)
}

func (m Model) signedIn() bool {
	return m.users != nil && m.users.SignedIn()
}

func (m *Model) addLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[1:]
	}
	m.logViewport.SetContent(strings.Join(m.logs, "\n"))
	m.logViewport.GotoBottom()
}

func (m *Model) addNotification(n capture.Notification) {
	m.notifications = append(m.notifications, n)
	if len(m.notifications) > maxNotifications {
		m.notifications = m.notifications[1:]
	}
	if n.Level == capture.LevelError {
		m.status = "Error: " + n.Message
	} else {
		m.status = n.Message
	}
}

func (m Model) listenLogs() tea.Cmd {
	ch := m.logCh
	return func() tea.Msg {
		return logMsg(<-ch)
	}
}

func (m Model) listenNotifications() tea.Cmd {
	ch := m.notifier.C
	return func() tea.Msg {
		return noteMsg(<-ch)
	}
}

// run executes a controller action off the UI loop.
func (m Model) run(action func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		action(context.Background())
		return actionDoneMsg{}
	}
}

func (m Model) loadShares() tea.Cmd {
	if m.shares == nil {
		return nil
	}
	shares := m.shares
	return func() tea.Msg {
		list, err := shares.ListShares(shareFeedSize)
		return sharesMsg{shares: list, err: err}
	}
}

func (m Model) scanDevices() tea.Cmd {
	if m.scanner == nil {
		return nil
	}
	scanner := m.scanner
	return func() tea.Msg {
		devices, err := scanner.ScanDevices()
		return devicesMsg{devices: devices, err: err}
	}
}

// Helper command for time updates
func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
