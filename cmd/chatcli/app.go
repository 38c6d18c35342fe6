package main

import (
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"daymoon-client/internal/api"
	"daymoon-client/internal/auth"
	"daymoon-client/internal/config"
	"daymoon-client/internal/realtime"
	"daymoon-client/internal/session"
)

// App is the main application.
type App struct {
	cfg     config.Config
	api     *api.Client
	tokens  *auth.TokenStore
	session *session.Client

	app   *tview.Application
	pages *tview.Pages

	conversationsList *tview.List
	chatView          *tview.TextView
	messageInput      *tview.InputField
	typingView        *tview.TextView
	statusBar         *tview.TextView
	connectionView    *tview.TextView

	mu              sync.RWMutex
	currentPeer     string
	lastTypingSent  time.Time
	connectionState session.ConnectionState
	reconnectTry    int
}

// NewApp creates a new application instance and wires the session client
// callbacks into the UI event loop.
func NewApp(cfg config.Config) *App {
	a := &App{
		cfg:             cfg,
		api:             api.NewClient(cfg.API),
		tokens:          auth.NewTokenStore(),
		app:             tview.NewApplication(),
		pages:           tview.NewPages(),
		connectionState: session.StateDisconnected,
	}

	handlers := session.Handlers{
		OnStateChange: func(state session.ConnectionState, attempt int) {
			a.mu.Lock()
			a.connectionState = state
			a.reconnectTry = attempt
			a.mu.Unlock()
			a.app.QueueUpdateDraw(func() {
				a.updateConnectionStatus()
			})
		},
		OnConversationChange: func() {
			a.app.QueueUpdateDraw(func() {
				a.refreshConversationsList()
				a.refreshChatView()
			})
		},
		OnTyping: func(peerID string, typing bool) {
			a.app.QueueUpdateDraw(func() {
				a.refreshTypingLine()
			})
		},
		OnPresence: func(userID string, online bool) {
			a.app.QueueUpdateDraw(func() {
				a.refreshConversationsList()
				a.updateChatTitle()
			})
		},
	}
	a.session = session.NewClient(a.api, realtime.NewWSDialer(cfg.Realtime), a.tokens, cfg, handlers)
	return a
}

// Run starts the application.
func (a *App) Run() error {
	background := tview.NewBox()
	background.SetBackgroundColor(tcell.NewRGBColor(64, 64, 64))
	a.pages.AddPage("background", background, true, true)

	a.showLoginDialog()

	return a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
}

// quit exits the application.
func (a *App) quit() {
	a.session.Disconnect()
	a.app.Stop()
}
