package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"daymoon-client/internal/session"
)

func (a *App) showMainScreen() {
	a.pages.RemovePage("login")
	a.pages.RemovePage("background")

	mainPage := a.createMainPage()
	a.pages.AddPage("main", mainPage, true, true)

	user := a.tokens.User()
	a.conversationsList.SetTitle(fmt.Sprintf(" Conversations [%s] ", user.Name))

	a.updateConnectionStatus()
	a.refreshConversationsList()
	a.app.SetFocus(a.conversationsList)
}

func (a *App) createMainPage() tview.Primitive {
	a.conversationsList = tview.NewList()
	a.conversationsList.SetBorder(true)
	a.conversationsList.SetBorderColor(colorBorder)
	a.conversationsList.SetBackgroundColor(colorBg)
	a.conversationsList.SetTitle(" Conversations ")
	a.conversationsList.SetTitleColor(colorTitle)
	a.conversationsList.SetMainTextColor(colorFg)
	a.conversationsList.SetMainTextStyle(tcell.StyleDefault.Foreground(colorFg).Background(colorBg))
	a.conversationsList.SetSecondaryTextColor(tcell.NewRGBColor(128, 128, 128))
	a.conversationsList.SetSelectedTextColor(colorTitle)
	a.conversationsList.SetSelectedBackgroundColor(colorAccent)
	a.conversationsList.SetHighlightFullLine(true)

	a.conversationsList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		conversations := a.session.Conversations()
		if index < len(conversations) {
			a.openChat(conversations[index].PeerID)
		}
	})

	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetBorderColor(colorBorder)
	a.connectionView.SetBackgroundColor(colorBg)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetTitleColor(colorTitle)
	a.connectionView.SetTextColor(colorFg)
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)

	a.statusBar = tview.NewTextView()
	a.statusBar.SetBackgroundColor(colorAccent)
	a.statusBar.SetTextColor(colorTitle)
	a.statusBar.SetTextAlign(tview.AlignCenter)
	a.statusBar.SetText(" Enter:Open | F5:Refresh | F6:Reconnect | F9:Logout | F10:Quit ")

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.conversationsList, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(colorBg)

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF5:
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				a.session.RefreshConversations(ctx)
			}()
			return nil
		case tcell.KeyF6:
			a.toggleConnection()
			return nil
		case tcell.KeyF9:
			a.logout()
			return nil
		case tcell.KeyF10, tcell.KeyEsc:
			a.quit()
			return nil
		}
		return event
	})

	return mainFlex
}

func (a *App) refreshConversationsList() {
	if a.conversationsList == nil {
		return
	}
	selected := a.conversationsList.GetCurrentItem()
	a.conversationsList.Clear()
	for _, conversation := range a.session.Conversations() {
		dot := "○"
		if a.session.IsOnline(conversation.PeerID) {
			dot = "[green]●[-]"
		}
		name := conversation.PeerName
		if name == "" {
			name = conversation.PeerID
		}
		preview := conversation.LastMessage
		if len(preview) > 60 {
			preview = preview[:57] + "..."
		}
		a.conversationsList.AddItem(fmt.Sprintf("%s %s", dot, name), "    "+preview, 0, nil)
	}
	if selected >= 0 && selected < a.conversationsList.GetItemCount() {
		a.conversationsList.SetCurrentItem(selected)
	}
}

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	a.mu.RLock()
	state := a.connectionState
	attempt := a.reconnectTry
	a.mu.RUnlock()

	switch state {
	case session.StateConnected:
		a.connectionView.SetText(fmt.Sprintf("[green]● Connected to %s[-]", a.cfg.Realtime.SocketURL))
	case session.StateConnecting:
		a.connectionView.SetText("[yellow]◐ Connecting...[-]")
	case session.StateReconnecting:
		a.connectionView.SetText(fmt.Sprintf("[yellow]◐ Reconnecting (attempt %d/%d)...[-]",
			attempt, a.cfg.Realtime.MaxReconnectAttempts))
	case session.StateFailed:
		a.connectionView.SetText("[red]✗ Connection failed. Press F6 to retry.[-]")
	default:
		a.connectionView.SetText(fmt.Sprintf("[red]○ Disconnected from %s[-]", a.cfg.Realtime.SocketURL))
	}
}

// toggleConnection reconnects after a failure or disconnects a live
// session.
func (a *App) toggleConnection() {
	state := a.session.Session().State
	if state == session.StateDisconnected || state == session.StateFailed {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			a.session.Connect(ctx, a.tokens.User().ID)
		}()
		return
	}
	a.session.Disconnect()
}

func (a *App) logout() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if token, err := a.tokens.Token(); err == nil {
			a.api.Logout(ctx, token)
		}
		a.session.Disconnect()
		a.tokens.Clear()
		a.app.QueueUpdateDraw(func() {
			a.pages.RemovePage("chat")
			a.pages.RemovePage("main")
			background := tview.NewBox()
			background.SetBackgroundColor(tcell.NewRGBColor(64, 64, 64))
			a.pages.AddPage("background", background, true, true)
			a.showLoginDialog()
		})
	}()
}
