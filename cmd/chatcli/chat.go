package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"daymoon-client/internal/api"
	"daymoon-client/internal/chattypes"
	"daymoon-client/internal/session"
)

func (a *App) openChat(peerID string) {
	a.mu.Lock()
	a.currentPeer = peerID
	a.mu.Unlock()

	chatPage := a.createChatPage(peerID)
	a.pages.AddPage("chat", chatPage, true, true)
	a.pages.SwitchToPage("chat")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := a.session.SelectConversation(ctx, peerID); err != nil {
			a.app.QueueUpdateDraw(func() {
				a.setChatNotice(fmt.Sprintf("[red]history: %v[-]", err))
			})
		}
	}()
}

func (a *App) chatTitle(peerID string) string {
	name := peerID
	for _, conversation := range a.session.Conversations() {
		if conversation.PeerID == peerID && conversation.PeerName != "" {
			name = conversation.PeerName
			break
		}
	}
	status := "○ offline"
	if a.session.IsOnline(peerID) {
		status = "● online"
	}
	return fmt.Sprintf(" %s ─ %s ", name, status)
}

func (a *App) updateChatTitle() {
	a.mu.RLock()
	peerID := a.currentPeer
	a.mu.RUnlock()
	if a.chatView != nil && peerID != "" {
		a.chatView.SetTitle(a.chatTitle(peerID))
	}
}

func (a *App) createChatPage(peerID string) tview.Primitive {
	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(colorBorder)
	a.chatView.SetBackgroundColor(colorBg)
	a.chatView.SetTitle(a.chatTitle(peerID))
	a.chatView.SetTitleColor(colorTitle)
	a.chatView.SetTextColor(colorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.ScrollToEnd()

	a.typingView = tview.NewTextView()
	a.typingView.SetBackgroundColor(colorBg)
	a.typingView.SetTextColor(tcell.NewRGBColor(128, 128, 128))
	a.typingView.SetDynamicColors(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(colorBg)
	a.messageInput.SetFieldBackgroundColor(colorField)
	a.messageInput.SetFieldTextColor(colorFg)
	a.messageInput.SetLabelColor(colorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(colorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(colorTitle)

	a.messageInput.SetChangedFunc(func(text string) {
		if text == "" {
			a.session.TypingTo(peerID, false)
			return
		}
		a.mu.Lock()
		throttled := time.Since(a.lastTypingSent) < time.Second
		if !throttled {
			a.lastTypingSent = time.Now()
		}
		a.mu.Unlock()
		if !throttled {
			a.session.TypingTo(peerID, true)
		}
	})

	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := a.messageInput.GetText()
			if text != "" {
				a.messageInput.SetText("")
				a.sendMessage(peerID, text)
			}
		}
	})

	chatStatus := tview.NewTextView()
	chatStatus.SetBackgroundColor(colorAccent)
	chatStatus.SetTextColor(colorTitle)
	chatStatus.SetTextAlign(tview.AlignCenter)
	chatStatus.SetText(" Enter:Send | F2:Send file | Tab:Scroll | Esc:Back ")

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.chatView, 0, 1, false).
		AddItem(a.typingView, 1, 0, false).
		AddItem(a.messageInput, 3, 0, true).
		AddItem(chatStatus, 1, 0, false)
	mainFlex.SetBackgroundColor(colorBg)

	chatViewFocused := false
	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			if chatViewFocused {
				chatViewFocused = false
				a.app.SetFocus(a.messageInput)
				return nil
			}
			a.closeChat(peerID)
			return nil
		case tcell.KeyTab:
			chatViewFocused = !chatViewFocused
			if chatViewFocused {
				a.app.SetFocus(a.chatView)
			} else {
				a.app.SetFocus(a.messageInput)
			}
			return nil
		case tcell.KeyF2:
			a.showSendFileDialog(peerID)
			return nil
		case tcell.KeyPgUp:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row+10, col)
			return nil
		}
		return event
	})

	return mainFlex
}

// deliveryIcon renders the delivery tick for an outgoing message.
func deliveryIcon(state chattypes.DeliveryState) string {
	switch state {
	case chattypes.PendingState:
		return "[gray]…[-]"
	case chattypes.SentState:
		return "[gray]✓[-]"
	case chattypes.DeliveredState:
		return "[gray]✓✓[-]"
	case chattypes.ReadState:
		return "[green]✓✓[-]"
	case chattypes.FailedState:
		return "[red]✗[-]"
	}
	return ""
}

func (a *App) refreshChatView() {
	if a.chatView == nil {
		return
	}
	conversation := a.session.ActiveConversation()
	if conversation == nil {
		return
	}
	userID := a.tokens.User().ID

	var sb strings.Builder
	for _, msg := range conversation.Messages {
		timeStr := msg.CreatedAt.Local().Format("15:04:05")
		text := tview.Escape(msg.Content)
		if msg.Kind != chattypes.TextKind {
			label := msg.FileName
			if label == "" {
				label = string(msg.Kind)
			}
			text = fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Kind)), tview.Escape(label))
			if msg.Content != "" {
				text += " " + tview.Escape(msg.Content)
			}
		}
		if msg.SenderID == userID {
			sb.WriteString(fmt.Sprintf("[gray]%s[-] [white]→ %s[-] %s\n",
				timeStr, text, deliveryIcon(msg.DeliveryState)))
		} else {
			sb.WriteString(fmt.Sprintf("[gray]%s[-] [yellow]← %s[-]\n", timeStr, text))
		}
	}

	a.chatView.SetText(sb.String())
	a.chatView.ScrollToEnd()
	a.refreshTypingLine()
}

func (a *App) refreshTypingLine() {
	if a.typingView == nil {
		return
	}
	conversation := a.session.ActiveConversation()
	if conversation != nil && conversation.Typing {
		a.typingView.SetText(" typing...")
	} else {
		a.typingView.SetText("")
	}
}

func (a *App) setChatNotice(text string) {
	if a.typingView != nil {
		a.typingView.SetText(text)
	}
}

func (a *App) sendMessage(peerID, text string) {
	a.session.TypingTo(peerID, false)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := a.session.SendMessage(ctx, peerID, text); err != nil {
			a.app.QueueUpdateDraw(func() {
				var sendErr *api.SendError
				if errors.As(err, &sendErr) && a.messageInput != nil && a.messageInput.GetText() == "" {
					// Put the text back so it is not lost.
					a.messageInput.SetText(sendErr.Content)
				}
				a.setChatNotice(fmt.Sprintf("[red]send failed: %v[-]", err))
			})
		}
	}()
}

func (a *App) showSendFileDialog(peerID string) {
	form := tview.NewForm()
	form.SetBackgroundColor(colorBg)
	form.SetFieldBackgroundColor(colorField)
	form.SetFieldTextColor(colorFg)
	form.SetLabelColor(colorHighlight)
	form.SetButtonBackgroundColor(colorAccent)
	form.SetButtonTextColor(colorTitle)
	form.SetBorder(true)
	form.SetBorderColor(colorBorder)
	form.SetTitle(" Send file ")
	form.SetTitleColor(colorTitle)

	pathField := tview.NewInputField()
	pathField.SetLabel("Path: ")
	pathField.SetFieldWidth(40)
	captionField := tview.NewInputField()
	captionField.SetLabel("Caption: ")
	captionField.SetFieldWidth(40)
	form.AddFormItem(pathField)
	form.AddFormItem(captionField)

	dismiss := func() {
		a.pages.RemovePage("sendfile")
		a.app.SetFocus(a.messageInput)
	}

	form.AddButton("Send", func() {
		path := pathField.GetText()
		caption := captionField.GetText()
		dismiss()
		a.sendFile(peerID, path, caption)
	})
	form.AddButton("Cancel", dismiss)

	width := 60
	height := 11
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(form, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("sendfile", modal, true, true)
	a.app.SetFocus(form)
}

func (a *App) sendFile(peerID, path, caption string) {
	go func() {
		f, err := os.Open(path)
		if err != nil {
			a.app.QueueUpdateDraw(func() {
				a.setChatNotice(fmt.Sprintf("[red]%v[-]", err))
			})
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			a.app.QueueUpdateDraw(func() {
				a.setChatNotice(fmt.Sprintf("[red]%v[-]", err))
			})
			return
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if idx := strings.Index(mimeType, ";"); idx >= 0 {
			mimeType = mimeType[:idx]
		}

		file := chattypes.FileRef{
			Name:     filepath.Base(path),
			MimeType: mimeType,
			Size:     info.Size(),
			Reader:   f,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := a.session.SendFile(ctx, peerID, file, caption); err != nil {
			a.app.QueueUpdateDraw(func() {
				var validationErr *session.ValidationError
				if errors.As(err, &validationErr) {
					a.setChatNotice(fmt.Sprintf("[red]%s[-]", validationErr.Reason))
					return
				}
				a.setChatNotice(fmt.Sprintf("[red]upload failed: %v[-]", err))
			})
		}
	}()
}

func (a *App) closeChat(peerID string) {
	a.session.TypingTo(peerID, false)
	a.mu.Lock()
	a.currentPeer = ""
	a.mu.Unlock()
	a.chatView = nil
	a.messageInput = nil
	a.typingView = nil
	a.pages.RemovePage("chat")
	a.pages.SwitchToPage("main")
	a.app.SetFocus(a.conversationsList)
}
