package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rivo/tview"

	"daymoon-client/internal/auth"
)

func (a *App) showLoginDialog() {
	form := tview.NewForm()
	form.SetBackgroundColor(colorBg)
	form.SetFieldBackgroundColor(colorField)
	form.SetFieldTextColor(colorFg)
	form.SetLabelColor(colorHighlight)
	form.SetButtonBackgroundColor(colorAccent)
	form.SetButtonTextColor(colorTitle)
	form.SetBorder(true)
	form.SetBorderColor(colorBorder)
	form.SetTitle(fmt.Sprintf(" %s login ", a.cfg.AppName))
	form.SetTitleColor(colorTitle)

	statusText := tview.NewTextView()
	statusText.SetBackgroundColor(colorBg)
	statusText.SetTextAlign(tview.AlignCenter)
	statusText.SetDynamicColors(true)

	emailField := tview.NewInputField()
	emailField.SetLabel("Email: ")
	emailField.SetFieldWidth(30)
	emailField.SetBackgroundColor(colorBg)

	passwordField := tview.NewInputField()
	passwordField.SetLabel("Password: ")
	passwordField.SetFieldWidth(30)
	passwordField.SetMaskCharacter('*')
	passwordField.SetBackgroundColor(colorBg)

	form.AddFormItem(emailField)
	form.AddFormItem(passwordField)

	form.AddButton("Login", func() {
		email := emailField.GetText()
		password := passwordField.GetText()
		if email == "" || password == "" {
			statusText.SetText("[red]Please enter email and password[-]")
			return
		}
		a.doLogin(email, password, statusText)
	})
	form.AddButton("Quit", func() {
		a.app.Stop()
	})

	formFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(statusText, 1, 0, false)

	width := 54
	height := 12
	modal := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(formFlex, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage("login", modal, true, true)
	a.app.SetFocus(form)
}

func (a *App) doLogin(email, password string, statusText *tview.TextView) {
	statusText.SetText("Logging in...")

	// Run the login in a goroutine so the UI keeps drawing.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		result, err := a.api.Login(ctx, email, password)
		if err != nil {
			a.app.QueueUpdateDraw(func() {
				statusText.SetText(fmt.Sprintf("[red]%v[-]", err))
			})
			return
		}
		a.tokens.Set(result.Token, result.User)

		userID := result.User.ID
		if userID == "" {
			// Some deployments omit the user object; the token still
			// carries the subject.
			if id, err := auth.UserIDFromToken(result.Token); err == nil {
				userID = id
			}
		}
		if userID == "" {
			a.app.QueueUpdateDraw(func() {
				statusText.SetText("[red]login response carries no user id[-]")
			})
			return
		}

		if _, err := a.session.Connect(ctx, userID); err != nil {
			// Keep going: the session retries in the background and the
			// connection view shows the progress.
			a.app.QueueUpdateDraw(func() {
				statusText.SetText(fmt.Sprintf("[yellow]realtime: %v[-]", err))
			})
		}
		if _, err := a.session.RefreshConversations(ctx); err != nil {
			a.app.QueueUpdateDraw(func() {
				statusText.SetText(fmt.Sprintf("[red]%v[-]", err))
			})
			return
		}

		a.app.QueueUpdateDraw(func() {
			a.showMainScreen()
		})
	}()
}
