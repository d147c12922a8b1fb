package main

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"qs_chat/internal/model"
	"qs_chat/internal/service/app"
	"qs_chat/internal/utils/log"
)

type chatUI struct {
	app     *tview.Application
	chatbox *tview.TextView
	input   *tview.InputField

	session *app.Session
	user    string
	peer    string
	mode    model.CipherMode
}

func newChatUI(session *app.Session, user, peer string, mode model.CipherMode) *chatUI {
	return &chatUI{
		app:     tview.NewApplication(),
		session: session,
		user:    user,
		peer:    peer,
		mode:    mode,
	}
}

// run renders the chat layout and blocks until the user quits.
func (u *chatUI) run(ctx context.Context) {
	u.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	u.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", u.peer))

	u.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	u.input.SetBorder(true).SetTitle(" New Message ")

	u.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := u.input.GetText()
			if text == "" {
				return
			}

			go func(msg string) {
				_, err := u.session.Send(ctx, u.peer, []byte(msg), u.mode)
				if err != nil {
					u.app.Suspend(func() {
						log.Error("Send message failed", zap.Error(err))
					})
					return
				}
				u.app.QueueUpdateDraw(func() {
					fmt.Fprintf(u.chatbox, "[yellow]You:[-] %s\n", msg)
					u.input.SetText("")
					u.chatbox.ScrollToEnd()
				})
			}(text)
		}
	})

	go u.watchConnection()

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(u.chatbox, 0, 1, false).
		AddItem(u.input, 3, 0, true)

	if err := u.app.SetRoot(layout, true).SetFocus(u.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

// showInbound appends an accepted message to the chatbox. Homomorphic
// payloads have no local plaintext and render as a placeholder.
func (u *chatUI) showInbound(msg *model.Message) {
	body := string(msg.Plaintext)
	if msg.Mode == model.ModeHomomorphic {
		body = "[encrypted payload, remote computation only]"
	}
	u.app.QueueUpdateDraw(func() {
		fmt.Fprintf(u.chatbox, "[green]%s:[-] %s\n", msg.SenderID, body)
		u.chatbox.ScrollToEnd()
	})
}

func (u *chatUI) watchConnection() {
	for change := range u.session.States() {
		change := change
		u.app.QueueUpdateDraw(func() {
			u.chatbox.SetTitle(fmt.Sprintf(" Chat with %s (%s, %d peers) ",
				u.peer, change.State, change.PeerCount))
		})
	}
}
