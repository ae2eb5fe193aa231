// Package ui is the fyne desktop front end: a page view for placing boxes,
// a signing pad dialog and a toolbar.
package ui

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"SignFlow/internal/coords"
	"SignFlow/internal/logger"
	"SignFlow/internal/preview"
	"SignFlow/internal/service"
	"SignFlow/internal/state"
)

// renderTimeout bounds one page preview.
const renderTimeout = time.Minute

// App is one desktop window editing one session.
type App struct {
	svc  *service.Service
	sess *state.Session
	win  fyne.Window

	page    *PageView
	toolbar *Toolbar
	status  *widget.Label

	pad       *SignaturePad
	padDialog dialog.Dialog

	unsubscribe func()
}

// NewApp builds the window contents for a fresh session of svc inside
// fyneApp.
func NewApp(fyneApp fyne.App, svc *service.Service) *App {
	a := &App{
		svc:    svc,
		sess:   svc.Sessions.Create(),
		win:    fyneApp.NewWindow("SignFlow"),
		status: widget.NewLabel("Open a PDF to start"),
	}
	a.win.Resize(fyne.NewSize(1024, 768))

	a.page = NewPageView(a.sess)
	a.page.OnBoxTapped = a.openSigning
	a.page.OnError = func(err error) {
		if errors.Is(err, state.ErrBoxTooSmall) {
			logger.Debug("ui", "Ignoring box below minimum size")
			return
		}
		a.setStatus(err.Error())
	}

	a.toolbar = NewToolbar(Actions{
		Open:       a.openDocument,
		PrevPage:   func() { a.navigate(a.sess.PrevPage) },
		NextPage:   func() { a.navigate(a.sess.NextPage) },
		ZoomOut:    func() { a.sess.ZoomOut() },
		ZoomIn:     func() { a.sess.ZoomIn() },
		DrawMode:   func() { a.sess.ToggleDrawMode() },
		ClearBoxes: a.sess.ClearBoxes,
		Export:     a.exportDocument,
	})

	a.unsubscribe = a.sess.Subscribe(func(ev state.Event) {
		fyne.Do(func() { a.handleEvent(ev) })
	})
	a.win.SetOnClosed(func() {
		a.unsubscribe()
		svc.Sessions.Close(a.sess.Token())
	})

	content := container.NewBorder(a.toolbar, a.status, nil, nil, container.NewScroll(a.page))
	a.win.SetContent(content)
	return a
}

// RunApp opens the desktop window and blocks until it is closed.
func RunApp(svc *service.Service) {
	a := NewApp(app.NewWithID("io.signflow.desktop"), svc)
	a.win.ShowAndRun()
}

// Session returns the session the window edits.
func (a *App) Session() *state.Session { return a.sess }

func (a *App) setStatus(text string) {
	a.status.SetText(text)
}

// handleEvent reflects a session change in the widgets. It runs on the
// fyne main goroutine.
func (a *App) handleEvent(ev state.Event) {
	switch ev.Kind {
	case state.EventDocumentLoaded, state.EventPageChanged:
		a.page.ClearImage()
		a.renderPage(ev.Page)
	case state.EventPadChanged:
		if a.pad != nil {
			pad, _ := a.sess.Signing()
			a.pad.SetStrokes(pad.Strokes)
		}
	case state.EventSigningClosed:
		if a.padDialog != nil {
			d := a.padDialog
			a.padDialog, a.pad = nil, nil
			d.Hide()
		}
	case state.EventRenderFailed, state.EventExportFailed:
		a.setStatus(ev.Message)
	case state.EventExported:
		a.setStatus("Export stored as " + ev.Message)
	}
	a.page.Refresh()
	snap := a.sess.Snapshot()
	a.toolbar.Update(snap.Page, snap.NumPages, snap.Zoom, snap.DrawMode)
}

// renderPage fetches the preview of page in the background.
func (a *App) renderPage(page int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
		defer cancel()
		p, err := a.svc.RenderPage(ctx, a.sess, page)
		if errors.Is(err, preview.ErrSuperseded) {
			return
		}
		if err != nil {
			log.Printf("[ui] Page %d: %v", page, err)
			return
		}
		fyne.Do(func() {
			if a.sess.Page() == p.Page {
				a.page.SetImage(p.Artifact, p.Image.PNG)
			}
		})
	}()
}

func (a *App) navigate(step func() (int, error)) {
	if _, err := step(); err != nil {
		a.setStatus(err.Error())
	}
}

func (a *App) openDocument() {
	d := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		if r == nil {
			return
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		doc, err := a.svc.Upload(a.sess, r.URI().Name(), data)
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		a.win.SetTitle("SignFlow - " + doc.Name)
		a.setStatus("Toggle box drawing, drag a box, then tap it to sign")
	}, a.win)
	d.SetFilter(fynestorage.NewExtensionFileFilter([]string{".pdf", ".PDF"}))
	d.Show()
}

// openSigning shows the signing pad for a box.
func (a *App) openSigning(boxID string) {
	size := a.sess.Settings().PadSize
	if err := a.sess.OpenSigning(boxID, size); err != nil {
		a.setStatus(err.Error())
		return
	}
	pen := a.svc.Pen()
	a.pad = NewSignaturePad(
		state.PadInput{Session: a.sess, OnError: func(err error) { log.Printf("[ui] Pad: %v", err) }},
		a.sess.Settings().Renderer,
		size,
		pen.Color,
		float32(pen.Width),
	)
	a.pad.OnResize = func(surface coords.Size) {
		if err := a.sess.ResizePad(surface); err != nil && !errors.Is(err, state.ErrNotSigning) {
			log.Printf("[ui] Pad resize: %v", err)
		}
	}
	clearBtn := widget.NewButton("Clear", func() {
		if err := a.sess.ClearPad(); err != nil {
			a.setStatus(err.Error())
		}
	})
	body := container.NewBorder(nil, clearBtn, nil, nil, a.pad)

	d := dialog.NewCustomConfirm("Sign", "Apply", "Cancel", body, func(apply bool) {
		a.padDialog, a.pad = nil, nil
		var err error
		if apply {
			_, err = a.sess.ApplySignature()
		} else {
			err = a.sess.CancelSigning()
		}
		if err != nil && !errors.Is(err, state.ErrNotSigning) {
			a.setStatus(err.Error())
		}
	}, a.win)
	d.Resize(fyne.NewSize(float32(size.W)+40, float32(size.H)+120))
	a.padDialog = d
	d.Show()
}
