package ui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Actions are the commands the toolbar triggers.
type Actions struct {
	Open       func()
	PrevPage   func()
	NextPage   func()
	ZoomOut    func()
	ZoomIn     func()
	DrawMode   func()
	ClearBoxes func()
	Export     func()
}

// Toolbar holds the toolbar and the labels it keeps up to date.
type Toolbar struct {
	fyne.CanvasObject
	page *widget.Label
	zoom *widget.Label
	mode *widget.Label
}

// NewToolbar builds the toolbar for a.
func NewToolbar(a Actions) *Toolbar {
	t := &Toolbar{
		page: widget.NewLabel("No document"),
		zoom: widget.NewLabel("100%"),
		mode: widget.NewLabel(""),
	}
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.FolderOpenIcon(), a.Open),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.NavigateBackIcon(), a.PrevPage),
		widget.NewToolbarAction(theme.NavigateNextIcon(), a.NextPage),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomOutIcon(), a.ZoomOut),
		widget.NewToolbarAction(theme.ZoomInIcon(), a.ZoomIn),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentAddIcon(), a.DrawMode),
		widget.NewToolbarAction(theme.ContentClearIcon(), a.ClearBoxes),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), a.Export),
	)
	t.CanvasObject = container.NewHBox(
		tb,
		widget.NewSeparator(),
		t.page,
		t.zoom,
		t.mode,
		layout.NewSpacer(),
	)
	return t
}

// Update shows the page, zoom and draw mode of the session.
func (t *Toolbar) Update(page, pages, zoom int, drawMode bool) {
	if pages == 0 {
		t.page.SetText("No document")
	} else {
		t.page.SetText(fmt.Sprintf("Page %d / %d", page, pages))
	}
	t.zoom.SetText(fmt.Sprintf("%d%%", zoom))
	if drawMode {
		t.mode.SetText("Drawing boxes")
	} else {
		t.mode.SetText("")
	}
}
