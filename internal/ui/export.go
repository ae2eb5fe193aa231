package ui

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"

	"SignFlow/internal/service"
)

// exportTimeout bounds a desktop export.
const exportTimeout = 2 * time.Minute

// exportDocument asks where to save and writes the signed PDF there.
func (a *App) exportDocument() {
	doc, err := a.sess.Document()
	if err != nil {
		a.setStatus("Open a PDF first")
		return
	}
	d := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, a.win)
			return
		}
		if w == nil {
			return
		}
		a.setStatus("Exporting...")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()
			res, err := a.svc.Export(ctx, a.sess)
			if err != nil {
				w.Close()
				fyne.Do(func() { dialog.ShowError(err, a.win) })
				return
			}
			if err := writeSigned(w, res.Data); err != nil {
				log.Printf("[ui] Writing %s: %v", w.URI(), err)
				fyne.Do(func() { dialog.ShowError(err, a.win) })
				return
			}
			msg := fmt.Sprintf("Saved %s (%d signed, %d skipped)", w.URI().Name(), len(res.Drawn), len(res.Skipped))
			fyne.Do(func() { a.setStatus(msg) })
		}()
	}, a.win)
	d.SetFileName(service.SignedName(doc.Name))
	d.SetFilter(fynestorage.NewExtensionFileFilter([]string{".pdf"}))
	d.Show()
}

// writeSigned writes data and closes w.
func writeSigned(w io.WriteCloser, data []byte) error {
	_, err := w.Write(data)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
