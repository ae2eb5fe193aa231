package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"SignFlow/internal/coords"
	"SignFlow/internal/ink"
)

// BoxSpec is a signed box given up front, as read by the headless signer.
// Rect values are percent of the page; strokes are percent of the pad.
type BoxSpec struct {
	Page    int          `json:"page"`
	X       float64      `json:"x"`
	Y       float64      `json:"y"`
	W       float64      `json:"w"`
	H       float64      `json:"h"`
	Strokes []ink.Stroke `json:"strokes"`
	Pad     coords.Size  `json:"pad"`
}

// ReadBoxSpecs decodes a JSON array of box specs.
func ReadBoxSpecs(r io.Reader) ([]BoxSpec, error) {
	var specs []BoxSpec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("decode boxes: %w", err)
	}
	return specs, nil
}

// SignDocument places the given signatures on a PDF in a throwaway session
// and exports it. Boxes on pages the document lacks are skipped.
func (s *Service) SignDocument(ctx context.Context, name string, data []byte, specs []BoxSpec) (ExportResult, error) {
	sess := s.Sessions.Create()
	defer s.Sessions.Close(sess.Token())

	doc, err := s.Upload(sess, name, data)
	if err != nil {
		return ExportResult{}, err
	}
	for i, spec := range specs {
		if spec.Page < 1 || spec.Page > doc.NumPages {
			log.Printf("[export] Box %d is on page %d, document has %d", i, spec.Page, doc.NumPages)
			continue
		}
		if _, err := sess.GoToPage(spec.Page); err != nil {
			return ExportResult{}, err
		}
		b, err := sess.CreateBox(coords.Rect{X0: spec.X, Y0: spec.Y, W: spec.W, H: spec.H})
		if err != nil {
			log.Printf("[boxes] Box %d rejected: %v", i, err)
			continue
		}
		if _, err := sess.AttachSignature(b.ID, spec.Strokes, spec.Pad); err != nil {
			return ExportResult{}, err
		}
	}
	return s.Export(ctx, sess)
}
