package export

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/phpdave11/gofpdi"

	"SignFlow/internal/coords"
	"SignFlow/internal/render"
)

// ErrNotPDF indicates bytes that do not start with a PDF header.
var ErrNotPDF = errors.New("not a PDF document")

// ErrClosed indicates use of a document after Close.
var ErrClosed = errors.New("document closed")

type drawOp func(f *gofpdf.Fpdf)

// PDFDocument rebuilds a PDF with gofpdf, importing every page of the
// original as a template and drawing on top of it.
type PDFDocument struct {
	pdf    *gofpdf.Fpdf
	imp    *gofpdi.Importer
	tpls   []int
	sizes  []coords.Size
	ops    map[int][]drawOp
	saved  []byte
	closed bool
}

var _ Document = (*PDFDocument)(nil)

// OpenPDF is the Opener for PDFDocument.
func OpenPDF(data []byte) (Document, error) {
	return NewPDFDocument(data)
}

// NewPDFDocument parses data and imports all of its pages.
func NewPDFDocument(data []byte) (doc *PDFDocument, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	// The importer panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	imp := gofpdi.NewImporter()
	rs := io.ReadSeeker(bytes.NewReader(data))
	imp.SetSourceStream(&rs)

	n := imp.GetNumPages()
	if n < 1 {
		return nil, fmt.Errorf("parse pdf: no pages")
	}
	boxes := imp.GetPageSizes()
	for p := 1; p <= n; p++ {
		mb := boxes[p]["/MediaBox"]
		if !(coords.Size{W: mb["w"], H: mb["h"]}).Valid() {
			return nil, fmt.Errorf("parse pdf: page %d has no media box", p)
		}
	}

	tpls := make([]int, n)
	sizes := make([]coords.Size, n)
	for p := 1; p <= n; p++ {
		tpls[p-1] = imp.ImportPage(p, "/MediaBox")
		sizes[p-1] = templateSize(imp, tpls[p-1])
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: sizes[0].W, Ht: sizes[0].H},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.ImportTemplates(imp.PutFormXobjectsUnordered())
	pdf.ImportObjects(imp.GetImportedObjectsUnordered())
	pdf.ImportObjPos(imp.GetImportedObjHashPos())

	return &PDFDocument{
		pdf:   pdf,
		imp:   imp,
		tpls:  tpls,
		sizes: sizes,
		ops:   make(map[int][]drawOp),
	}, nil
}

// templateSize is the displayed size of an imported page. The importer
// applies /Rotate to the template, swapping width and height for quarter
// turns; drawing the template into a unit square yields scales of 1/W and
// 1/H.
func templateSize(imp *gofpdi.Importer, tpl int) coords.Size {
	_, sx, sy, _, _ := imp.UseTemplate(tpl, 0, 0, 1, 1)
	return coords.Size{W: 1 / sx, H: 1 / sy}
}

// PageSizes returns the displayed size of every page in points, with the
// page rotation applied.
func (d *PDFDocument) PageSizes() []coords.Size {
	return append([]coords.Size(nil), d.sizes...)
}

func (d *PDFDocument) PageCount() int { return len(d.sizes) }

func (d *PDFDocument) PageRect(page int) (coords.Rect, error) {
	if err := d.check(page); err != nil {
		return coords.Rect{}, err
	}
	s := d.sizes[page-1]
	return coords.Rect{W: s.W, H: s.H}, nil
}

func (d *PDFDocument) check(page int) error {
	if d.closed {
		return ErrClosed
	}
	if page < 1 || page > len(d.sizes) {
		return fmt.Errorf("page %d out of range 1..%d", page, len(d.sizes))
	}
	return nil
}

func pen(f *gofpdf.Fpdf, ink Ink) {
	f.SetDrawColor(int(ink.Color.R), int(ink.Color.G), int(ink.Color.B))
	f.SetLineWidth(ink.Width)
	f.SetLineCapStyle("round")
	f.SetLineJoinStyle("round")
}

func (d *PDFDocument) DrawPolyline(page int, points []coords.Point, ink Ink) error {
	if err := d.check(page); err != nil {
		return err
	}
	if len(points) < 2 {
		return fmt.Errorf("polyline needs 2 points, got %d", len(points))
	}
	pts := append([]coords.Point(nil), points...)
	d.ops[page] = append(d.ops[page], func(f *gofpdf.Fpdf) {
		pen(f, ink)
		f.MoveTo(pts[0].X, pts[0].Y)
		for _, p := range pts[1:] {
			f.LineTo(p.X, p.Y)
		}
		f.DrawPath("D")
	})
	return nil
}

func (d *PDFDocument) DrawCurve(page int, start coords.Point, segments []render.Segment, ink Ink) error {
	if err := d.check(page); err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("curve without segments")
	}
	segs := append([]render.Segment(nil), segments...)
	d.ops[page] = append(d.ops[page], func(f *gofpdf.Fpdf) {
		pen(f, ink)
		f.MoveTo(start.X, start.Y)
		for _, s := range segs {
			f.CurveBezierCubicTo(s.C1.X, s.C1.Y, s.C2.X, s.C2.Y, s.End.X, s.End.Y)
		}
		f.DrawPath("D")
	})
	return nil
}

func (d *PDFDocument) DrawDot(page int, center coords.Point, radius float64, c color.NRGBA) error {
	if err := d.check(page); err != nil {
		return err
	}
	d.ops[page] = append(d.ops[page], func(f *gofpdf.Fpdf) {
		f.SetFillColor(int(c.R), int(c.G), int(c.B))
		f.Circle(center.X, center.Y, radius, "F")
	})
	return nil
}

// Save writes every page with its buffered drawing and serializes the
// document. Later calls return the same bytes.
func (d *PDFDocument) Save() ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.saved != nil {
		return d.saved, nil
	}
	for i, s := range d.sizes {
		d.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: s.W, Ht: s.H})
		name, sx, sy, tx, ty := d.imp.UseTemplate(d.tpls[i], 0, 0, s.W, s.H)
		d.pdf.UseImportedTemplate(name, sx, sy, tx, ty)
		for _, op := range d.ops[i+1] {
			op(d.pdf)
		}
	}
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	d.saved = buf.Bytes()
	return d.saved, nil
}

func (d *PDFDocument) Close() error {
	d.closed = true
	d.ops = nil
	return nil
}
