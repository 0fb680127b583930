package gce

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// height of the label band under each sheet cell
const sheetLabelHeight = 17

// SheetRenderer composes rendered images into a single contact sheet,
// scaled to fit fixed cells and labeled with their file names.
type SheetRenderer struct {
	Columns int
	CellWidth int
	CellHeight int

	labels []string
	images []image.Image
}

func NewSheetRenderer(columns int, cellWidth int, cellHeight int) *SheetRenderer {
	return &SheetRenderer{
		Columns: columns,
		CellWidth: cellWidth,
		CellHeight: cellHeight,
	}
}

func (r *SheetRenderer) Render(path string, im image.Image) error {
	r.labels = append(r.labels, filepath.Base(path))
	r.images = append(r.images, im)
	return nil
}

func (r *SheetRenderer) Count() int {
	return len(r.images)
}

// Fit a src rectangle inside a cell while keeping its aspect ratio.
func fitRect(src image.Rectangle, cellWidth int, cellHeight int) image.Rectangle {
	w, h := src.Dx(), src.Dy()
	if w == 0 || h == 0 {
		return image.Rect(0, 0, 0, 0)
	}
	if w*cellHeight > h*cellWidth {
		h = h * cellWidth / w
		w = cellWidth
	} else {
		w = w * cellHeight / h
		h = cellHeight
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	left := (cellWidth - w) / 2
	top := (cellHeight - h) / 2
	return image.Rect(left, top, left+w, top+h)
}

func drawLabel(dst draw.Image, text string, x int, y int, maxWidth int) {
	d := &font.Drawer{
		Dst: dst,
		Src: image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	// truncate long names so they stay inside the cell
	if d.MeasureString(text).Round() > maxWidth {
		for len(text) > 0 && d.MeasureString(text+"..").Round() > maxWidth {
			text = text[:len(text)-1]
		}
		text += ".."
	}
	d.Dot = fixed.P(x, y+basicfont.Face7x13.Ascent)
	d.DrawString(text)
}

// Build the contact sheet from everything rendered so far.
func (r *SheetRenderer) Sheet() *image.RGBA {
	columns := r.Columns
	if columns <= 0 {
		columns = 4
	}
	if len(r.images) < columns {
		columns = len(r.images)
	}
	if columns == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	rows := (len(r.images) + columns - 1) / columns
	rowHeight := r.CellHeight + sheetLabelHeight
	sheet := image.NewRGBA(image.Rect(0, 0, columns*r.CellWidth, rows*rowHeight))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, im := range r.images {
		left := (i % columns) * r.CellWidth
		top := (i / columns) * rowHeight
		dst := fitRect(im.Bounds(), r.CellWidth, r.CellHeight).Add(image.Pt(left, top))
		draw.CatmullRom.Scale(sheet, dst, im, im.Bounds(), draw.Over, nil)
		drawLabel(sheet, r.labels[i], left+2, top+r.CellHeight+1, r.CellWidth-4)
	}
	return sheet
}

func (r *SheetRenderer) Encode(w io.Writer) error {
	return png.Encode(w, r.Sheet())
}

func (r *SheetRenderer) WriteFile(fname string) error {
	if len(r.images) == 0 {
		return fmt.Errorf("no images to write")
	}
	file, err := os.Create(fname)
	if err != nil {
		return err
	}
	if err := r.Encode(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
