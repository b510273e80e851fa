// Package contactsheet lays generated images out on a single printable page.
package contactsheet

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/sync/errgroup"

	"imaginova-studio/internal/media"
)

const (
	Width  = 2480
	Height = 3508

	cols    = 2
	rows    = 3
	marginX = 150
	marginY = 500
	bottom  = 150
	gap     = 80

	radius      = 40
	labelHeight = 100
	labelInset  = 40
	quality     = 95

	// MaxCells is the grid capacity.
	MaxCells = cols * rows
)

var (
	ErrNoCells      = errors.New("contact sheet needs at least one image")
	ErrTooManyCells = fmt.Errorf("contact sheet holds at most %d images", MaxCells)

	background = color.RGBA{0x0b, 0x0b, 0x16, 0xff}
	accent     = color.RGBA{0x06, 0xb6, 0xd4, 0xff}
	rule       = color.RGBA{0x33, 0x33, 0x33, 0xff}
	labelShade = color.NRGBA{0, 0, 0, 178}
)

// Cell is one captioned image on the sheet.
type Cell struct {
	Label string
	Image media.Asset
}

func cellSize() (w, h int) {
	w = (Width - marginX*2 - gap*(cols-1)) / cols
	h = (Height - marginY - bottom - gap*(rows-1)) / rows
	return w, h
}

// Render composes cells row by row, two per row, and encodes the page as JPEG.
func Render(cells []Cell) (media.Asset, error) {
	if len(cells) == 0 {
		return media.Asset{}, ErrNoCells
	}
	if len(cells) > MaxCells {
		return media.Asset{}, ErrTooManyCells
	}

	decoded := make([]image.Image, len(cells))
	var g errgroup.Group
	for i, c := range cells {
		g.Go(func() error {
			img, err := c.Image.Decode()
			if err != nil {
				return fmt.Errorf("decode %q: %w", c.Label, err)
			}
			decoded[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return media.Asset{}, err
	}

	page := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(page, page.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	drawHeader(page)

	cw, ch := cellSize()
	for i, img := range decoded {
		col, row := i%cols, i/cols
		x := marginX + col*(cw+gap)
		y := marginY + row*(ch+gap)
		drawCell(page, image.Rect(x, y, x+cw, y+ch), img, cells[i].Label)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, page, &jpeg.Options{Quality: quality}); err != nil {
		return media.Asset{}, fmt.Errorf("encode contact sheet: %w", err)
	}
	return media.Asset{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}

// FileName is the download name for a sheet produced at t.
func FileName(flow string, t time.Time) string {
	flow = strings.ToLower(strings.TrimSpace(flow))
	if flow == "" {
		flow = "portfolio"
	}
	return fmt.Sprintf("imaginova-%s-%d.jpg", flow, t.Unix())
}

func drawHeader(page *image.RGBA) {
	drawText(page, "IMAGINOVA STUDIO", marginX, 250, 8, color.White, 0)
	drawText(page, "AI GENERATED COLLECTION", marginX, 320, 3, accent, 0)
	draw.Draw(page, image.Rect(marginX, 378, Width-marginX, 382), image.NewUniform(rule), image.Point{}, draw.Src)
}

func drawCell(page *image.RGBA, r image.Rectangle, img image.Image, label string) {
	src := coverCrop(img.Bounds(), r.Dx(), r.Dy())
	scaled := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, src, draw.Src, nil)
	draw.DrawMask(page, r, scaled, image.Point{}, roundedRect{r: r, radius: radius}, r.Min, draw.Over)

	strip := image.Rect(r.Min.X, r.Max.Y-labelHeight, r.Max.X, r.Max.Y)
	draw.DrawMask(page, strip, image.NewUniform(labelShade), image.Point{}, roundedRect{r: r, radius: radius}, strip.Min, draw.Over)
	drawText(page, strings.ToUpper(label), r.Min.X+labelInset, r.Max.Y-35, 3, color.White, r.Dx()-2*labelInset)
}

// coverCrop returns the centered part of b with the cell's aspect ratio.
func coverCrop(b image.Rectangle, cw, ch int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return b
	}
	if w*ch > h*cw {
		sw := h * cw / ch
		x := b.Min.X + (w-sw)/2
		return image.Rect(x, b.Min.Y, x+sw, b.Max.Y)
	}
	sh := w * ch / cw
	y := b.Min.Y + (h-sh)/2
	return image.Rect(b.Min.X, y, b.Max.X, y+sh)
}

// drawText renders s with the fixed 7x13 face magnified by scale, baseline at y.
// A positive maxWidth truncates the text to fit.
func drawText(dst draw.Image, s string, x, y, scale int, c color.Color, maxWidth int) {
	face := basicfont.Face7x13
	if maxWidth > 0 {
		limit := maxWidth / (face.Advance * scale)
		if r := []rune(s); len(r) > limit {
			s = string(r[:max(limit-3, 0)]) + "..."
		}
	}

	d := &font.Drawer{Face: face, Src: image.NewUniform(c)}
	w := d.MeasureString(s).Ceil()
	if w == 0 {
		return
	}
	glyphs := image.NewRGBA(image.Rect(0, 0, w, face.Height))
	d.Dst = glyphs
	d.Dot = fixed.P(0, face.Ascent)
	d.DrawString(s)

	top := y - face.Ascent*scale
	target := image.Rect(x, top, x+w*scale, top+face.Height*scale)
	draw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), draw.Over, nil)
}

// roundedRect is an alpha mask that is opaque inside r except past the
// rounded corners.
type roundedRect struct {
	r      image.Rectangle
	radius int
}

func (m roundedRect) ColorModel() color.Model { return color.AlphaModel }

func (m roundedRect) Bounds() image.Rectangle { return m.r }

func (m roundedRect) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}).In(m.r) {
		return color.Transparent
	}
	cx, cy := x, y
	switch {
	case x < m.r.Min.X+m.radius:
		cx = m.r.Min.X + m.radius
	case x >= m.r.Max.X-m.radius:
		cx = m.r.Max.X - m.radius - 1
	}
	switch {
	case y < m.r.Min.Y+m.radius:
		cy = m.r.Min.Y + m.radius
	case y >= m.r.Max.Y-m.radius:
		cy = m.r.Max.Y - m.radius - 1
	}
	dx, dy := x-cx, y-cy
	if dx*dx+dy*dy > m.radius*m.radius {
		return color.Transparent
	}
	return color.Opaque
}
