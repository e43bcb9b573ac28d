package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg" // register JPEG decoding for image.Decode

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// stampCreatorMark overlays a semi-transparent caption bar along the bottom
// edge, with imageTitle at its left end, and re-encodes as PNG (spec §4.F: "optional
// creator-mark overlay"). No pack library does image compositing, so this
// is built on image/draw directly; golang.org/x/image supplies the only
// bundled bitmap font, avoiding a hand-rolled glyph table.
func stampCreatorMark(raw []byte, imageTitle string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	stamped := image.NewRGBA(bounds)
	draw.Draw(stamped, bounds, src, bounds.Min, draw.Src)

	const barHeight = 24
	barRect := image.Rect(bounds.Min.X, bounds.Max.Y-barHeight, bounds.Max.X, bounds.Max.Y)
	draw.Draw(stamped, barRect, image.NewUniform(color.NRGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	drawer := &font.Drawer{
		Dst:  stamped,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(bounds.Min.X+6, bounds.Max.Y-8),
	}
	drawer.DrawString(imageTitle)

	var out bytes.Buffer
	if err := png.Encode(&out, stamped); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
