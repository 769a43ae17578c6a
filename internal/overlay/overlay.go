// Package overlay stamps analysis results onto processed frames before
// they are returned to the client.
package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png" // Accept PNG-encoded frames
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

const (
	padX = 6
	padY = 4
)

// Stamp draws the emotion label over a dark strip in the top-left corner
// of the frame and re-encodes it as JPEG. On decode or encode failure the
// input bytes are returned unchanged so the pipeline never loses a frame
// to annotation.
func Stamp(encoded []byte, label types.EmotionLabel) []byte {
	src, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return encoded
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	text := strings.ToUpper(string(label))
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()

	// Background strip
	strip := image.Rect(
		bounds.Min.X, bounds.Min.Y,
		bounds.Min.X+textWidth+2*padX, bounds.Min.Y+face.Height+2*padY,
	).Intersect(bounds)
	draw.Draw(img, strip, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot: fixed.P(
			bounds.Min.X+padX,
			bounds.Min.Y+padY+face.Ascent,
		),
	}
	drawer.DrawString(text)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return encoded
	}
	return buf.Bytes()
}
