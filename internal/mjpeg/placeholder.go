package mjpeg

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// Placeholder renders a dark frame with a crossed-out camera box, shown while
// the camera is off.
func Placeholder(w, h, quality int) []byte {
	if w <= 0 || h <= 0 {
		w, h = 640, 480
	}
	if quality <= 0 || quality > 100 {
		quality = 60
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	bg := color.Gray{Y: 0x30}
	fg := color.Gray{Y: 0x80}
	for i := range img.Pix {
		img.Pix[i] = bg.Y
	}

	bw, bh := w/4, h/4
	x0, y0 := (w-bw)/2, (h-bh)/2
	for x := x0; x < x0+bw; x++ {
		img.SetGray(x, y0, fg)
		img.SetGray(x, y0+bh-1, fg)
	}
	for y := y0; y < y0+bh; y++ {
		img.SetGray(x0, y, fg)
		img.SetGray(x0+bw-1, y, fg)
	}
	for i := 0; i < bw; i++ {
		y := y0 + i*bh/bw
		img.SetGray(x0+i, y, fg)
		img.SetGray(x0+bw-1-i, y, fg)
	}

	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}
