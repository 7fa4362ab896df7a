package capture

import (
	"fmt"
	"image"
)

// rgbaToBGR24 packs the pixels of img into dst as B,G,R triplets, row by row
// without padding. Alpha is discarded. dst must hold exactly
// width*height*3 bytes.
func rgbaToBGR24(dst []byte, img *image.RGBA) error {
	b := img.Rect
	width, height := b.Dx(), b.Dy()
	if len(dst) != width*height*3 {
		return fmt.Errorf("bgr24 buffer is %d bytes, need %d for %dx%d", len(dst), width*height*3, width, height)
	}

	for y := 0; y < height; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+width*4]
		row := dst[y*width*3 : (y+1)*width*3]

		for x, pi := 0, 0; x < width; x, pi = x+1, pi+4 {
			o := x * 3
			row[o] = src[pi+2]
			row[o+1] = src[pi+1]
			row[o+2] = src[pi]
		}
	}
	return nil
}
