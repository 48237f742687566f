// internal/emulator/image.go
package emulator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
)

const tagPrefix = "cam-emulator"

var palette = map[string]color.RGBA{
	SourceIMOU:    {R: 30, G: 60, B: 140, A: 255},
	SourceGeneric: {R: 90, G: 90, B: 90, A: 255},
	SourceAxis:    {R: 200, G: 170, B: 20, A: 255},
	SourceONVIF:   {R: 20, G: 130, B: 60, A: 255},
}

// RenderJPEG gera um quadro de tamanho fixo com um padrão que depende só da
// origem e grava "cam-emulator;source=...;model=..." num segmento COM.
func RenderJPEG(width, height int, source, model string) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	bg, ok := palette[source]
	if !ok {
		bg = palette[SourceGeneric]
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bars := 8
	barW := width / bars
	if barW == 0 {
		barW = 1
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			step := uint8((x / barW) * 24)
			c := bg
			if (y/(height/4+1))%2 == 1 {
				c.R, c.G, c.B = c.R/2+step/2, c.G/2+step/2, c.B/2+step/2
			} else {
				c.R, c.G, c.B = sat(c.R, step), sat(c.G, step), sat(c.B, step)
			}
			img.SetRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return injectComment(buf.Bytes(), fmt.Sprintf("%s;source=%s;model=%s", tagPrefix, source, model))
}

func sat(a, b uint8) uint8 {
	if int(a)+int(b) > 255 {
		return 255
	}
	return a + b
}

// injectComment insere um segmento COM (0xFFFE) logo após o SOI.
func injectComment(jpg []byte, text string) ([]byte, error) {
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return nil, fmt.Errorf("not a jpeg stream")
	}
	if len(text) > 0xFFFF-2 {
		return nil, fmt.Errorf("comment too long")
	}
	seg := make([]byte, 4, 4+len(text))
	seg[0], seg[1] = 0xFF, 0xFE
	binary.BigEndian.PutUint16(seg[2:], uint16(len(text)+2))
	seg = append(seg, text...)

	out := make([]byte, 0, len(jpg)+len(seg))
	out = append(out, jpg[:2]...)
	out = append(out, seg...)
	out = append(out, jpg[2:]...)
	return out, nil
}

// ImageTag lê o segmento COM gravado pelo emulador. ok=false se a imagem não
// veio do emulador.
func ImageTag(jpg []byte) (map[string]string, bool) {
	if len(jpg) < 4 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return nil, false
	}
	i := 2
	for i+4 <= len(jpg) && jpg[i] == 0xFF {
		marker := jpg[i+1]
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		size := int(binary.BigEndian.Uint16(jpg[i+2 : i+4]))
		if size < 2 || i+2+size > len(jpg) {
			break
		}
		if marker == 0xFE {
			text := string(jpg[i+4 : i+2+size])
			if strings.HasPrefix(text, tagPrefix+";") {
				tag := make(map[string]string)
				for _, kv := range strings.Split(text[len(tagPrefix)+1:], ";") {
					if k, v, ok := strings.Cut(kv, "="); ok {
						tag[k] = v
					}
				}
				return tag, true
			}
		}
		i += 2 + size
	}
	return nil, false
}
