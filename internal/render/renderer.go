// Package render turns verification URLs into scannable PNG images.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

const (
	DefaultSize      = 512
	DefaultLogoRatio = 0.2
	// Highest error correction survives roughly 30% damage, which bounds the logo.
	MaxLogoRatio = 0.3
)

var ErrRender = errors.New("render failed")

// Options controls how a single code is drawn.
type Options struct {
	Size            int
	ForegroundColor string
	BackgroundColor string
	Logo            image.Image
	LogoRatio       float64
}

type Renderer struct {
	logger  *zap.Logger
	minSize int
	maxSize int
}

// NewRenderer creates a renderer accepting sizes in [minSize, maxSize].
func NewRenderer(logger *zap.Logger, minSize, maxSize int) *Renderer {
	return &Renderer{logger: logger, minSize: minSize, maxSize: maxSize}
}

// Render encodes payloadURL at the highest error correction level and returns PNG bytes.
func (r *Renderer) Render(payloadURL string, opts Options) ([]byte, error) {
	if payloadURL == "" {
		return nil, fmt.Errorf("%w: payload url is empty", ErrRender)
	}
	size := opts.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < r.minSize || size > r.maxSize {
		return nil, fmt.Errorf("%w: size must be between %d and %d", ErrRender, r.minSize, r.maxSize)
	}
	fg, err := parseHexColor(opts.ForegroundColor, color.Black)
	if err != nil {
		return nil, fmt.Errorf("%w: foreground: %v", ErrRender, err)
	}
	bg, err := parseHexColor(opts.BackgroundColor, color.White)
	if err != nil {
		return nil, fmt.Errorf("%w: background: %v", ErrRender, err)
	}

	q, err := qrcode.New(payloadURL, qrcode.Highest)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrRender, err)
	}
	q.ForegroundColor = fg
	q.BackgroundColor = bg

	src := q.Image(size)
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	if opts.Logo != nil {
		ratio := opts.LogoRatio
		if ratio <= 0 {
			ratio = DefaultLogoRatio
		}
		if ratio > MaxLogoRatio {
			ratio = MaxLogoRatio
		}
		overlayLogo(canvas, opts.Logo, ratio, bg)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: png: %v", ErrRender, err)
	}

	r.logger.Debug("qr code rendered",
		zap.Int("size", size),
		zap.Int("bytes", buf.Len()),
		zap.Bool("logo", opts.Logo != nil),
	)
	return buf.Bytes(), nil
}

// overlayLogo centers the logo on a plate of the background color so the
// finder patterns around it stay readable.
func overlayLogo(canvas *image.RGBA, logo image.Image, ratio float64, plate color.Color) {
	b := canvas.Bounds()
	side := int(float64(b.Dx()) * ratio)
	if side <= 0 {
		return
	}
	margin := side / 10
	center := image.Pt(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2)

	plateRect := image.Rect(
		center.X-side/2-margin, center.Y-side/2-margin,
		center.X+side/2+margin, center.Y+side/2+margin,
	)
	draw.Draw(canvas, plateRect, image.NewUniform(plate), image.Point{}, draw.Src)

	logoRect := image.Rect(center.X-side/2, center.Y-side/2, center.X+side/2, center.Y+side/2)
	xdraw.CatmullRom.Scale(canvas, logoRect, logo, logo.Bounds(), xdraw.Over, nil)
}

// LoadLogo decodes a PNG or JPEG logo from disk.
func LoadLogo(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logo: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode logo %s: %w", path, err)
	}
	return img, nil
}

// parseHexColor accepts #rgb or #rrggbb; empty input yields fallback.
func parseHexColor(s string, fallback color.Color) (color.Color, error) {
	if s == "" {
		return fallback, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
