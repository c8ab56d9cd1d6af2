// Package imageio reads images into rasters and writes rasters back out,
// picking the format from the file extension.
package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Brownie44l1/upscaler/internal/raster"
	"github.com/samber/lo"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Formats that Save and Encode can write.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

var extensionFormats = map[string]string{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
	".bmp":  FormatBMP,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
}

// Options tunes the encoders.
type Options struct {
	// JPEGQuality is 1-100; 0 means jpeg.DefaultQuality.
	JPEGQuality int
}

// DecodeError means an input could not be read as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means a raster could not be written in the requested format.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode image %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// SupportedExtensions lists the output extensions Save accepts, sorted.
func SupportedExtensions() []string {
	exts := lo.Keys(extensionFormats)
	slices.Sort(exts)
	return exts
}

// FormatFor returns the output format for path's extension.
func FormatFor(path string) (string, bool) {
	format, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return format, ok
}

// Load decodes the image at path. PNG, JPEG, GIF, BMP, TIFF and WebP are
// understood; alpha is dropped.
func Load(path string) (*raster.Raster, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, format, err := Decode(f)
	if err != nil {
		return nil, "", &DecodeError{Path: path, Err: err}
	}
	return img, format, nil
}

// Decode reads one image from r.
func Decode(r io.Reader) (*raster.Raster, string, error) {
	img, format, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, "", err
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", fmt.Errorf("empty %s image", format)
	}
	return raster.FromImage(img), format, nil
}

// Save writes img to path in the format implied by its extension. The file
// is written next to path and renamed into place, so a failure leaves no
// partial output behind.
func Save(path string, img *raster.Raster, opts Options) error {
	format, ok := FormatFor(path)
	if !ok {
		return &EncodeError{
			Path: path,
			Err:  fmt.Errorf("unsupported extension %q, want one of %s", filepath.Ext(path), strings.Join(SupportedExtensions(), ", ")),
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return &EncodeError{Path: path, Err: err}
	}

	w := bufio.NewWriter(tmp)
	if err := Encode(w, format, img, opts); err != nil {
		tmp.Close()
		return &EncodeError{Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return &EncodeError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}

// Encode writes img to w in the named format.
func Encode(w io.Writer, format string, img *raster.Raster, opts Options) error {
	rgba := img.ToRGBA()
	switch format {
	case FormatPNG:
		return png.Encode(w, rgba)
	case FormatJPEG:
		quality := opts.JPEGQuality
		if quality == 0 {
			quality = jpeg.DefaultQuality
		}
		return jpeg.Encode(w, rgba, &jpeg.Options{Quality: quality})
	case FormatGIF:
		return gif.Encode(w, rgba, nil)
	case FormatBMP:
		return bmp.Encode(w, rgba)
	case FormatTIFF:
		return tiff.Encode(w, rgba, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("unsupported format %q", format)
}
