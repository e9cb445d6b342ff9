// Package imaging decodes uploaded images and produces face thumbnails.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/kozaktomas/face-recognizer/internal/constants"
	"github.com/kozaktomas/face-recognizer/internal/facematch"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned for data that cannot be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

// Prepared is an uploaded image ready for detection. Detector coordinates
// refer to Image, which may be downscaled from the upload.
type Prepared struct {
	Image  image.Image
	JPEG   []byte
	Format string // format of the original upload
}

// Decode decodes JPEG, PNG, GIF, BMP and WebP data.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty file", ErrInvalidImage)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}

// Prepare decodes data, downsizes it to fit within maxSize and re-encodes it
// as JPEG. A non-positive maxSize disables resizing.
func Prepare(data []byte, maxSize int) (*Prepared, error) {
	img, format, err := Decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize > 0 && (width > maxSize || height > maxSize) {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}

		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	} else if format == "jpeg" {
		return &Prepared{Image: img, JPEG: data, Format: format}, nil
	}

	encoded, err := EncodeJPEG(img, 90)
	if err != nil {
		return nil, err
	}
	return &Prepared{Image: img, JPEG: encoded, Format: format}, nil
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL wraps JPEG bytes in a data URL.
func DataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}

// squareAround returns the square of side max(w, h) centred on r.
func squareAround(r image.Rectangle) image.Rectangle {
	side := max(r.Dx(), r.Dy())
	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2
	return image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side)
}

// CropFace cuts a square region around the face and scales it to size x size.
// Parts of the square outside the image stay black.
func CropFace(img image.Image, face image.Rectangle, size int) (image.Image, error) {
	square := squareAround(face.Canon())
	clipped := square.Intersect(img.Bounds())
	if clipped.Empty() || size <= 0 {
		return nil, fmt.Errorf("face region %v outside image %v", face, img.Bounds())
	}

	k := float64(size) / float64(square.Dx())
	dr := image.Rect(
		int(math.Round(float64(clipped.Min.X-square.Min.X)*k)),
		int(math.Round(float64(clipped.Min.Y-square.Min.Y)*k)),
		int(math.Round(float64(clipped.Max.X-square.Min.X)*k)),
		int(math.Round(float64(clipped.Max.Y-square.Min.Y)*k)),
	)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dr, img, clipped, draw.Src, nil)
	return dst, nil
}

// AlignFace rotates around the face box centre by the negated eye line angle
// so the eyes end up level, crops the square around the face and scales it
// to size x size.
func AlignFace(img image.Image, face image.Rectangle, eyes facematch.EyePair, size int) (image.Image, error) {
	face = face.Canon()
	if face.Empty() || size <= 0 || face.Intersect(img.Bounds()).Empty() {
		return nil, fmt.Errorf("face region %v outside image %v", face, img.Bounds())
	}

	theta := eyes.Angle()
	side := float64(max(face.Dx(), face.Dy()))
	k := float64(size) / side
	half := float64(size) / 2
	fx := float64(face.Min.X) + float64(face.Dx())/2
	fy := float64(face.Min.Y) + float64(face.Dy())/2
	cos, sin := math.Cos(theta), math.Sin(theta)

	// dst = k * R(-theta) * (src - faceCentre) + half
	s2d := f64.Aff3{
		k * cos, k * sin, half - k*(cos*fx+sin*fy),
		-k * sin, k * cos, half - k*(-sin*fx+cos*fy),
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Transform(dst, s2d, img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// Thumbnail renders the face as a JPEG data URL, aligned when eyes are given.
func Thumbnail(img image.Image, face image.Rectangle, eyes *facematch.EyePair, size int) (string, error) {
	var (
		out image.Image
		err error
	)
	if eyes != nil {
		out, err = AlignFace(img, face, *eyes, size)
	} else {
		out, err = CropFace(img, face, size)
	}
	if err != nil {
		return "", err
	}

	data, err := EncodeJPEG(out, constants.ThumbnailJPEGQuality)
	if err != nil {
		return "", err
	}
	return DataURL(data), nil
}
