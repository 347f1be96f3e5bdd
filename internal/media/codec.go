// Package media converts raw evidence files to and from the storable
// representation held by the local store. Round-tripping preserves content
// byte for byte; thumbnails are best-effort.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/galamseywatch/fieldkit/internal/model"
)

const (
	// Thumbnails are bounded to this edge length, aspect ratio preserved.
	ThumbnailMaxEdge = 200
	// JPEG quality factor for thumbnail encoding.
	ThumbnailQuality = 70
)

// Raw is a transferable media object: what the composer receives from the
// user and what the synchronizer re-uploads.
type Raw struct {
	Name       string
	MimeType   string
	Bytes      []byte
	CapturedAt time.Time
	Latitude   *float64
	Longitude  *float64
	Accuracy   *float64
}

type Codec struct {
	maxEdge int
	quality int
	log     *logrus.Logger
}

func NewCodec(log *logrus.Logger) *Codec {
	return &Codec{maxEdge: ThumbnailMaxEdge, quality: ThumbnailQuality, log: log}
}

// Encode produces the storable form of a raw media item. Image types get a
// downscaled JPEG thumbnail; a thumbnail failure never fails the encode, the
// item is stored without one.
func (c *Codec) Encode(raw Raw) (model.StoredMedia, error) {
	if len(raw.Bytes) == 0 {
		return model.StoredMedia{}, fmt.Errorf("media %q has no content", raw.Name)
	}
	if raw.MimeType == "" {
		return model.StoredMedia{}, fmt.Errorf("media %q has no mime type", raw.Name)
	}
	capturedAt := raw.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	stored := model.StoredMedia{
		ID:         uuid.NewString(),
		Name:       raw.Name,
		MimeType:   raw.MimeType,
		SizeBytes:  int64(len(raw.Bytes)),
		Bytes:      append([]byte(nil), raw.Bytes...),
		CapturedAt: capturedAt,
		Latitude:   raw.Latitude,
		Longitude:  raw.Longitude,
		Accuracy:   raw.Accuracy,
	}

	if strings.HasPrefix(raw.MimeType, "image/") {
		thumb, err := c.thumbnail(raw.Bytes)
		if err != nil {
			if c.log != nil {
				c.log.WithField("media", raw.Name).WithError(err).Debug("thumbnail generation skipped")
			}
		} else {
			stored.ThumbnailBytes = thumb
		}
	}
	return stored, nil
}

// Decode reconstructs the transferable object for re-upload. Content and MIME
// type are identical to what Encode consumed.
func (c *Codec) Decode(stored model.StoredMedia) Raw {
	return Raw{
		Name:       stored.Name,
		MimeType:   stored.MimeType,
		Bytes:      append([]byte(nil), stored.Bytes...),
		CapturedAt: stored.CapturedAt,
		Latitude:   stored.Latitude,
		Longitude:  stored.Longitude,
		Accuracy:   stored.Accuracy,
	}
}

func (c *Codec) thumbnail(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty image bounds")
	}

	scaled := src
	if w > c.maxEdge || h > c.maxEdge {
		scale := float64(c.maxEdge) / float64(w)
		if h > w {
			scale = float64(c.maxEdge) / float64(h)
		}
		scaled = downscale(src, int(float64(w)*scale), int(float64(h)*scale))
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// downscale box-samples src into a dstW x dstH image. Good enough for
// preview thumbnails; no external resize dependency needed.
func downscale(src image.Image, dstW, dstH int) image.Image {
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))

	for y := 0; y < dstH; y++ {
		sy0 := bounds.Min.Y + y*srcH/dstH
		sy1 := bounds.Min.Y + (y+1)*srcH/dstH
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		for x := 0; x < dstW; x++ {
			sx0 := bounds.Min.X + x*srcW/dstW
			sx1 := bounds.Min.X + (x+1)*srcW/dstW
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			var r, g, b, a, n uint64
			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					pr, pg, pb, pa := src.At(sx, sy).RGBA()
					r += uint64(pr)
					g += uint64(pg)
					b += uint64(pb)
					a += uint64(pa)
					n++
				}
			}
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = uint8(r / n >> 8)
			dst.Pix[i+1] = uint8(g / n >> 8)
			dst.Pix[i+2] = uint8(b / n >> 8)
			dst.Pix[i+3] = uint8(a / n >> 8)
		}
	}
	return dst
}
