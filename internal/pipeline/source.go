package pipeline

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// OpenSource builds a frame source from a spec string: http(s) URLs are
// treated as MJPEG camera streams, anything else as a directory of images.
func OpenSource(ctx context.Context, spec string) (FrameSource, error) {
	if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
		return NewMJPEGSource(ctx, spec)
	}
	return NewDirSource(spec)
}

// FrameSource supplies decoded frames with non-decreasing capture
// timestamps. Next returns io.EOF when the source is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// DirSource replays image files from a directory in filename order. Useful
// for testing a session against recorded footage.
type DirSource struct {
	paths []string
	pos   int
	seq   uint64
}

// NewDirSource lists the supported image files under dir.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no image files in %s", dir)
	}
	return &DirSource{paths: paths}, nil
}

func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.pos >= len(s.paths) {
		return Frame{}, io.EOF
	}

	path := s.paths[s.pos]
	s.pos++

	f, err := os.Open(path)
	if err != nil {
		return Frame{}, fmt.Errorf("opening frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Frame{}, fmt.Errorf("decoding frame %s: %w", path, err)
	}

	s.seq++
	return Frame{Image: img, CapturedAt: time.Now(), Seq: s.seq}, nil
}

func (s *DirSource) Close() error {
	return nil
}

// MJPEGSource consumes a multipart/x-mixed-replace JPEG stream, the format
// most IP cameras expose over HTTP.
type MJPEGSource struct {
	resp   *http.Response
	reader *multipart.Reader
	seq    uint64
}

// NewMJPEGSource connects to the camera stream URL.
func NewMJPEGSource(ctx context.Context, url string) (*MJPEGSource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to camera stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("camera stream returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("not an MJPEG stream (content type %q)", resp.Header.Get("Content-Type"))
	}

	return &MJPEGSource{
		resp:   resp,
		reader: multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

func (s *MJPEGSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	part, err := s.reader.NextPart()
	if err != nil {
		return Frame{}, err
	}
	defer part.Close()

	img, _, err := image.Decode(part)
	if err != nil {
		return Frame{}, fmt.Errorf("decoding stream frame: %w", err)
	}

	s.seq++
	return Frame{Image: img, CapturedAt: time.Now(), Seq: s.seq}, nil
}

func (s *MJPEGSource) Close() error {
	return s.resp.Body.Close()
}
