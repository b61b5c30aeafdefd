// Package embedding talks to the external face model service: an HTTP
// server (InsightFace-style) that detects faces in a frame and maps face
// crops to fixed-length embedding vectors. The model itself is a versioned
// external dependency; this package only normalizes its output into
// unit-norm templates.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/krivanek/rollcall/internal/gallery"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultModel   = "arcface" // model name for reference only

	// DefaultMinCropPx is the smallest face crop edge the extractor accepts.
	DefaultMinCropPx = 40

	jpegQuality = 90
)

// ErrCropTooSmall is returned when a face crop is below the usable size.
var ErrCropTooSmall = errors.New("face crop too small")

// ExtractionError wraps any failure to turn a face crop into a template.
// The pipeline treats it as "skip this face", never as a fatal condition.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("template extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("template extraction failed (%s)", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Detection is one face found by the detector in one frame.
type Detection struct {
	FaceIndex int          `json:"face_index"`
	BBox      []float64    `json:"bbox"` // [x1, y1, x2, y2] in frame pixels
	Score     float64      `json:"det_score"`
	Landmarks [][3]float64 `json:"landmarks,omitempty"` // (x, y, z) per landmark
}

// LeftEye and RightEye return the first two landmarks as image points,
// following the detector's landmark ordering convention.
func (d Detection) LeftEye() (image.Point, bool) {
	if len(d.Landmarks) < 2 {
		return image.Point{}, false
	}
	return image.Pt(int(d.Landmarks[0][0]), int(d.Landmarks[0][1])), true
}

func (d Detection) RightEye() (image.Point, bool) {
	if len(d.Landmarks) < 2 {
		return image.Point{}, false
	}
	return image.Pt(int(d.Landmarks[1][0]), int(d.Landmarks[1][1])), true
}

// detectResponse is the payload of the face detection endpoint.
type detectResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// embedResponse is the payload of the embedding endpoint.
type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Client computes detections and templates using the face model server.
type Client struct {
	baseURL   string
	model     string
	minCropPx int
	client    *http.Client
}

// NewClient creates a new face model client.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     model,
		minCropPx: DefaultMinCropPx,
		client:    &http.Client{},
	}
}

// Model returns the model name being used.
func (c *Client) Model() string {
	return c.model
}

// DetectFaces finds all faces in the frame, with bounding boxes, detector
// confidence and (when the model provides them) 3D landmarks.
func (c *Client) DetectFaces(ctx context.Context, frame image.Image) ([]Detection, error) {
	data, err := encodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}

	body, err := c.postMultipartImage(ctx, "/detect/face", data)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse detection response: %w", err)
	}
	return resp.Faces, nil
}

// ExtractTemplate maps a face crop to a unit-norm template. Crops below the
// minimum usable size fail fast without a network round trip.
func (c *Client) ExtractTemplate(ctx context.Context, crop image.Image) (gallery.Template, error) {
	bounds := crop.Bounds()
	if bounds.Dx() < c.minCropPx || bounds.Dy() < c.minCropPx {
		return nil, &ExtractionError{Reason: "crop size", Err: ErrCropTooSmall}
	}

	data, err := encodeJPEG(crop)
	if err != nil {
		return nil, &ExtractionError{Reason: "preprocessing", Err: err}
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, &ExtractionError{Reason: "model request", Err: err}
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ExtractionError{Reason: "response parse", Err: err}
	}
	if len(resp.Embedding) == 0 {
		return nil, &ExtractionError{Reason: "empty embedding"}
	}

	tmpl, err := gallery.NewTemplate(resp.Embedding)
	if err != nil {
		return nil, &ExtractionError{Reason: "normalization", Err: err}
	}
	return tmpl, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// encodeJPEG serializes an image for the multipart upload.
func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
