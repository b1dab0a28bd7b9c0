package source

import (
	"errors"
	"fmt"
	"io"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"vidlink/pkg/models"
)

// File decodes a video file into raw frames with ffmpeg, rescaled and
// repaced to the requested format.
type File struct {
	format models.StreamFormat
	pr     *io.PipeReader

	once    sync.Once
	decode  error
	decoded chan struct{} // closed when the ffmpeg process exits
}

// pixFmt maps buffer types to ffmpeg pixel format names.
func pixFmt(t models.VideoBufferType) (string, error) {
	switch t {
	case models.BufferRGBA:
		return "rgba", nil
	case models.BufferABGR:
		return "abgr", nil
	case models.BufferARGB:
		return "argb", nil
	case models.BufferBGRA:
		return "bgra", nil
	case models.BufferRGB24:
		return "rgb24", nil
	default:
		return "", fmt.Errorf("unsupported buffer type %s", t)
	}
}

// OpenFile starts decoding path into width x height frames of the given
// type at fps frames per second.
func OpenFile(path string, width, height, fps int, bufType models.VideoBufferType) (*File, error) {
	pf, err := pixFmt(bufType)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	f := &File{
		format:  models.StreamFormat{Width: width, Height: height, Type: bufType},
		pr:      pr,
		decoded: make(chan struct{}),
	}

	go func() {
		err := ffmpeg.Input(path).
			Output("pipe:", ffmpeg.KwArgs{
				"format":  "rawvideo",
				"pix_fmt": pf,
				"vf":      fmt.Sprintf("fps=%d,scale=%d:%d", fps, width, height),
			}).
			WithOutput(pw).
			Run()
		f.once.Do(func() { f.decode = err })
		close(f.decoded)
		pw.Close()
	}()

	return f, nil
}

// Next returns the next decoded frame, or io.EOF when the file is done.
func (f *File) Next() (*models.VideoFrame, error) {
	buf := make([]byte, f.format.FrameSize())
	_, err := io.ReadFull(f.pr, buf)
	switch {
	case err == nil:
		return &models.VideoFrame{
			Width:  f.format.Width,
			Height: f.format.Height,
			Type:   f.format.Type,
			Data:   buf,
		}, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		<-f.decoded
		if f.decode != nil {
			return nil, fmt.Errorf("ffmpeg decode failed: %w", f.decode)
		}
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("failed to read decoded frame: %w", err)
	}
}

// Close stops reading; the decoder exits on its own once the pipe breaks.
func (f *File) Close() error {
	return f.pr.Close()
}
