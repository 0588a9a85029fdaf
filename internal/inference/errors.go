package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

var (
	// ErrChunkTimeout means no fragment arrived within the per-chunk timeout.
	ErrChunkTimeout = errors.New("no fragment within chunk timeout")
	// ErrConnection marks transient transport failures: network, 429, 5xx, EOF.
	ErrConnection = errors.New("inference connection error")
	// ErrBackend marks backend failures that a retry will not fix.
	ErrBackend = errors.New("inference backend error")
	// ErrPassConsumed is yielded when a pass is iterated a second time.
	ErrPassConsumed = errors.New("stream pass already consumed")
)

// classify wraps a backend error with ErrConnection or ErrBackend.
// Context errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if transient(err) {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}

func transient(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var ae *anthropic.Error
	if errors.As(err, &ae) {
		return retryableStatus(ae.StatusCode)
	}
	var oe *openai.Error
	if errors.As(err, &oe) {
		return retryableStatus(oe.StatusCode)
	}
	var ge *genai.APIError
	if errors.As(err, &ge) {
		return retryableStatus(ge.Code)
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}
