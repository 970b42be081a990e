package sheet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

// Measurer renders a block at a font size and reports the content height in
// pixels. Height must not decrease as the font size grows. Implementations
// return ErrNotMeasurable (or a zero height) while the content is not yet
// attached to a surface that can be measured.
type Measurer interface {
	Measure(ctx context.Context, block Block, fontSize int) (float64, error)
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(ctx context.Context, block Block, fontSize int) (float64, error)

func (f MeasureFunc) Measure(ctx context.Context, block Block, fontSize int) (float64, error) {
	return f(ctx, block, fontSize)
}

// PageStatus reports whether a block overflows one page at its current font size.
type PageStatus struct {
	IsOverflowing bool    `json:"isOverflowing"`
	PageCount     int     `json:"pageCount"`
	Height        float64 `json:"height"`
}

// ComputePageStatus derives the overflow status of content of the given
// height against a usable page height.
func ComputePageStatus(height, usableHeight float64) PageStatus {
	if usableHeight <= 0 || height <= usableHeight {
		return PageStatus{PageCount: 1, Height: height}
	}
	return PageStatus{
		IsOverflowing: true,
		PageCount:     int(math.Ceil(height / usableHeight)),
		Height:        height,
	}
}

// FitFontSize binary-searches [MinFontSize, MaxFontSize] for the largest size
// whose measured height fits usableHeight. When nothing fits, MinFontSize is
// returned. A zero height is never trusted as a fit.
func FitFontSize(ctx context.Context, m Measurer, block Block, usableHeight float64) (int, error) {
	lo, hi := MinFontSize, MaxFontSize
	best, found := MinFontSize, false
	steps := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		height, err := m.Measure(ctx, block, mid)
		steps++
		if err != nil {
			return 0, err
		}
		if height <= 0 {
			return 0, ErrNotMeasurable
		}
		if height <= usableHeight {
			best, found = mid, true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if !found {
		log.Warn("Block does not fit one page even at the minimum font size", "block", block.ID, "title", block.Title)
	}
	log.Debug("Auto-fit search finished", "block", block.ID, "size", best, "steps", steps)
	return best, nil
}

// RetryPolicy bounds how long auto-fit waits for content to become measurable.
type RetryPolicy struct {
	Delay      time.Duration
	MaxRetries int
}

// AutoFitResult is the outcome of one auto-fit request.
type AutoFitResult struct {
	BlockID  string
	FontSize int
	Err      error
}

// RequestAutoFit starts fitting a block in the background and returns a
// channel that receives exactly one result. A later request for the same
// block supersedes this one: its result is reported as ErrSuperseded and
// never applied.
func (e *Editor) RequestAutoFit(ctx context.Context, blockID string) <-chan AutoFitResult {
	results := make(chan AutoFitResult, 1)

	e.mu.Lock()
	if err := e.checkMutable(); err != nil {
		e.mu.Unlock()
		results <- AutoFitResult{BlockID: blockID, Err: err}
		close(results)
		return results
	}
	block, ok := e.layout.Block(blockID)
	if !ok {
		e.mu.Unlock()
		results <- AutoFitResult{BlockID: blockID, Err: fmt.Errorf("auto-fit %s: %w", blockID, ErrBlockNotFound)}
		close(results)
		return results
	}
	e.fitGeneration[blockID]++
	generation := e.fitGeneration[blockID]
	e.layout.SetAutoFitting(blockID, true)
	measurer, usable, retry := e.measurer, e.usableHeight, e.retry
	e.mu.Unlock()

	go func() {
		defer close(results)
		size, err := e.fitWithRetry(ctx, measurer, block, usable, retry, generation)

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.fitGeneration[blockID] != generation {
			results <- AutoFitResult{BlockID: blockID, Err: ErrSuperseded}
			return
		}
		e.layout.SetAutoFitting(blockID, false)
		if err != nil {
			results <- AutoFitResult{BlockID: blockID, Err: err}
			return
		}
		// The sheet may have been locked or closed while measuring.
		if err := e.checkMutable(); err != nil {
			results <- AutoFitResult{BlockID: blockID, Err: err}
			return
		}
		current, ok := e.layout.Block(blockID)
		if !ok {
			results <- AutoFitResult{BlockID: blockID, Err: fmt.Errorf("auto-fit %s: %w", blockID, ErrBlockNotFound)}
			return
		}
		if err := e.layout.SetFontSize(blockID, size-current.FontSize); err != nil {
			results <- AutoFitResult{BlockID: blockID, Err: err}
			return
		}
		log.Info("Auto-fit applied", "block", blockID, "from", current.FontSize, "to", size)
		results <- AutoFitResult{BlockID: blockID, FontSize: size}
	}()

	return results
}

// AutoFit fits a block and waits for the result.
func (e *Editor) AutoFit(ctx context.Context, blockID string) (int, error) {
	result := <-e.RequestAutoFit(ctx, blockID)
	return result.FontSize, result.Err
}

// fitWithRetry defers measurement while the content is not measurable,
// giving up after the configured number of retries or once superseded.
func (e *Editor) fitWithRetry(ctx context.Context, m Measurer, block Block, usable float64, retry RetryPolicy, generation uint64) (int, error) {
	if m == nil {
		return 0, fmt.Errorf("auto-fit %s: no measurer configured", block.ID)
	}
	for attempt := 0; ; attempt++ {
		size, err := FitFontSize(ctx, m, block, usable)
		if !errors.Is(err, ErrNotMeasurable) {
			return size, err
		}
		if attempt >= retry.MaxRetries {
			return 0, fmt.Errorf("auto-fit %s after %d retries: %w", block.ID, attempt, err)
		}
		log.Debug("Block not measurable yet, retrying", "block", block.ID, "attempt", attempt+1)

		timer := time.NewTimer(retry.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}

		e.mu.Lock()
		superseded := e.fitGeneration[block.ID] != generation
		e.mu.Unlock()
		if superseded {
			return 0, ErrSuperseded
		}
	}
}
