// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"context"
	"image"
)

// FrameSource renders the conversation display at a given playback position
// for export. Reference implementations live in the render package.
type FrameSource interface {
	// RenderFrame draws the display as it looks when upTo is the index of
	// the newest visible message. upTo is -1 for the blank frame before the
	// first message appears. The export pipeline calls this sequentially,
	// one frame at a time, and waits for each result.
	RenderFrame(ctx context.Context, upTo int) (image.Image, error)
}

// FrameSourceFunc adapts a plain function to the FrameSource interface.
type FrameSourceFunc func(ctx context.Context, upTo int) (image.Image, error)

// RenderFrame calls the wrapped function.
func (f FrameSourceFunc) RenderFrame(ctx context.Context, upTo int) (image.Image, error) {
	return f(ctx, upTo)
}
