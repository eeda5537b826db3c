// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package render contains reference frame sources for the export pipeline:
// Blocks draws flat chat-bubble frames locally, Remote asks an external
// renderer over a websocket.
package render

import (
	"context"
	"image"
	"image/color"
	"image/draw"

	"go.mau.fi/chatreel"
	"go.mau.fi/chatreel/types"
)

// Blocks is a deterministic FrameSource that draws the conversation as flat
// colored blocks: one rounded bubble per visible message, text suggested by
// gray strips, typing indicators as dots. It exists so exports work without
// any external renderer; it makes no attempt at pixel fidelity.
type Blocks struct {
	msgs   []types.Message
	width  int
	height int
}

var _ chatreel.FrameSource = (*Blocks)(nil)

// Layout constants, loosely matching the player's row height model so block
// frames scroll the same way a real display would.
const (
	blockMargin     = 12
	blockHeaderH    = 56
	blockBubblePadX = 10
	blockBubblePadY = 8
	blockCornerR    = 7
	blockStripH     = 10
	blockStripGap   = 6
	blockRowGap     = 8
	blockDotR       = 4

	// Bubbles take at most this share of the canvas width.
	blockBubbleShare = 0.72
)

var (
	blockBackground = color.RGBA{R: 0xEC, G: 0xE5, B: 0xDD, A: 0xFF}
	blockHeader     = color.RGBA{R: 0x07, G: 0x5E, B: 0x54, A: 0xFF}
	blockHeaderText = color.RGBA{R: 0xD0, G: 0xE8, B: 0xE4, A: 0xFF}
	blockOutgoing   = color.RGBA{R: 0xDC, G: 0xF8, B: 0xC6, A: 0xFF}
	blockIncoming   = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	blockStrip      = color.RGBA{R: 0x6A, G: 0x6F, B: 0x74, A: 0xFF}
	blockMedia      = color.RGBA{R: 0xB8, G: 0xBE, B: 0xC4, A: 0xFF}
	blockMediaInner = color.RGBA{R: 0x8E, G: 0x96, B: 0x9E, A: 0xFF}
	blockRecall     = color.RGBA{R: 0x9A, G: 0xA0, B: 0xA6, A: 0xFF}
	blockDot        = color.RGBA{R: 0x8E, G: 0x96, B: 0x9E, A: 0xFF}
)

// NewBlocks creates a block renderer for one message list at a fixed
// resolution. Non-positive dimensions fall back to the default export size.
func NewBlocks(msgs []types.Message, width, height int) *Blocks {
	if width <= 0 {
		width = types.DefaultExportWidth
	}
	if height <= 0 {
		height = types.DefaultExportHeight
	}
	copied := make([]types.Message, len(msgs))
	copy(copied, msgs)
	return &Blocks{msgs: copied, width: width, height: height}
}

// RenderFrame draws the conversation with messages[0..upTo] visible. The view
// is pinned to the newest bubble, matching the player's auto scroll model.
func (b *Blocks) RenderFrame(ctx context.Context, upTo int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if upTo < -1 {
		upTo = -1
	}
	if upTo > len(b.msgs)-1 {
		upTo = len(b.msgs) - 1
	}

	img := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	draw.Draw(img, img.Bounds(), image.NewUniform(blockBackground), image.Point{}, draw.Src)
	b.drawHeader(img)

	// Lay rows out top to bottom, then shift everything up so the newest
	// bubble sits just above the bottom edge.
	viewTop := blockHeaderH + blockMargin
	viewHeight := b.height - viewTop - blockMargin
	var contentHeight float64
	for i := 0; i <= upTo; i++ {
		if h := chatreel.EstimateRowHeight(b.msgs[i]); h > 0 {
			contentHeight += h + blockRowGap
		}
	}
	scroll := contentHeight - float64(viewHeight)
	if scroll < 0 {
		scroll = 0
	}

	y := float64(viewTop) - scroll
	for i := 0; i <= upTo; i++ {
		msg := b.msgs[i]
		rowHeight := chatreel.EstimateRowHeight(msg)
		if rowHeight <= 0 {
			continue
		}
		if y+rowHeight > float64(viewTop) && y < float64(b.height) {
			b.drawBubble(img, msg, int(y), int(rowHeight))
		}
		y += rowHeight + blockRowGap
	}
	return img, nil
}

func (b *Blocks) drawHeader(img *image.RGBA) {
	fillRect(img, image.Rect(0, 0, b.width, blockHeaderH), blockHeader)
	// Avatar circle and a title strip.
	fillCircle(img, blockMargin+14, blockHeaderH/2, 14, blockHeaderText)
	fillRect(img, image.Rect(blockMargin+38, blockHeaderH/2-6, blockMargin+38+b.width/3, blockHeaderH/2+6), blockHeaderText)
}

func (b *Blocks) drawBubble(img *image.RGBA, msg types.Message, y, rowHeight int) {
	bubbleWidth := b.bubbleWidth(msg)
	var rect image.Rectangle
	if msg.FromMe {
		rect = image.Rect(b.width-blockMargin-bubbleWidth, y, b.width-blockMargin, y+rowHeight)
	} else {
		rect = image.Rect(blockMargin, y, blockMargin+bubbleWidth, y+rowHeight)
	}

	if msg.Category == types.MessageRecall {
		// Retracted messages are an outline with a single short strip.
		strokeRoundedRect(img, rect, blockCornerR, blockRecall)
		fillRect(img, image.Rect(rect.Min.X+blockBubblePadX, rect.Min.Y+(rowHeight-blockStripH)/2, rect.Min.X+bubbleWidth/2, rect.Min.Y+(rowHeight+blockStripH)/2), blockRecall)
		return
	}

	bubbleColor := blockIncoming
	if msg.FromMe {
		bubbleColor = blockOutgoing
	}
	fillRoundedRect(img, rect, blockCornerR, bubbleColor)

	switch msg.Category {
	case types.MessageTyping:
		b.drawTypingDots(img, rect)
	case types.MessageImage:
		b.drawMediaBlock(img, rect, false)
	case types.MessageLocation:
		b.drawMediaBlock(img, rect, true)
	case types.MessageVoice:
		b.drawVoiceBars(img, rect)
	default:
		b.drawTextStrips(img, msg, rect)
	}
}

func (b *Blocks) bubbleWidth(msg types.Message) int {
	maxWidth := int(float64(b.width) * blockBubbleShare)
	switch msg.Category {
	case types.MessageImage, types.MessageLocation:
		return maxWidth
	case types.MessageTyping:
		return 8*blockDotR + 4*blockBubblePadX
	case types.MessageVoice:
		return maxWidth * 3 / 4
	case types.MessageRecall:
		return maxWidth / 2
	default:
		runes := len([]rune(msg.Text))
		if runes == 0 {
			runes = 4
		}
		width := 2*blockBubblePadX + runes*7
		if width > maxWidth {
			return maxWidth
		}
		if width < 56 {
			return 56
		}
		return width
	}
}

// drawTextStrips suggests lines of text with gray strips whose widths follow
// the actual line lengths, so frames of different messages look different.
func (b *Blocks) drawTextStrips(img *image.RGBA, msg types.Message, rect image.Rectangle) {
	runes := []rune(msg.Text)
	innerWidth := rect.Dx() - 2*blockBubblePadX
	perLine := chatreel.RowTextRunesPerLine
	y := rect.Min.Y + blockBubblePadY
	for len(runes) > 0 && y+blockStripH <= rect.Max.Y-blockBubblePadY {
		lineRunes := perLine
		if lineRunes > len(runes) {
			lineRunes = len(runes)
		}
		stripWidth := innerWidth * lineRunes / perLine
		if stripWidth < 12 {
			stripWidth = 12
		}
		fillRect(img, image.Rect(rect.Min.X+blockBubblePadX, y, rect.Min.X+blockBubblePadX+stripWidth, y+blockStripH), blockStrip)
		runes = runes[lineRunes:]
		y += blockStripH + blockStripGap
	}
	if msg.Text == "" {
		fillRect(img, image.Rect(rect.Min.X+blockBubblePadX, y, rect.Min.X+blockBubblePadX+innerWidth/3, y+blockStripH), blockStrip)
	}
}

func (b *Blocks) drawTypingDots(img *image.RGBA, rect image.Rectangle) {
	centerY := (rect.Min.Y + rect.Max.Y) / 2
	startX := rect.Min.X + 2*blockBubblePadX
	for i := 0; i < 3; i++ {
		fillCircle(img, startX+i*3*blockDotR, centerY, blockDotR, blockDot)
	}
}

func (b *Blocks) drawMediaBlock(img *image.RGBA, rect image.Rectangle, pin bool) {
	inner := rect.Inset(blockBubblePadY)
	fillRect(img, inner, blockMedia)
	if pin {
		// A location pin: dot over a stem.
		cx := (inner.Min.X + inner.Max.X) / 2
		cy := (inner.Min.Y + inner.Max.Y) / 2
		fillCircle(img, cx, cy-6, 8, blockMediaInner)
		fillRect(img, image.Rect(cx-2, cy, cx+2, cy+14), blockMediaInner)
	} else {
		fillRect(img, inner.Inset(inner.Dy()/4), blockMediaInner)
	}
}

func (b *Blocks) drawVoiceBars(img *image.RGBA, rect image.Rectangle) {
	centerY := (rect.Min.Y + rect.Max.Y) / 2
	fillCircle(img, rect.Min.X+blockBubblePadX+10, centerY, 10, blockMediaInner)
	x := rect.Min.X + blockBubblePadX + 28
	// A fixed waveform pattern; amplitude cycles to look like speech.
	heights := []int{6, 12, 18, 10, 16, 8, 14, 6, 12, 16, 8, 10}
	for _, h := range heights {
		if x+3 > rect.Max.X-blockBubblePadX {
			break
		}
		fillRect(img, image.Rect(x, centerY-h/2, x+3, centerY+h/2), blockStrip)
		x += 6
	}
}

func fillRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	draw.Draw(img, rect.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// fillRoundedRect fills a rectangle with quarter-circle corners by insetting
// the rows near the top and bottom edges.
func fillRoundedRect(img *image.RGBA, rect image.Rectangle, radius int, c color.RGBA) {
	if rect.Dy() < 2*radius || rect.Dx() < 2*radius {
		fillRect(img, rect, c)
		return
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		inset := cornerInset(y, rect, radius)
		fillRect(img, image.Rect(rect.Min.X+inset, y, rect.Max.X-inset, y+1), c)
	}
}

func strokeRoundedRect(img *image.RGBA, rect image.Rectangle, radius int, c color.RGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		inset := cornerInset(y, rect, radius)
		fillRect(img, image.Rect(rect.Min.X+inset, y, rect.Min.X+inset+2, y+1), c)
		fillRect(img, image.Rect(rect.Max.X-inset-2, y, rect.Max.X-inset, y+1), c)
		if y-rect.Min.Y < 2 || rect.Max.Y-y <= 2 {
			fillRect(img, image.Rect(rect.Min.X+inset, y, rect.Max.X-inset, y+1), c)
		}
	}
}

func cornerInset(y int, rect image.Rectangle, radius int) int {
	dy := 0
	if y < rect.Min.Y+radius {
		dy = rect.Min.Y + radius - y
	} else if y >= rect.Max.Y-radius {
		dy = y - (rect.Max.Y - radius - 1)
	}
	if dy == 0 {
		return 0
	}
	// Integer circle: inset = r - floor(sqrt(r² - dy²)).
	sq := radius*radius - dy*dy
	if sq <= 0 {
		return radius
	}
	root := 0
	for (root+1)*(root+1) <= sq {
		root++
	}
	return radius - root
}

func fillCircle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				img.SetRGBA(cx+x, cy+y, c)
			}
		}
	}
}
