// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"errors"
)

// Miscellaneous errors
var (
	ErrNoMessages = errors.New("the message list is empty")
)

// Errors that Player.Export can return
var (
	// ErrExportBusy means another export job is already running. The running
	// job is not affected, retry after it finishes.
	ErrExportBusy = errors.New("an export job is already running")
	// ErrExportCancelled means the caller asked the job to stop. It is a
	// normal completion, not a failure: no artifact is produced and the
	// pipeline is immediately ready for a new job.
	ErrExportCancelled = errors.New("export cancelled")
	ErrCaptureFailed   = errors.New("frame capture failed")
	ErrEncodeFailed    = errors.New("encoding failed")

	ErrNoFrameSource       = errors.New("no frame source given")
	ErrInvalidExportConfig = errors.New("invalid export config")
)
