// Copyright 2026 Docfold Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetch

import "errors"

var (
	// ErrInvalidURL indicates a URL that cannot be parsed or uses an
	// unsupported scheme.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrFeedUnavailable indicates the feed endpoint could not be reached.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrFeedParse indicates the feed body could not be parsed.
	ErrFeedParse = errors.New("feed parse failed")

	// ErrConversionFailed indicates HTML to markdown conversion failed.
	ErrConversionFailed = errors.New("conversion failed")
)
