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


package crawl

import "errors"

var (
	// ErrFeedRepositoryRequired indicates no feed repository was provided.
	ErrFeedRepositoryRequired = errors.New("feed repository is required")

	// ErrPipelineRequired indicates no processing pipeline was provided.
	ErrPipelineRequired = errors.New("pipeline is required")

	// ErrSubscriptionDisabled indicates a poll was requested for a
	// subscription whose Enabled flag is off.
	ErrSubscriptionDisabled = errors.New("subscription is disabled")
)
