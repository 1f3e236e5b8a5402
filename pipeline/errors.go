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


package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentRepositoryRequired indicates the pipeline was created
	// without a document repository.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrAIProviderRequired indicates the pipeline was created without an
	// AI provider.
	ErrAIProviderRequired = errors.New("AI provider is required")

	// ErrNilDocument indicates Process was called with a nil document.
	ErrNilDocument = errors.New("document cannot be nil")
)

// StageError reports which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
