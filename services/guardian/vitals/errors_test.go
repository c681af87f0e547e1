// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vitals

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	err := NewError("healer.Step", KindExhaustion, nil)
	if !errors.Is(err, ErrExhaustion) {
		t.Fatal("expected errors.Is(err, ErrExhaustion) to be true")
	}
	if errors.Is(err, ErrDrainTimeout) {
		t.Fatal("expected errors.Is(err, ErrDrainTimeout) to be false")
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := NewError("store.Write", KindTransientStoreFailure, cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is(err, cause) to be true")
	}
	if !errors.Is(err, ErrTransientStoreFailure) {
		t.Fatal("expected errors.Is(err, ErrTransientStoreFailure) to be true")
	}
}
