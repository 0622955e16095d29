/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package runtime turns recovered panics into errors with a short call stack.
package runtime

import (
	"fmt"
	"runtime"
	"strings"
)

// Stack returns the file:line frames of the caller's stack, skipping the
// runtime and this package.
func Stack() string {
	var pc = make([]uintptr, 20)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	var build strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&build, " %s:%d \n", frame.File, frame.Line)
		if !more {
			break
		}
	}
	return build.String()
}

// PanicError converts a recovered value into an error carrying the stack.
func PanicError(recovered interface{}) error {
	return fmt.Errorf("panic: %v\n%s", recovered, Stack())
}
