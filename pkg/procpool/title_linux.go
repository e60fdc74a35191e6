/*
 * Copyright 2025 SREDiag Authors
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

//go:build linux

package procpool

import "os"

// maxCommLen is TASK_COMM_LEN without the terminating NUL.
const maxCommLen = 15

// setProcessTitle renames the process as shown by ps and /proc/<pid>/comm.
func setProcessTitle(title string) {
	if len(title) > maxCommLen {
		title = title[:maxCommLen]
	}
	if err := os.WriteFile("/proc/self/comm", []byte(title), 0o644); err != nil {
		internalLogger.warnf("set process title %q: %v", title, err)
	}
}
