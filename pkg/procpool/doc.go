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

// Package procpool runs one OS process per work item with a bounded number of
// children alive at once, and gives every process in the tree access to one shared
// memory slot.
//
// Go cannot fork a running program, so children are re-executions of the current
// binary. A child learns what to do from a descriptor the parent writes to its stdin:
// the task name, the item, the owner pid and the shared memory key. Programs using a
// Pool must therefore call Init at the very top of main (or TestMain), and register
// their tasks with NewTask at package level so the child can find them:
//
//	var square = procpool.NewTask("square", func(ctx context.Context, job *procpool.Job[int]) error {
//		return job.AppendToMemQueue(ctx, job.Item*job.Item)
//	})
//
//	func main() {
//		if procpool.Init() {
//			return
//		}
//		pool, _ := procpool.NewPool[int](procpool.WithMaxRunningThreads(4))
//		defer pool.Close()
//		_ = pool.Data([]int{1, 2, 3}).Each(context.Background(), square)
//		results, _ := procpool.ReadMemQueue[int](context.Background(), pool.Memory)
//		// ...
//	}
//
// The shared slot has no locking. Children appending concurrently may lose updates;
// serialize writers or accept last-writer-wins.
package procpool
