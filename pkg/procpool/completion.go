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

package procpool

import (
	"fmt"

	queuepkg "github.com/Workiva/go-datastructures/queue"
)

// completion is one reaped child.
type completion struct {
	pid    int
	index  int
	status int
}

// completions is filled by waiter goroutines in the order children exit.
type completions struct {
	q *queuepkg.Queue
}

func newCompletions(hint int) *completions {
	return &completions{q: queuepkg.New(int64(hint))}
}

func (c *completions) put(e completion) {
	if err := c.q.Put(e); err != nil {
		internalLogger.warnf("completion queue put pid=%d: %v", e.pid, err)
	}
}

// next blocks until any child has exited.
func (c *completions) next() (completion, error) {
	items, err := c.q.Get(1)
	if err != nil {
		return completion{}, err
	}
	if len(items) == 0 {
		return completion{}, fmt.Errorf("procpool: empty completion batch")
	}
	e, ok := items[0].(completion)
	if !ok {
		return completion{}, fmt.Errorf("procpool: invalid completion type %T", items[0])
	}
	return e, nil
}

func (c *completions) dispose() {
	c.q.Dispose()
}
