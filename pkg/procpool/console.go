/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
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
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"
)

type logger struct {
	name string
	mu   sync.Mutex
	out  io.Writer
}

var (
	internalLogger = &logger{name: "procpool", out: os.Stderr}
	level          int

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level = levelWarn
	if os.Getenv("PROCPOOL_LOG_LEVEL") != "" {
		if n, err := strconv.Atoi(os.Getenv("PROCPOOL_LOG_LEVEL")); err == nil {
			if n <= levelNoPrint {
				level = n
			}
		}
	}
}

// SetLogLevel changes the internal logger's level and the default level is Warning.
// The process env `PROCPOOL_LOG_LEVEL` also could set log level. Console channels
// are not affected: pool events are already gated by Config.Verbose.
func SetLogLevel(l int) {
	if l <= levelNoPrint {
		level = l
	}
}

func newLogger(name string, out io.Writer) *logger {
	if out == nil {
		out = os.Stdout
	}
	return &logger{name: name, out: out}
}

func (l *logger) errorf(format string, a ...interface{}) {
	if level > levelError {
		return
	}
	l.write(levelError, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	if level > levelWarn {
		return
	}
	l.write(levelWarn, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	if level > levelInfo {
		return
	}
	l.write(levelInfo, format, a...)
}

func (l *logger) write(lv int, format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger %s failed: %v\n", levelName[lv], err)
	}
}

func (l *logger) prefix(level int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	_, _ = buf.WriteString(colors[level])
	_, _ = buf.WriteString(levelName[level])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
	return buf.String()
}

type consoleSink struct {
	l *logger
}

// NewConsoleSink returns a sink writing colored
// "[NAME: n][MAIN PROC: p][THREAD: t] message" lines to out.
func NewConsoleSink(out io.Writer) Sink {
	return consoleSink{l: newLogger("pool", out)}
}

func (s consoleSink) Log(e Event) {
	if e.Level == LevelError {
		s.l.write(levelError, "%s", formatEvent(e))
		return
	}
	s.l.write(levelInfo, "%s", formatEvent(e))
}

func formatEvent(e Event) string {
	return fmt.Sprintf("[NAME: %s][MAIN PROC: %d][THREAD: %s] %s", e.Name, e.MainPID, e.Thread, e.Message)
}
