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
	"os"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Level is the severity of a pool event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// ThreadMain labels events emitted by the dispatching process itself.
const ThreadMain = "MAIN"

// Event is one pool log record.
type Event struct {
	Level   Level
	Name    string
	MainPID int
	Thread  string
	Message string
}

// Sink receives pool events and decides how to format and store them.
type Sink interface {
	Log(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

func (f SinkFunc) Log(e Event) { f(e) }

var channels = cmap.New[Sink]()

func init() {
	RegisterChannel("stdout", NewConsoleSink(os.Stdout))
	RegisterChannel("stderr", NewConsoleSink(os.Stderr))
}

// RegisterChannel makes sink available under name, replacing any previous one.
// Children resolve channels by name, so register them before calling Init.
func RegisterChannel(name string, sink Sink) {
	channels.Set(name, sink)
}

// UnregisterChannel removes a channel.
func UnregisterChannel(name string) {
	channels.Remove(name)
}

// Channel returns the sink registered as name.
func Channel(name string) (Sink, bool) {
	return channels.Get(name)
}

// eventLogger gates events by level: info needs verbose, errors always pass.
// A logger without a sink drops everything.
type eventLogger struct {
	name    string
	sink    Sink
	verbose bool
}

func newEventLogger(cfg Config) eventLogger {
	l := eventLogger{name: cfg.name(), verbose: cfg.Verbose}
	if cfg.LogChannel != "" {
		if sink, ok := Channel(cfg.LogChannel); ok {
			l.sink = sink
		} else {
			internalLogger.warnf("log channel %q is not registered, pool events are dropped", cfg.LogChannel)
		}
	}
	return l
}

func (l eventLogger) info(mainPID int, thread, message string) {
	if l.sink == nil || !l.verbose {
		return
	}
	l.sink.Log(Event{Level: LevelInfo, Name: l.name, MainPID: mainPID, Thread: thread, Message: message})
}

func (l eventLogger) error(mainPID int, thread, message string) {
	if l.sink == nil {
		return
	}
	l.sink.Log(Event{Level: LevelError, Name: l.name, MainPID: mainPID, Thread: thread, Message: message})
}
