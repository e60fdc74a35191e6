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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventLoggerGating(t *testing.T) {
	channel, rec := recordChannel(t)

	quiet := newEventLogger(Config{LogChannel: channel})
	quiet.info(1, ThreadMain, "hidden")
	quiet.error(1, ThreadMain, "shown")

	loud := newEventLogger(Config{LogChannel: channel, Verbose: true, ProcessTitle: "jobs"})
	loud.info(2, "77", "visible")

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, Event{Level: LevelError, Name: "procpool", MainPID: 1, Thread: ThreadMain, Message: "shown"}, events[0])
	assert.Equal(t, Event{Level: LevelInfo, Name: "jobs", MainPID: 2, Thread: "77", Message: "visible"}, events[1])
}

func TestEventLoggerWithoutChannel(t *testing.T) {
	l := newEventLogger(Config{Verbose: true})
	assert.Nil(t, l.sink)
	l.info(1, ThreadMain, "dropped")
	l.error(1, ThreadMain, "dropped")

	l = newEventLogger(Config{LogChannel: "test-missing-channel", Verbose: true})
	assert.Nil(t, l.sink)
}

func TestBuiltinChannels(t *testing.T) {
	for _, name := range []string{"stdout", "stderr"} {
		_, ok := Channel(name)
		assert.True(t, ok, name)
	}
}

func TestSinkFunc(t *testing.T) {
	var got Event
	RegisterChannel("test-func", SinkFunc(func(e Event) { got = e }))
	defer UnregisterChannel("test-func")

	newEventLogger(Config{LogChannel: "test-func"}).error(9, "10", "failed")
	assert.Equal(t, "failed", got.Message)

	UnregisterChannel("test-func")
	_, ok := Channel("test-func")
	assert.False(t, ok)
}

func TestConsoleSinkFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	sink.Log(Event{Level: LevelInfo, Name: "pool-a", MainPID: 100, Thread: ThreadMain, Message: "=> START MAIN PROCESS"})
	sink.Log(Event{Level: LevelError, Name: "pool-a", MainPID: 100, Thread: "101", Message: "Couldn't fork"})

	out := buf.String()
	assert.Contains(t, out, "[NAME: pool-a][MAIN PROC: 100][THREAD: MAIN] => START MAIN PROCESS")
	assert.Contains(t, out, "[NAME: pool-a][MAIN PROC: 100][THREAD: 101] Couldn't fork")
	assert.Contains(t, out, "Info ")
	assert.Contains(t, out, "Error ")
}

func TestConsoleSinkIgnoresInternalLevel(t *testing.T) {
	SetLogLevel(levelNoPrint)
	defer SetLogLevel(levelWarn)

	var buf bytes.Buffer
	NewConsoleSink(&buf).Log(Event{Level: LevelInfo, Name: "n", MainPID: 1, Thread: "2", Message: "still printed"})
	assert.Contains(t, buf.String(), "still printed")
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Log(Event{Level: LevelInfo, Name: "pool-z", MainPID: 5, Thread: "6", Message: " -> START THREAD"})
	sink.Log(Event{Level: LevelError, Name: "pool-z", MainPID: 5, Thread: "6", Message: "boom"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].Message)
	assert.Equal(t, map[string]interface{}{
		"name":     "pool-z",
		"main_pid": int64(5),
		"thread":   "6",
	}, entries[1].ContextMap())
}

func TestZapSinkNilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewZapSink(nil).Log(Event{Level: LevelError, Message: "x"})
	})
}
