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
	"go.uber.org/zap"
)

type zapSink struct {
	l *zap.Logger
}

// NewZapSink forwards events to l with the pool fields as structured fields.
func NewZapSink(l *zap.Logger) Sink {
	if l == nil {
		l = zap.NewNop()
	}
	return zapSink{l: l}
}

func (s zapSink) Log(e Event) {
	fields := []zap.Field{
		zap.String("name", e.Name),
		zap.Int("main_pid", e.MainPID),
		zap.String("thread", e.Thread),
	}
	switch e.Level {
	case LevelError:
		s.l.Error(e.Message, fields...)
	default:
		s.l.Info(e.Message, fields...)
	}
}
