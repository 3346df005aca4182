// Package collapsed reads collapsed stack files and replays them as
// per-thread samples.
//
// Each line is `thread;frame;frame;... count`, outermost frame first. The
// thread field is either perf's "comm-pid/tid" or an APM "[name tid=N]"
// tag; a frame may carry its load module in a trailing "(module)".
package collapsed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StackFrame is one frame of a collapsed stack.
type StackFrame struct {
	Function string `json:"func"`
	Module   string `json:"module,omitempty"`
}

// ThreadInfo is the thread identity parsed from the first field of a line.
type ThreadInfo struct {
	ThreadName string `json:"thread_name"`
	TID        int    `json:"tid"`
}

// Key names the thread profile samples of this thread go to.
func (t ThreadInfo) Key() string {
	if t.TID < 0 {
		return t.ThreadName
	}
	return fmt.Sprintf("%s/%d", t.ThreadName, t.TID)
}

// APM format: [Thread-7 tid=1060369]
var apmFormatRegex = regexp.MustCompile(`^\[(.+)\s+tid=(\d+)\]$`)

// Invalid data pattern: 5_2175795_[002]_83367.826506:-?/10101010
var invalidDataRegex = regexp.MustCompile(`^\d+_\d+_`)

var lineRegex = regexp.MustCompile(`^[^;]+(;[^;]+)*\s\d+$`)

// SplitFuncAndModule splits a function name with module information.
// e.g., "funcName(module)" => ("funcName", "module")
// e.g., "funcName" => ("funcName", "")
func SplitFuncAndModule(funcModule string) (function, module string) {
	lastParen := strings.LastIndex(funcModule, "(")
	if lastParen == -1 || !strings.HasSuffix(funcModule, ")") {
		return funcModule, ""
	}
	return funcModule[:lastParen], funcModule[lastParen+1 : len(funcModule)-1]
}

// ExtractThreadInfo extracts thread name and TID from the first field.
// Supports two formats:
// 1. Standard perf format: "process_name-pid/tid" e.g., "sap1009-?/1088670"
// 2. APM format: "[Thread-7 tid=1060369]"
func ExtractThreadInfo(threadFrame string) ThreadInfo {
	info := ThreadInfo{ThreadName: threadFrame, TID: -1}

	if m := apmFormatRegex.FindStringSubmatch(threadFrame); len(m) == 3 {
		info.ThreadName = m[1]
		if tid, err := strconv.Atoi(m[2]); err == nil {
			info.TID = tid
		}
		return info
	}

	if lastDash := strings.LastIndex(threadFrame, "-"); lastDash > 0 {
		info.ThreadName = threadFrame[:lastDash]
	}
	if lastSlash := strings.LastIndex(threadFrame, "/"); lastSlash > 0 && lastSlash < len(threadFrame)-1 {
		if tid, err := strconv.Atoi(threadFrame[lastSlash+1:]); err == nil {
			info.TID = tid
		}
	}
	return info
}

// IsSwapperThread checks if the thread is the swapper (idle) thread.
func IsSwapperThread(threadFrame string) bool {
	return strings.HasPrefix(threadFrame, "swapper-") || threadFrame == "swapper"
}

// IsInvalidData checks if the first field matches the corrupt-record
// pattern some perf versions emit.
func IsInvalidData(firstFrame string) bool {
	return invalidDataRegex.MatchString(firstFrame)
}

// IsUnknownFrame reports whether perf could not symbolize the frame.
func IsUnknownFrame(f StackFrame) bool {
	return f.Function == "[unknown]" || f.Function == "unknown"
}

// ParseCallStack splits a stack into its thread and frames, outermost
// first. An APM thread tag directly after the thread field is dropped.
func ParseCallStack(stack string) (ThreadInfo, []StackFrame) {
	parts := strings.Split(stack, ";")
	info := ExtractThreadInfo(parts[0])

	start := 1
	if start < len(parts) && apmFormatRegex.MatchString(parts[start]) {
		start++
	}

	frames := make([]StackFrame, 0, len(parts)-start)
	for _, raw := range parts[start:] {
		if raw == "" || raw == "[]" {
			continue
		}
		fn, mod := SplitFuncAndModule(raw)
		frames = append(frames, StackFrame{Function: fn, Module: mod})
	}
	return info, frames
}

// IsCollapsedFormat checks if the line appears to be in collapsed format.
func IsCollapsedFormat(line string) bool {
	return lineRegex.MatchString(strings.TrimSpace(line))
}
