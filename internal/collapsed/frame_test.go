package collapsed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitFuncAndModule(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFunc   string
		wantModule string
	}{
		{"function with module", "doSomething(libfoo.so)", "doSomething", "libfoo.so"},
		{"function without module", "doSomething", "doSomething", ""},
		{"kernel symbol with module", "tcp_sendmsg([kernel.kallsyms])", "tcp_sendmsg", "[kernel.kallsyms]"},
		{"nested parentheses", "operator()(mystuff.so)", "operator()", "mystuff.so"},
		{"empty input", "", "", ""},
		{"only opening paren", "func(", "func(", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFunc, gotModule := SplitFuncAndModule(tt.input)
			assert.Equal(t, tt.wantFunc, gotFunc)
			assert.Equal(t, tt.wantModule, gotModule)
		})
	}
}

func TestExtractThreadInfo(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantTID int
	}{
		{"standard perf format", "sap1009-?/1088670", "sap1009/1088670", 1088670},
		{"APM format", "[Thread-7 tid=1060369]", "Thread-7/1060369", 1060369},
		{"complex thread name", "pool-1-thread-1-12345/67890", "pool-1-thread-1/67890", 67890},
		{"APM format with spaces", "[main thread tid=12345]", "main thread/12345", 12345},
		{"no tid info", "process_name", "process_name", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ExtractThreadInfo(tt.input)
			assert.Equal(t, tt.wantTID, info.TID)
			assert.Equal(t, tt.wantKey, info.Key())
		})
	}
}

func TestIsSwapperThread(t *testing.T) {
	for input, want := range map[string]bool{
		"swapper-?/0":      true,
		"swapper":          true,
		"java-12345/67890": false,
		"swap":             false,
		"":                 false,
	} {
		assert.Equal(t, want, IsSwapperThread(input), input)
	}
}

func TestIsInvalidData(t *testing.T) {
	assert.True(t, IsInvalidData("5_2175795_[002]_83367.826506:-?/10101010"))
	assert.True(t, IsInvalidData("123_456_something"))
	assert.False(t, IsInvalidData("java-12345/67890"))
	assert.False(t, IsInvalidData("1_notdigit_test"))
}

func TestParseCallStack(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantThread string
		wantFrames []StackFrame
	}{
		{
			name:       "standard stack",
			input:      "java-12345/67890;Thread.run;App.main(app.jar)",
			wantThread: "java/67890",
			wantFrames: []StackFrame{{Function: "Thread.run"}, {Function: "App.main", Module: "app.jar"}},
		},
		{
			name:       "APM tag after thread",
			input:      "java-?/1;[Thread-7 tid=1060369];run",
			wantThread: "java/1",
			wantFrames: []StackFrame{{Function: "run"}},
		},
		{
			name:       "empty frames dropped",
			input:      "p-?/2;;[];leaf",
			wantThread: "p/2",
			wantFrames: []StackFrame{{Function: "leaf"}},
		},
		{
			name:       "thread only",
			input:      "p-?/3",
			wantThread: "p/3",
			wantFrames: []StackFrame{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, frames := ParseCallStack(tt.input)
			assert.Equal(t, tt.wantThread, info.Key())
			assert.Equal(t, tt.wantFrames, frames)
		})
	}
}

func TestIsCollapsedFormat(t *testing.T) {
	assert.True(t, IsCollapsedFormat("main-?/1;a;b 10"))
	assert.True(t, IsCollapsedFormat("  main-?/1;a 1  "))
	assert.False(t, IsCollapsedFormat("main-?/1;a;b"))
	assert.False(t, IsCollapsedFormat("# comment"))
}
