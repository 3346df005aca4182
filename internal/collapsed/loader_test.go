package collapsed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callpath-core/internal/profile"
	"github.com/callpath-core/internal/resolver"
	"github.com/callpath-core/pkg/cct"
	apperrors "github.com/callpath-core/pkg/errors"
)

func findPath(t *testing.T, root *cct.Node, names ...string) *cct.Node {
	t.Helper()
	n := root
	for _, name := range names {
		var next *cct.Node
		for _, c := range n.Children() {
			if c.Name == name {
				next = c
				break
			}
		}
		require.NotNil(t, next, "missing %q in path %v", name, names)
		n = next
	}
	return n
}

func TestLoader_LoadFile(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	require.NoError(t, l.LoadFile(context.Background(), filepath.Join("testdata", "java_cpu.folded")))

	st := l.Stats()
	assert.Equal(t, int64(8), st.Lines)
	assert.Equal(t, int64(340), st.Samples)
	assert.Equal(t, int64(500), st.Idle)
	assert.Equal(t, int64(1), st.Skipped)
	assert.Equal(t, 3, st.Threads)

	// Interned once per function name; [unknown] and swapper frames are not.
	assert.Equal(t, 6, l.Symbols().Len())
	assert.Equal(t, DefaultModule, l.Symbols().ModuleName(0))

	sources := l.Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "main-thread/1234", sources[0].Name)
	assert.Equal(t, "worker-1/5678", sources[1].Name)
	assert.Equal(t, "worker-2/5679", sources[2].Name)

	res, err := profile.NewReducer(nil, nil).Reduce(context.Background(), sources)
	require.NoError(t, err)
	assert.Equal(t, 340.0, res.Total())

	root := res.Tree.Root()
	run := findPath(t, root, "java.lang.Thread.run")
	assert.Equal(t, 340.0, run.Metric(res.Summary.Sum))

	process := findPath(t, root, "java.lang.Thread.run", "com.example.App.main", "com.example.App.process")
	assert.Equal(t, 100.0, process.Metric(res.Summary.Sum))
	assert.Equal(t, 100.0, process.Metric(res.Blocks[0].Slot(profile.SlotValue)))
	assert.Zero(t, process.Metric(res.Blocks[1].Slot(profile.SlotValue)))

	unknown := findPath(t, root, "java.lang.Thread.run", resolver.Unknown.String())
	assert.Equal(t, 20.0, unknown.Metric(res.Blocks[2].Slot(profile.SlotValue)))
}

func TestLoader_SameFunctionSharesCallSite(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	input := `a-?/1;main;work 3
a-?/1;main;work 4
a-?/1;main(app);idle 1`
	require.NoError(t, l.Load(context.Background(), strings.NewReader(input)))

	sources := l.Sources()
	require.Len(t, sources, 1)
	main := findPath(t, sources[0].Tree.Root(), "main")
	require.Len(t, main.Children(), 2)

	work := findPath(t, main, "work")
	assert.Equal(t, 7.0, work.Metric(profile.SlotValue))
	assert.Equal(t, 2.0, work.Metric(profile.SlotCount))
	assert.Equal(t, 3.0, work.Metric(profile.SlotMin))
	assert.Equal(t, 4.0, work.Metric(profile.SlotMax))
}

func TestLoader_IncludeSwapper(t *testing.T) {
	l := NewLoader(&Options{IncludeSwapper: true}, nil, nil)
	require.NoError(t, l.Load(context.Background(), strings.NewReader("swapper-?/0;cpu_idle 50\n")))

	sources := l.Sources()
	require.Len(t, sources, 1)
	idle := findPath(t, sources[0].Tree.Root(), resolver.Idle.String())
	assert.Equal(t, 50.0, idle.Metric(profile.SlotValue))
	assert.Equal(t, int64(50), l.Stats().Samples)
}

func TestLoader_ThreadOnlyLineChargesUnknown(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	require.NoError(t, l.Load(context.Background(), strings.NewReader("a-?/1 9\n")))

	sources := l.Sources()
	leaf := findPath(t, sources[0].Tree.Root(), resolver.Unknown.String())
	assert.Equal(t, 9.0, leaf.Metric(profile.SlotValue))
}

func TestLoader_StrictMode(t *testing.T) {
	tests := []string{
		"a-?/1;main",
		"a-?/1;main abc",
		"a-?/1;main -3",
		"1_2_corrupt;main 4",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			lenient := NewLoader(nil, nil, nil)
			require.NoError(t, lenient.Load(context.Background(), strings.NewReader(input)))
			assert.Equal(t, int64(1), lenient.Stats().Skipped)

			strict := NewLoader(&Options{StrictMode: true}, nil, nil)
			err := strict.Load(context.Background(), strings.NewReader(input))
			require.Error(t, err)
			assert.True(t, apperrors.IsParseError(err))
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestLoader_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(nil, nil, nil)
	err := l.Load(ctx, strings.NewReader("a-?/1;main 1\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_FileNotExists(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	err := l.LoadFile(context.Background(), filepath.Join("testdata", "missing.folded"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetErrorCode(err))
}

func TestLoader_LoadAfterSources(t *testing.T) {
	l := NewLoader(nil, nil, nil)
	assert.Empty(t, l.Sources())
	err := l.Load(context.Background(), strings.NewReader("a-?/1;main 1\n"))
	assert.ErrorIs(t, err, apperrors.ErrClosed)
}

func TestLoader_SharedSymbolTable(t *testing.T) {
	symbols := resolver.NewSymbolTable()
	a := NewLoader(nil, symbols, nil)
	b := NewLoader(nil, symbols, nil)
	require.NoError(t, a.Load(context.Background(), strings.NewReader("t-?/1;main;f 1\n")))
	require.NoError(t, b.Load(context.Background(), strings.NewReader("t-?/2;main;f 2\n")))

	sources := append(a.Sources(), b.Sources()...)
	res, err := profile.NewReducer(nil, nil).Reduce(context.Background(), sources)
	require.NoError(t, err)

	f := findPath(t, res.Tree.Root(), "main", "f")
	assert.Equal(t, 3.0, f.Metric(res.Summary.Sum))
	assert.Equal(t, 2, symbols.Len())
}
